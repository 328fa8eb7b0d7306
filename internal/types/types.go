package types

import (
	"time"
)

// Milliseconds since the unix epoch. Used for every timestamp crossing the API boundary.
type UnixMilli int64

func NewUnixMilli(t time.Time) UnixMilli {
	return UnixMilli(t.UTC().UnixMilli())
}

func NewUnixMilliPtr(t *time.Time) *UnixMilli {
	if t == nil {
		return nil
	}
	v := NewUnixMilli(*t)
	return &v
}
