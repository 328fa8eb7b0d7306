// Package hints is the lifecycle of a single hint request.
package hints

import (
	"fmt"
	"strings"
)

// Stored codes match the status column.
type Status string

const (
	NoResponse Status = "NR"
	Answered   Status = "ANS"
	Refunded   Status = "REF"
	Obsolete   Status = "OBS"
)

var names = map[Status]string{
	NoResponse: "NO_RESPONSE",
	Answered:   "ANSWERED",
	Refunded:   "REFUNDED",
	Obsolete:   "OBSOLETE",
}

var labels = map[Status]string{
	NoResponse: "No response",
	Answered:   "Answered",
	Refunded:   "Refunded",
	Obsolete:   "Obsolete",
}

func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return string(s)
}

func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := names[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && s != NoResponse
}

// Parse accepts a stored code or a name. AMBIGUOUS is an alias of REFUNDED.
func Parse(v string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "NR", "NO_RESPONSE":
		return NoResponse, nil
	case "ANS", "ANSWERED":
		return Answered, nil
	case "REF", "REFUNDED", "AMBIGUOUS":
		return Refunded, nil
	case "OBS", "OBSOLETE":
		return Obsolete, nil
	}
	return "", fmt.Errorf("unknown hint status %q", v)
}

// CanTransition reports whether a hint in from may move to to. Every move leaves NO_RESPONSE; nothing
// returns to it.
func CanTransition(from Status, to Status) bool {
	return from == NoResponse && to.Terminal()
}

// Consumes reports whether a hint counts against the team's quota.
func Consumes(s Status, isFollowup bool) bool {
	if isFollowup {
		return false
	}
	return s != Refunded && s != Obsolete
}

// CanFollowup reports whether a thread whose latest hint is in s may get a followup.
func CanFollowup(latest Status) bool {
	return latest == Answered
}
