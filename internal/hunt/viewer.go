package hunt

import (
	"time"

	"github.com/google/uuid"
)

// Viewer is the read-only view shared by a request and a bare team: who is looking, and when.
type Viewer interface {
	Now() time.Time
	// TeamID is uuid.Nil for an anonymous visitor.
	TeamID() uuid.UUID
	IsPrerelease() bool
	StartTime() time.Time
	HuntIsOver() bool
	HuntIsClosed() bool
}

// TeamView is a Viewer for code that acts on a team outside of a request.
type TeamView struct {
	Rules       Rules
	ID          uuid.UUID
	StartOffset time.Duration
	Prerelease  bool
	At          time.Time
}

var _ Viewer = TeamView{}

func (v TeamView) Now() time.Time {
	return v.At
}

func (v TeamView) TeamID() uuid.UUID {
	return v.ID
}

func (v TeamView) IsPrerelease() bool {
	return v.Prerelease
}

func (v TeamView) StartTime() time.Time {
	return v.Rules.StartFor(v.StartOffset)
}

func (v TeamView) HuntIsOver() bool {
	return v.Rules.IsOver(v.At)
}

func (v TeamView) HuntIsClosed() bool {
	return v.Rules.IsClosed(v.At)
}

// A team sees everything once the hunt is over or when it is a prerelease testsolver.
func UniversalAccess(v Viewer) bool {
	return v.IsPrerelease() || v.HuntIsOver()
}
