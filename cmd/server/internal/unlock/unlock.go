// Package unlock decides which puzzles a team can see and records each unlock exactly once.
package unlock

import (
	"time"

	"github.com/google/uuid"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/catalog"
	"github.com/puzzlehunt/huntserver/internal/hunt"
)

type Unlock struct {
	Puzzle *catalog.Puzzle
	At     time.Time
}

// Candidate is a puzzle a policy considers visible. Notify marks unlocks that happen at this instant.
type Candidate struct {
	Puzzle *catalog.Puzzle
	At     time.Time
	Stored bool
	Notify bool
}

// TeamState is what a policy needs to know about a team. Both maps are keyed by puzzle id.
type TeamState struct {
	Solves   map[uuid.UUID]time.Time
	Existing map[uuid.UUID]time.Time
}

// Policy computes visibility without side effects. A deployment runs exactly one.
type Policy interface {
	Scheme() hunt.Scheme
	Candidates(cat *catalog.Catalog, v hunt.Viewer, st TeamState) []Candidate
}

func ForScheme(s hunt.Scheme) Policy {
	if s == hunt.SchemeDeep {
		return Deep{}
	}
	return Counting{}
}

// Set is an ordered set of unlocked puzzles.
type Set struct {
	list []Unlock
	at   map[uuid.UUID]time.Time
}

func NewSet(list []Unlock) Set {
	at := make(map[uuid.UUID]time.Time, len(list))
	for _, u := range list {
		at[u.Puzzle.ID] = u.At
	}
	return Set{list: list, at: at}
}

func (s Set) List() []Unlock {
	return s.list
}

func (s Set) Len() int {
	return len(s.list)
}

func (s Set) Contains(puzzleID uuid.UUID) bool {
	_, ok := s.at[puzzleID]
	return ok
}

func (s Set) At(puzzleID uuid.UUID) (time.Time, bool) {
	t, ok := s.at[puzzleID]
	return t, ok
}
