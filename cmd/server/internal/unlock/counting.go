package unlock

import (
	"time"

	"github.com/google/uuid"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/catalog"
	"github.com/puzzlehunt/huntserver/internal/hunt"
)

// Counting unlocks a puzzle once any of its elapsed hours, global solves or local solves thresholds
// is met. The meta-meta additionally opens once every meta before it is solved.
type Counting struct{}

var _ Policy = Counting{}

func (Counting) Scheme() hunt.Scheme {
	return hunt.SchemeCounting
}

func (Counting) Candidates(cat *catalog.Catalog, v hunt.Viewer, st TeamState) []Candidate {
	now := v.Now()
	start := v.StartTime()
	universal := hunt.UniversalAccess(v)
	hasTeam := v.TeamID() != uuid.Nil

	global, local := cat.MainRoundSolves(st.Solves)
	var metasSolved []bool

	out := make([]Candidate, 0, cat.Len())
	for _, p := range cat.Puzzles() {
		var at time.Time
		ok := false

		if p.UnlockHours >= 0 {
			crossed := start.Add(time.Duration(p.UnlockHours) * time.Hour)
			if !crossed.After(now) {
				at, ok = crossed, true
			}
		}

		stored := false
		switch {
		case universal:
			at, ok = start, true
		case hasTeam:
			if p.UnlockGlobal >= 0 && p.UnlockGlobal <= global && (global > 0 || anyTrue(metasSolved)) {
				at, ok = now, true
			}
			if p.UnlockLocal >= 0 && p.UnlockLocal <= local[catalog.RoundSlug(p)] {
				at, ok = now, true
			}
			if cat.IsMetaMeta(p) && allTrue(metasSolved) {
				at, ok = now, true
			}
			// the meta's own solve only counts for puzzles after it
			if p.IsMeta {
				_, solved := st.Solves[p.ID]
				metasSolved = append(metasSolved, solved)
			}
			if existing, found := st.Existing[p.ID]; found {
				at, ok, stored = existing, true, true
			}
		}

		if !ok {
			continue
		}
		out = append(out, Candidate{
			Puzzle: p,
			At:     at,
			Stored: stored,
			Notify: !universal && !stored && at.Equal(now),
		})
	}
	return out
}

func anyTrue(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}

func allTrue(bs []bool) bool {
	for _, b := range bs {
		if !b {
			return false
		}
	}
	return true
}
