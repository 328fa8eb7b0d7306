package unlock

import (
	"math"

	"github.com/google/uuid"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/catalog"
	"github.com/puzzlehunt/huntserver/internal/hunt"
)

// Deep unlocks every puzzle whose threshold is at most the team's progress, the number of solved puzzles.
// Unlocks under this scheme are never announced.
type Deep struct{}

var _ Policy = Deep{}

func (Deep) Scheme() hunt.Scheme {
	return hunt.SchemeDeep
}

// Progress is unbounded once the hunt closes or for a prerelease testsolver.
func (Deep) Progress(v hunt.Viewer, st TeamState) int {
	if v.HuntIsClosed() || v.IsPrerelease() {
		return math.MaxInt
	}
	if v.TeamID() == uuid.Nil {
		return 0
	}
	return len(st.Solves)
}

func (d Deep) Candidates(cat *catalog.Catalog, v hunt.Viewer, st TeamState) []Candidate {
	progress := d.Progress(v, st)
	universal := hunt.UniversalAccess(v)

	out := make([]Candidate, 0, cat.Len())
	for _, p := range cat.DeepOrder() {
		if p.DeepThreshold > progress {
			break
		}
		c := Candidate{Puzzle: p, At: v.Now()}
		if universal {
			c.At = v.StartTime()
		}
		if existing, ok := st.Existing[p.ID]; ok {
			c.At, c.Stored = existing, true
		}
		out = append(out, c)
	}
	return out
}
