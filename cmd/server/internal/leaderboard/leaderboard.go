// Package leaderboard ranks teams from their scoring solves.
package leaderboard

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type Entry struct {
	TeamID            uuid.UUID  `json:"team_id"`
	TeamName          string     `json:"team_name"`
	IsHidden          bool       `json:"-"`
	CreationTime      time.Time  `json:"-"`
	LastSolveTime     *time.Time `json:"last_solve_time,omitempty"`
	TotalSolves       int        `json:"total_solves"`
	MetaMetaSolveTime *time.Time `json:"meta_meta_solve_time,omitempty"`
}

// Last scoring solve, or creation for a team that has not solved anything.
func (e Entry) tieBreak() time.Time {
	if e.LastSolveTime != nil {
		return *e.LastSolveTime
	}
	return e.CreationTime
}

func compare(a Entry, b Entry) int {
	switch {
	case a.MetaMetaSolveTime != nil && b.MetaMetaSolveTime == nil:
		return -1
	case a.MetaMetaSolveTime == nil && b.MetaMetaSolveTime != nil:
		return 1
	case a.MetaMetaSolveTime != nil:
		if c := a.MetaMetaSolveTime.Compare(*b.MetaMetaSolveTime); c != 0 {
			return c
		}
	}
	if a.TotalSolves != b.TotalSolves {
		if a.TotalSolves > b.TotalSolves {
			return -1
		}
		return 1
	}
	return a.tieBreak().Compare(b.tieBreak())
}

// Sort orders entries best first: finished teams by finish time, then by solve count, then by who got
// there first.
func Sort(entries []Entry) {
	slices.SortStableFunc(entries, compare)
}

type Row struct {
	Entry
	Rank int `json:"rank"`
}

type Board struct {
	Rows []Row `json:"rows"`
	// 0 when the viewer is anonymous or not on the board.
	ViewerRank int `json:"viewer_rank,omitempty"`
}

// View ranks the sorted entries a viewer may see: every visible team plus the viewer's own team even
// when it is hidden.
func View(sorted []Entry, viewer uuid.UUID) Board {
	b := Board{Rows: make([]Row, 0, len(sorted))}
	for _, e := range sorted {
		self := viewer != uuid.Nil && e.TeamID == viewer
		if e.IsHidden && !self {
			continue
		}
		row := Row{Entry: e, Rank: len(b.Rows) + 1}
		if self {
			b.ViewerRank = row.Rank
		}
		b.Rows = append(b.Rows, row)
	}
	return b
}
