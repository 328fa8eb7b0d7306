package response

import (
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/internal/types"
)

// Hint is the wire form of a hint row. Puzzle and team names are filled when preloaded.
func Hint(h *models.Hint) types.Hint {
	out := types.Hint{
		ID:           h.ID,
		IsFollowup:   h.IsFollowup,
		Question:     h.HintQuestion,
		NotifyEmails: h.NotifyEmails,
		Status:       string(h.Status),
		Response:     h.Response,
		Claimer:      h.Claimer,
		SubmittedAt:  types.NewUnixMilli(h.SubmittedDatetime),
		ClaimedAt:    types.NewUnixMilliPtr(h.ClaimedDatetime),
		AnsweredAt:   types.NewUnixMilliPtr(h.AnsweredDatetime),
	}
	if h.Puzzle != nil {
		out.Puzzle = h.Puzzle.Slug
	}
	if h.Team != nil {
		out.Team = h.Team.TeamName
	}
	return out
}

func Hints(rows []models.Hint) []types.Hint {
	out := make([]types.Hint, 0, len(rows))
	for i := range rows {
		out = append(out, Hint(&rows[i]))
	}
	return out
}
