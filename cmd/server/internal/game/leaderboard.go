package game

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/leaderboard"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/internal/hunt"
)

// LeaderboardLoader reads the standings the leaderboard cache sorts. Solves after the hunt ended
// and free answers do not score.
func LeaderboardLoader(db *gorm.DB, rules hunt.Rules) leaderboard.Loader {
	return func(ctx context.Context) ([]leaderboard.Entry, error) {
		ctx, span := tracer.Start(ctx, "LeaderboardLoader")
		defer span.End()

		var metaMeta models.Puzzle
		metaMetaID := uuid.Nil
		err := db.WithContext(ctx).Where("slug = ?", rules.MetaMetaSlug).Take(&metaMeta).Error
		switch {
		case err == nil:
			metaMetaID = metaMeta.ID
		case !isNotFound(err):
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to find meta-meta")
			return nil, fmt.Errorf("failed to find meta-meta: %w", err)
		}

		rows, err := models.Standings(ctx, db, metaMetaID, rules.End)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load standings")
			return nil, err
		}

		entries := make([]leaderboard.Entry, 0, len(rows))
		for _, r := range rows {
			entries = append(entries, leaderboard.Entry{
				TeamID:            r.TeamID,
				TeamName:          r.TeamName,
				IsHidden:          r.IsHidden,
				CreationTime:      r.CreationTime,
				LastSolveTime:     r.LastSolveTime,
				TotalSolves:       r.TotalSolves,
				MetaMetaSolveTime: r.MetaMetaSolveTime,
			})
		}

		span.SetStatus(codes.Ok, "loaded standings")
		return entries, nil
	}
}

// Leaderboard ranks every visible team; viewer is uuid.Nil for anonymous visitors.
func (s *Service) Leaderboard(ctx context.Context, viewer uuid.UUID) (leaderboard.Board, error) {
	return s.board.Board(ctx, viewer)
}
