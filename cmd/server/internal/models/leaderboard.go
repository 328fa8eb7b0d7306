package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

// Per-team aggregates over scoring submissions: correct, not free, before the hunt ended.
type Standing struct {
	TeamID            uuid.UUID
	TeamName          string
	IsHidden          bool
	CreationTime      time.Time
	LastSolveTime     *time.Time
	TotalSolves       int
	MetaMetaSolveTime *time.Time
}

func Standings(ctx context.Context, db *gorm.DB, metaMetaID uuid.UUID, end time.Time) ([]Standing, error) {
	ctx, span := tracer.Start(ctx, "Standings")
	defer span.End()

	var rows []Standing
	err := db.WithContext(ctx).Raw(`
SELECT
    t.id AS team_id,
    t.team_name,
    t.is_hidden,
    t.creation_time,
    t.last_solve_time,
    COUNT(s.id) AS total_solves,
    MIN(s.submitted_datetime) FILTER (WHERE s.puzzle_id = @meta_meta) AS meta_meta_solve_time
FROM teams t
LEFT JOIN answer_submissions s
    ON s.team_id = t.id
    AND s.is_correct
    AND NOT s.used_free_answer
    AND s.submitted_datetime < @end
WHERE t.creation_time < @end
GROUP BY t.id`,
		map[string]any{"meta_meta": metaMetaID, "end": end},
	).Scan(&rows).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load standings")
		return nil, fmt.Errorf("failed to load standings: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "loaded standings")
	return rows, nil
}
