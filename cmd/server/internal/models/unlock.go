package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/unlock"
)

type PuzzleUnlock struct {
	Model
	TeamID         uuid.UUID
	PuzzleID       uuid.UUID
	UnlockDatetime time.Time
	ViewDatetime   *time.Time
}

func (PuzzleUnlock) TableName() string {
	return "puzzle_unlocks"
}

// UnlockStore persists unlocks against the (team_id, puzzle_id) unique constraint.
type UnlockStore struct {
	DB *gorm.DB
}

var _ unlock.Store = UnlockStore{}

func (s UnlockStore) InsertUnlocks(
	ctx context.Context,
	teamID uuid.UUID,
	pending []unlock.Pending,
) (map[uuid.UUID]unlock.Stored, error) {
	ctx, span := tracer.Start(ctx, "UnlockStore.InsertUnlocks")
	defer span.End()

	db := s.DB.WithContext(ctx)
	span.SetAttributes(attribute.String("team.id", teamID.String()), attribute.Int("pending", len(pending)))

	out := make(map[uuid.UUID]unlock.Stored, len(pending))
	inserted := 0
	for _, p := range pending {
		row := PuzzleUnlock{TeamID: teamID, PuzzleID: p.PuzzleID, UnlockDatetime: p.At}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}, {Name: "puzzle_id"}},
			DoNothing: true,
		}).Create(&row)
		if result.Error != nil {
			span.RecordError(result.Error)
			span.SetStatus(codes.Error, "failed to insert unlock")
			return nil, fmt.Errorf("failed to insert unlock: %w", result.Error)
		}

		if result.RowsAffected == 1 {
			inserted++
			out[p.PuzzleID] = unlock.Stored{ID: row.ID, At: row.UnlockDatetime, Inserted: true}
			continue
		}

		// lost the race, report the winner's row
		var existing PuzzleUnlock
		err := db.Where("team_id = ? AND puzzle_id = ?", teamID, p.PuzzleID).First(&existing).Error
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read existing unlock")
			return nil, fmt.Errorf("failed to read existing unlock: %w", err)
		}
		out[p.PuzzleID] = unlock.Stored{ID: existing.ID, At: existing.UnlockDatetime}
	}

	span.SetAttributes(attribute.Int("inserted", inserted))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "inserted unlocks")
	return out, nil
}

// Unlock timestamps of a team keyed by puzzle id.
func TeamUnlocks(ctx context.Context, db *gorm.DB, teamID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	var rows []PuzzleUnlock
	if err := db.WithContext(ctx).Where("team_id = ?", teamID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load unlocks: %w", err)
	}
	out := make(map[uuid.UUID]time.Time, len(rows))
	for _, r := range rows {
		out[r.PuzzleID] = r.UnlockDatetime
	}
	return out, nil
}

// Records the first visit to a puzzle page. Later visits leave the timestamp alone.
func MarkViewed(ctx context.Context, db *gorm.DB, teamID uuid.UUID, puzzleID uuid.UUID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&PuzzleUnlock{}).
		Where("team_id = ? AND puzzle_id = ? AND view_datetime IS NULL", teamID, puzzleID).
		Update("view_datetime", at)
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark unlock viewed: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
