package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/hints"
)

type Hint struct {
	Model
	TeamID            uuid.UUID
	Team              *Team `gorm:"foreignKey:TeamID"`
	PuzzleID          uuid.UUID
	Puzzle            *Puzzle `gorm:"foreignKey:PuzzleID"`
	IsFollowup        bool
	HintQuestion      string
	NotifyEmails      string
	SubmittedDatetime time.Time
	AnsweredDatetime  *time.Time
	Status            hints.Status
	Response          string
	ClaimedDatetime   *time.Time
	Claimer           string
}

func (Hint) TableName() string {
	return "hints"
}

func CreateHint(ctx context.Context, tx *gorm.DB, h *Hint) error {
	ctx, span := tracer.Start(ctx, "CreateHint")
	defer span.End()

	if err := tx.WithContext(ctx).Omit("Team", "Puzzle").Create(h).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create hint")
		return fmt.Errorf("failed to create hint: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created hint")
	return nil
}

// Oldest first, the order quota consumption is counted in.
func TeamHints(ctx context.Context, db *gorm.DB, teamID uuid.UUID) ([]Hint, error) {
	var rows []Hint
	err := db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("submitted_datetime, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load hints: %w", err)
	}
	return rows, nil
}

func HintWithRelations(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Hint, error) {
	var h Hint
	if err := db.WithContext(ctx).Preload("Team").Preload("Puzzle").First(&h, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &h, nil
}

// Marks every open hint of a team on a puzzle obsolete and returns the affected rows.
func ObsoleteOpenHints(
	ctx context.Context,
	tx *gorm.DB,
	teamID uuid.UUID,
	puzzleID uuid.UUID,
	at time.Time,
) ([]Hint, error) {
	ctx, span := tracer.Start(ctx, "ObsoleteOpenHints")
	defer span.End()

	var rows []Hint
	result := tx.WithContext(ctx).
		Model(&rows).
		Clauses(returning()).
		Where("team_id = ? AND puzzle_id = ? AND status = ?", teamID, puzzleID, hints.NoResponse).
		Updates(map[string]any{"status": hints.Obsolete, "answered_datetime": at})
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to obsolete hints")
		return nil, fmt.Errorf("failed to obsolete hints: %w", result.Error)
	}

	span.SetAttributes(attribute.Int64("obsoleted", result.RowsAffected))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "obsoleted hints")
	return rows, nil
}

// current returns the stored hint after a conditional update matched nothing.
func current(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Hint, error) {
	h, err := HintWithRelations(ctx, db, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load hint: %w", err)
	}
	return h, nil
}

// Claims an open hint for claimer. Only an unclaimed hint or one already held by claimer matches, so of
// two racing claimers exactly one wins. won is false when the row did not match; the returned hint is
// then the stored one.
func ClaimHint(ctx context.Context, db *gorm.DB, id uuid.UUID, claimer string, at time.Time) (*Hint, bool, error) {
	ctx, span := tracer.Start(ctx, "ClaimHint")
	defer span.End()

	span.SetAttributes(attribute.String("hint.id", id.String()), attribute.String("claimer", claimer))

	var rows []Hint
	result := db.WithContext(ctx).
		Model(&rows).
		Clauses(returning()).
		Where("id = ? AND status = ? AND (claimer = '' OR claimer = ?)", id, hints.NoResponse, claimer).
		Updates(map[string]any{
			"claimer":          claimer,
			"claimed_datetime": gorm.Expr("COALESCE(claimed_datetime, ?)", at),
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to claim hint")
		return nil, false, fmt.Errorf("failed to claim hint: %w", result.Error)
	}

	h, err := current(ctx, db, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load hint")
		return nil, false, err
	}

	won := result.RowsAffected == 1
	span.SetAttributes(attribute.Bool("won", won))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "claimed hint")
	return h, won, nil
}

// Releases a claim while the hint is still open.
func UnclaimHint(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Hint, bool, error) {
	ctx, span := tracer.Start(ctx, "UnclaimHint")
	defer span.End()

	result := db.WithContext(ctx).
		Model(&Hint{}).
		Where("id = ? AND status = ?", id, hints.NoResponse).
		Updates(map[string]any{"claimer": "", "claimed_datetime": nil})
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to unclaim hint")
		return nil, false, fmt.Errorf("failed to unclaim hint: %w", result.Error)
	}

	h, err := current(ctx, db, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load hint")
		return nil, false, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "unclaimed hint")
	return h, result.RowsAffected == 1, nil
}

type Resolution struct {
	Expected  hints.Status // the status the responder saw
	Status    hints.Status
	Response  string
	Responder string
	At        time.Time
}

// Moves a hint out of the status the responder saw. The update only matches while the stored status
// still equals r.Expected, so a concurrent change makes ok false instead of being overwritten.
func ResolveHint(ctx context.Context, db *gorm.DB, id uuid.UUID, r Resolution) (*Hint, bool, error) {
	ctx, span := tracer.Start(ctx, "ResolveHint")
	defer span.End()

	span.SetAttributes(
		attribute.String("hint.id", id.String()),
		attribute.String("expected", r.Expected.String()),
		attribute.String("status", r.Status.String()),
	)

	result := db.WithContext(ctx).
		Model(&Hint{}).
		Where("id = ? AND status = ?", id, r.Expected).
		Updates(map[string]any{
			"status":            r.Status,
			"response":          r.Response,
			"answered_datetime": r.At,
			"claimer":           gorm.Expr("CASE WHEN claimer = '' THEN ? ELSE claimer END", r.Responder),
			"claimed_datetime":  gorm.Expr("COALESCE(claimed_datetime, ?)", r.At),
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to resolve hint")
		return nil, false, fmt.Errorf("failed to resolve hint: %w", result.Error)
	}

	h, err := current(ctx, db, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load hint")
		return nil, false, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "resolved hint")
	return h, result.RowsAffected == 1, nil
}

// Open hints oldest first with their team and puzzle.
func OpenHints(ctx context.Context, db *gorm.DB) ([]Hint, error) {
	var rows []Hint
	err := db.WithContext(ctx).
		Preload("Team").
		Preload("Puzzle").
		Where("status = ?", hints.NoResponse).
		Order("submitted_datetime").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load open hints: %w", err)
	}
	return rows, nil
}

func CountUnclaimedHints(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&Hint{}).
		Where("status = ? AND claimer = ''", hints.NoResponse).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unclaimed hints: %w", err)
	}
	return n, nil
}

func DeleteHints(ctx context.Context, db *gorm.DB, teamID uuid.UUID, puzzleID uuid.UUID) (int64, error) {
	result := db.WithContext(ctx).
		Where("team_id = ? AND puzzle_id = ?", teamID, puzzleID).
		Delete(&Hint{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete hints: %w", result.Error)
	}
	return result.RowsAffected, nil
}
