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
)

// One row per distinct normalized answer a team tried on a puzzle.
type AnswerSubmission struct {
	Model
	TeamID            uuid.UUID
	PuzzleID          uuid.UUID
	SubmittedAnswer   string
	SubmittedDatetime time.Time
	IsCorrect         bool
	UsedFreeAnswer    bool
}

func (AnswerSubmission) TableName() string {
	return "answer_submissions"
}

// Inserts a guess. A repeat of the same answer, or a second correct row, returns gorm.ErrDuplicatedKey.
func InsertSubmission(ctx context.Context, tx *gorm.DB, s *AnswerSubmission) error {
	ctx, span := tracer.Start(ctx, "InsertSubmission")
	defer span.End()

	span.SetAttributes(
		attribute.String("team.id", s.TeamID.String()),
		attribute.String("puzzle.id", s.PuzzleID.String()),
		attribute.Bool("correct", s.IsCorrect),
		attribute.Bool("free", s.UsedFreeAnswer),
	)

	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		if IsDuplicate(err) {
			span.AddEvent("duplicate_submission")
			span.SetStatus(codes.Ok, "duplicate submission")
			return err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert submission")
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "inserted submission")
	return nil
}

// Newest first.
func TeamSubmissions(ctx context.Context, db *gorm.DB, teamID uuid.UUID) ([]AnswerSubmission, error) {
	var rows []AnswerSubmission
	err := db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("submitted_datetime DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions: %w", err)
	}
	return rows, nil
}

// Counts correct, non-free solves of a puzzle by visible teams, which places a new solve.
func CountPublicSolves(ctx context.Context, db *gorm.DB, puzzleID uuid.UUID) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&AnswerSubmission{}).
		Joins("JOIN teams ON teams.id = answer_submissions.team_id").
		Where("answer_submissions.puzzle_id = ?", puzzleID).
		Where("answer_submissions.is_correct AND NOT answer_submissions.used_free_answer").
		Where("NOT teams.is_hidden").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count solves: %w", err)
	}
	return n, nil
}

// Deletes a team's submissions on a puzzle; onlyCorrect keeps the wrong guesses.
func DeleteSubmissions(ctx context.Context, db *gorm.DB, teamID uuid.UUID, puzzleID uuid.UUID, onlyCorrect bool) (int64, error) {
	q := db.WithContext(ctx).Where("team_id = ? AND puzzle_id = ?", teamID, puzzleID)
	if onlyCorrect {
		q = q.Where("is_correct")
	}
	result := q.Delete(&AnswerSubmission{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete submissions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

type ExtraGuessGrant struct {
	Model
	TeamID       uuid.UUID
	PuzzleID     uuid.UUID
	ExtraGuesses int
}

func (ExtraGuessGrant) TableName() string {
	return "extra_guess_grants"
}

func ExtraGuesses(ctx context.Context, db *gorm.DB, teamID uuid.UUID, puzzleID uuid.UUID) (int, error) {
	var extra []int
	err := db.WithContext(ctx).
		Model(&ExtraGuessGrant{}).
		Where("team_id = ? AND puzzle_id = ?", teamID, puzzleID).
		Pluck("extra_guesses", &extra).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load extra guesses: %w", err)
	}
	if len(extra) == 0 {
		return 0, nil
	}
	return extra[0], nil
}

// Adds delta to the grant, creating it if needed. With replace the grant is set to delta instead.
func GrantExtraGuesses(
	ctx context.Context,
	db *gorm.DB,
	teamID uuid.UUID,
	puzzleID uuid.UUID,
	delta int,
	replace bool,
) error {
	update := clause.Assignments(map[string]any{
		"extra_guesses": gorm.Expr("extra_guess_grants.extra_guesses + EXCLUDED.extra_guesses"),
	})
	if replace {
		update = clause.AssignmentColumns([]string{"extra_guesses"})
	}

	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "team_id"}, {Name: "puzzle_id"}},
		DoUpdates: update,
	}).Create(&ExtraGuessGrant{TeamID: teamID, PuzzleID: puzzleID, ExtraGuesses: delta}).Error
	if err != nil {
		return fmt.Errorf("failed to grant extra guesses: %w", err)
	}
	return nil
}

func DeleteExtraGuesses(ctx context.Context, db *gorm.DB, teamID uuid.UUID, puzzleID uuid.UUID) error {
	err := db.WithContext(ctx).
		Where("team_id = ? AND puzzle_id = ?", teamID, puzzleID).
		Delete(&ExtraGuessGrant{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete extra guesses: %w", err)
	}
	return nil
}

type Survey struct {
	Model
	TeamID            uuid.UUID
	PuzzleID          uuid.UUID
	Fun               int
	Difficulty        int
	Comments          string
	SubmittedDatetime time.Time
}

func (Survey) TableName() string {
	return "surveys"
}

// One survey per team and puzzle; resubmitting replaces the ratings.
func UpsertSurvey(ctx context.Context, db *gorm.DB, s *Survey) error {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "team_id"}, {Name: "puzzle_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fun", "difficulty", "comments", "submitted_datetime", "updated_at"}),
	}).Create(s).Error
	if err != nil {
		return fmt.Errorf("failed to save survey: %w", err)
	}
	return nil
}
