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
	"gorm.io/gorm/clause"
)

type Team struct {
	Model
	TeamName                string
	CreationTime            time.Time
	StartOffset             time.Duration // stored in nanoseconds
	TotalHintsAwarded       int
	TotalFreeAnswersAwarded int
	LastSolveTime           *time.Time
	IsPrereleaseTestsolver  bool
	IsHidden                bool
	Members                 []TeamMember `gorm:"foreignKey:TeamID"`
}

func (Team) TableName() string {
	return "teams"
}

type TeamMember struct {
	Model
	TeamID uuid.UUID
	Name   string
	Email  string
}

func (TeamMember) TableName() string {
	return "team_members"
}

// Creates the team and its members. A taken name surfaces as gorm.ErrDuplicatedKey.
func CreateTeam(ctx context.Context, tx *gorm.DB, team *Team) error {
	ctx, span := tracer.Start(ctx, "CreateTeam")
	defer span.End()

	span.SetAttributes(attribute.Int("members", len(team.Members)))

	if err := tx.WithContext(ctx).Create(team).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create team")
		return fmt.Errorf("failed to create team: %w", err)
	}

	span.SetAttributes(attribute.String("team.id", team.ID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created team")
	return nil
}

func TeamByName(ctx context.Context, db *gorm.DB, name string) (*Team, error) {
	var team Team
	if err := db.WithContext(ctx).Where("team_name = ?", name).First(&team).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

func TeamEmails(ctx context.Context, db *gorm.DB, teamID uuid.UUID) ([]string, error) {
	var emails []string
	err := db.WithContext(ctx).
		Model(&TeamMember{}).
		Where("team_id = ? AND email <> ''", teamID).
		Order("created_at").
		Pluck("email", &emails).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get team emails: %w", err)
	}
	return emails, nil
}

// Targets one team, or every team when teamID is nil.
func scopeTeam(db *gorm.DB, teamID *uuid.UUID) *gorm.DB {
	if teamID == nil {
		return db.Where("1 = 1")
	}
	return db.Where("id = ?", *teamID)
}

// Adds to the staff-awarded counters.
func AdjustAwards(ctx context.Context, db *gorm.DB, teamID *uuid.UUID, hints int, freeAnswers int) (int64, error) {
	ctx, span := tracer.Start(ctx, "AdjustAwards")
	defer span.End()

	span.SetAttributes(attribute.Int("hints", hints), attribute.Int("free_answers", freeAnswers))

	result := scopeTeam(db.WithContext(ctx).Model(&Team{}), teamID).Updates(map[string]any{
		"total_hints_awarded":        gorm.Expr("total_hints_awarded + ?", hints),
		"total_free_answers_awarded": gorm.Expr("total_free_answers_awarded + ?", freeAnswers),
	})
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to adjust awards")
		return 0, fmt.Errorf("failed to adjust awards: %w", result.Error)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "adjusted awards")
	return result.RowsAffected, nil
}

// Overwrites one counter: column is total_hints_awarded or total_free_answers_awarded.
func SetAward(ctx context.Context, db *gorm.DB, teamID uuid.UUID, column string, value int) error {
	if column != "total_hints_awarded" && column != "total_free_answers_awarded" {
		return fmt.Errorf("not an award column: %s", column)
	}
	err := db.WithContext(ctx).Model(&Team{}).Where("id = ?", teamID).Update(column, value).Error
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	return nil
}

var ErrNoFreeAnswerToConvert = errors.New("no free answer to convert")

// Trades one awarded free answer for one awarded hint. Callers run it in the hint request transaction.
// LockTeam reads the team row FOR UPDATE. Everything that spends a team's hint or free answer
// credits takes this lock first, so balance checks and the writes they allow are serialized per team.
func LockTeam(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) (*Team, error) {
	ctx, span := tracer.Start(ctx, "LockTeam")
	defer span.End()

	span.SetAttributes(attribute.String("team.id", teamID.String()))

	var team Team
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", teamID).
		First(&team).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to lock team")
		return nil, fmt.Errorf("failed to lock team: %w", err)
	}

	span.SetStatus(codes.Ok, "locked team")
	return &team, nil
}

func ConvertFreeAnswerToHint(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "ConvertFreeAnswerToHint")
	defer span.End()

	result := tx.WithContext(ctx).Model(&Team{}).Where("id = ?", teamID).Updates(map[string]any{
		"total_hints_awarded":        gorm.Expr("total_hints_awarded + 1"),
		"total_free_answers_awarded": gorm.Expr("total_free_answers_awarded - 1"),
	})
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to convert free answer")
		return fmt.Errorf("failed to convert free answer: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		span.SetStatus(codes.Error, "team not found")
		return ErrNoFreeAnswerToConvert
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "converted free answer")
	return nil
}

func SetLastSolveTime(ctx context.Context, tx *gorm.DB, teamID uuid.UUID, at time.Time) error {
	err := tx.WithContext(ctx).Model(&Team{}).Where("id = ?", teamID).Update("last_solve_time", at).Error
	if err != nil {
		return fmt.Errorf("failed to set last solve time: %w", err)
	}
	return nil
}

func SetStartOffset(ctx context.Context, db *gorm.DB, teamID uuid.UUID, offset time.Duration) error {
	err := db.WithContext(ctx).Model(&Team{}).Where("id = ?", teamID).Update("start_offset", offset).Error
	if err != nil {
		return fmt.Errorf("failed to set start offset: %w", err)
	}
	return nil
}

// Flips the prerelease flag and returns the new value.
func TogglePrerelease(ctx context.Context, db *gorm.DB, teamID uuid.UUID) (bool, error) {
	var team Team
	err := db.WithContext(ctx).
		Model(&team).
		Clauses(returning("is_prerelease_testsolver")).
		Where("id = ?", teamID).
		Update("is_prerelease_testsolver", gorm.Expr("NOT is_prerelease_testsolver")).Error
	if err != nil {
		return false, fmt.Errorf("failed to toggle prerelease: %w", err)
	}
	return team.IsPrereleaseTestsolver, nil
}

// Creates count teams without members named after a prefix, used to seed a hunt.
func CreateEmptyTeams(ctx context.Context, db *gorm.DB, prefix string, count int, now time.Time) ([]Team, error) {
	ctx, span := tracer.Start(ctx, "CreateEmptyTeams")
	defer span.End()

	teams := make([]Team, 0, count)
	for i := range count {
		teams = append(teams, Team{
			TeamName:     fmt.Sprintf("%s%d", prefix, i+1),
			CreationTime: now,
		})
	}
	if len(teams) == 0 {
		return teams, nil
	}

	if err := db.WithContext(ctx).Create(&teams).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create empty teams")
		return nil, fmt.Errorf("failed to create empty teams: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created empty teams")
	return teams, nil
}
