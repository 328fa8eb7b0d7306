package models

import (
	"context"
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/puzzlehunt/huntserver/internal/config"
)

type Permissions struct {
	Team  bool `json:"team"`
	Staff bool `json:"staff"`
	Admin bool `json:"admin"`
}

// Team credentials share the team's id; staff credentials come from config and have no team.
type Auth struct {
	Token string // argon2id hash
	Note  string // will be logged nonsensitive, the staff name for staff keys
	Model
	Permissions Permissions `gorm:"type:jsonb;serializer:json"`
	Active      datatypes.Null[bool]
	TeamID      *uuid.UUID
}

func (Auth) TableName() string {
	return "auth"
}

func (a Auth) GetID() uuid.UUID {
	return a.ID
}

// Creates the credential a team logs in with, inside the registration transaction.
func CreateTeamAuth(ctx context.Context, tx *gorm.DB, teamID uuid.UUID, teamName string, token string) error {
	ctx, span := tracer.Start(ctx, "CreateTeamAuth")
	defer span.End()

	hash, err := argon2id.CreateHash(token, argon2id.DefaultParams)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error creating hash for team token")
		return fmt.Errorf("error creating hash for team token: %w", err)
	}

	auth := &Auth{
		Model:       Model{ID: teamID},
		Token:       hash,
		Note:        teamName,
		Permissions: Permissions{Team: true},
		Active:      NewNullFromData(true),
		TeamID:      &teamID,
	}
	if err := tx.WithContext(ctx).Create(auth).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create team auth")
		return fmt.Errorf("failed to create team auth: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created team auth")
	return nil
}

// Config is the authoritative list of staff keys
//
// 1. Upsert staff auth data
// 2. Disable staff keys not currently contained in the config, team keys are left alone
func LoadStaffKeysFromConfig(ctx context.Context, db *gorm.DB, staff []config.StaffKey) error {
	ctx, span := tracer.Start(ctx, "LoadStaffKeysFromConfig")
	defer span.End()

	db = db.WithContext(ctx)

	keysToUpsert := make([]*Auth, len(staff))
	keysInConfig := make([]uuid.UUID, len(staff))
	for i, member := range staff {
		hash, err := argon2id.CreateHash(member.Token, argon2id.DefaultParams)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "error creating hash for api key")
			span.SetAttributes(attribute.String("failedStaff", member.ID))
			return err
		}

		id, err := uuid.Parse(member.ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "error parsing staff key id")
			span.SetAttributes(attribute.String("failedStaff", member.ID))
			return err
		}

		newModel := Auth{
			Model: Model{
				ID: id,
			},
			Token:  hash,
			Note:   member.Name,
			Active: NewNull(member.Active),
			Permissions: Permissions{
				Staff: member.Permissions.Staff || member.Permissions.Admin,
				Admin: member.Permissions.Admin,
			},
		}

		keysToUpsert[i] = &newModel
		keysInConfig[i] = newModel.ID
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
		ctx, span := tracer.Start(ctx, "LoadStaffKeysFromConfig/Transaction")
		defer span.End()

		tx = tx.WithContext(ctx)

		if len(keysToUpsert) != 0 {
			span.AddEvent("upserting defined auths")
			result := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(keysToUpsert)
			if result.Error != nil {
				span.RecordError(result.Error)
				span.SetStatus(codes.Error, "failed to upsert defined auths")
				return fmt.Errorf("failed to upsert defined auths: %w", result.Error)
			}
		} else {
			span.AddEvent("no defined auths to upsert")
		}

		span.AddEvent("setting staff rows not in defined auth inactive")

		query := tx.Model(&Auth{}).Where("team_id IS NULL")
		if len(keysInConfig) != 0 {
			query = query.Where("id NOT IN ?", keysInConfig)
		}
		result := query.Updates(&Auth{Active: NewNullFromData(false)})
		if result.Error != nil {
			span.RecordError(result.Error)
			span.SetStatus(codes.Error, "failed to set staff rows not in defined auth inactive")
			return fmt.Errorf(
				"failed to set staff rows not in defined auth inactive: %w",
				result.Error,
			)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "updated auths")
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update auth")
		return fmt.Errorf("failed to update auth: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "updated auth")
	return nil
}
