package middleware

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/response"
	"github.com/puzzlehunt/huntserver/internal/logger"
)

const name string = "github.com/puzzlehunt/huntserver/cmd/server/internal/middleware"

var tracer = otel.Tracer(name)

type Handler struct {
	DB      *gorm.DB
	Factory *requestctx.Factory
}

// decoyHash is compared against on every rejected login so a bad team id costs as much as a bad password.
var decoyHash = sync.OnceValue(func() string {
	hash, err := argon2id.CreateHash("huntserver decoy credential", argon2id.DefaultParams)
	if err != nil {
		logger.Logger.Error("failed to create decoy hash", "error", err)
	}
	return hash
})

func credentialKind(auth *models.Auth) string {
	switch {
	case auth.Permissions.Admin:
		return "admin"
	case auth.Permissions.Staff:
		return "staff"
	case auth.TeamID != nil:
		return "team"
	}
	return "unscoped"
}

// spendDecoyTime does the work a real login would have done but skipped.
func spendDecoyTime(ctx context.Context, db *gorm.DB, lookup bool) {
	ctx, span := tracer.Start(ctx, "spendDecoyTime")
	defer span.End()

	span.SetAttributes(attribute.Bool("lookup", lookup))

	if lookup {
		_, err := models.ByID[models.Auth](ctx, db, uuid.New())
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(err)
		}
	}
	if _, err := argon2id.ComparePasswordAndHash("not the password", decoyHash()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to compare decoy hash")
	}
}

// rehash stores the token under the current argon2id parameters when it was hashed with older ones.
func rehash(ctx context.Context, db *gorm.DB, auth *models.Auth, token string) error {
	ctx, span := tracer.Start(ctx, "rehash")
	defer span.End()

	hash, err := argon2id.CreateHash(token, argon2id.DefaultParams)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to hash token")
		return err
	}
	auth.Token = hash
	if err := db.WithContext(ctx).Save(auth).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save rehashed token")
		return err
	}
	return nil
}

// BasicAuthValidator checks a credential id and token. Teams log in with their team id; staff use the
// key id from config. The matched credential is stored as "auth".
func (h *Handler) BasicAuthValidator(rawID, token string, c echo.Context) (bool, error) {
	ctx, span := tracer.Start(c.Request().Context(), "BasicAuthValidator")
	defer span.End()

	db := h.DB.WithContext(ctx)
	span.SetAttributes(attribute.String("id.raw", rawID))

	id, err := uuid.Parse(rawID)
	if err != nil {
		span.AddEvent("malformed_id")
		spendDecoyTime(ctx, db, true)
		return false, nil
	}

	auth, err := models.ByID[models.Auth](ctx, db, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		span.AddEvent("unknown_id")
		spendDecoyTime(ctx, db, false)
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to look up credential")
		spendDecoyTime(ctx, db, false)
		return false, response.InternalServerError
	}

	kind := credentialKind(auth)
	span.SetAttributes(
		attribute.String("auth.kind", kind),
		attribute.String("note", auth.Note),
	)
	if auth.TeamID != nil {
		span.SetAttributes(attribute.String("team.id", auth.TeamID.String()))
	}

	matched, params, err := argon2id.CheckHash(token, auth.Token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check token")
		return false, response.InternalServerError
	}
	if !matched {
		span.AddEvent("wrong_token")
		return false, nil
	}

	if !auth.Active.Valid || !auth.Active.V {
		span.AddEvent("inactive")
		return false, nil
	}
	// a team credential must name the team it acts for
	if auth.Permissions.Team && auth.TeamID == nil {
		logger.Logger.WarnContext(ctx, "team credential without a team", "auth", auth.ID)
		span.AddEvent("team_credential_without_team")
		return false, nil
	}

	if !reflect.DeepEqual(params, argon2id.DefaultParams) {
		if err := rehash(ctx, db, auth, token); err != nil {
			return false, response.InternalServerError
		}
	}

	c.Set("auth", auth)
	span.SetStatus(codes.Ok, "authenticated "+kind)
	return true, nil
}
