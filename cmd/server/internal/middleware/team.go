package middleware

import (
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/response"
	"github.com/puzzlehunt/huntserver/internal/logger"
)

// Builds the request's team view from the auth under `authKey` and stores it under `contextName`.
// Credentials without a team get an anonymous view.
func (h *Handler) TeamContext(authKey string, timeKey string, contextName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracer.Start(c.Request().Context(), "TeamContext")
			defer span.End()

			auth, ok := c.Get(authKey).(*models.Auth)
			if !ok {
				span.RecordError(srverr.ErrTypeAssertMismatch)
				span.SetStatus(codes.Error, fmt.Sprintf("auth: %s", srverr.ErrTypeAssertMismatch))
				return response.InternalServerError
			}

			now := RequestTime(c, timeKey)

			var team *models.Team
			if auth.TeamID != nil {
				span.SetAttributes(attribute.String("team.id", auth.TeamID.String()))

				var err error
				team, err = models.ByID[models.Team](ctx, h.DB.WithContext(ctx), *auth.TeamID)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, "failed to load team")
					if errors.Is(err, gorm.ErrRecordNotFound) {
						logger.Logger.WarnContext(ctx, "credential for missing team", "auth", auth.ID)
						return response.NotFoundError
					}
					return response.InternalServerError
				}
			}

			c.Set(contextName, h.Factory.New(team, now))

			span.RecordError(nil)
			span.SetStatus(codes.Ok, "built team context")
			return next(c)
		}
	}
}

// Team view for the current request, nil when TeamContext did not run.
func RequestContext(c echo.Context, contextName string) *requestctx.Context {
	rc, _ := c.Get(contextName).(*requestctx.Context)
	return rc
}
