// Package staff serves the hint queue, the shortcut menu and the staff notification stream.
package staff

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/game"
	servermiddleware "github.com/puzzlehunt/huntserver/cmd/server/internal/middleware"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/notify"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/response"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/shortcuts"
	"github.com/puzzlehunt/huntserver/internal/types"
)

const name = "github.com/puzzlehunt/huntserver/cmd/server/internal/routes/staff"

var tracer = otel.Tracer(name)

type Handler struct {
	DB        *gorm.DB
	game      *game.Service
	hub       *notify.Hub
	factory   *requestctx.Factory
	shortcuts *shortcuts.Registry
}

func NewHandler(db *gorm.DB, svc *game.Service, hub *notify.Hub, factory *requestctx.Factory) Handler {
	return Handler{
		DB:        db,
		game:      svc,
		hub:       hub,
		factory:   factory,
		shortcuts: svc.Shortcuts(),
	}
}

func (h *Handler) AddRoutes(e *echo.Echo, middlewareHandler *servermiddleware.Handler) {
	staffGroup := e.Group(
		"/staff",
		middleware.BasicAuth(middlewareHandler.BasicAuthValidator),
		servermiddleware.HasPermissions("auth", &models.Permissions{Staff: true}),
	)

	staffGroup.GET("/hints/", h.OpenHints)

	hintGroup := staffGroup.Group(
		"/hint/:hint_id",
		servermiddleware.PopulateFromIDParam[models.Hint](middlewareHandler, "hint_id", "hint"),
	)
	hintGroup.POST("/claim/", h.ClaimHint)
	hintGroup.POST("/unclaim/", h.UnclaimHint)
	hintGroup.POST("/answer/", h.AnswerHint)

	staffGroup.GET("/shortcuts/", h.ListShortcuts)
	staffGroup.POST("/shortcuts/:name/", h.RunShortcut)

	staffGroup.GET("/ws/", h.Notifications)
}

func staffAuth(c echo.Context, span trace.Span) (*models.Auth, error) {
	auth, ok := c.Get("auth").(*models.Auth)
	if !ok {
		span.RecordError(srverr.ErrTypeAssertMismatch)
		span.SetStatus(codes.Error, fmt.Sprintf("auth: %s", srverr.ErrTypeAssertMismatch))
		return nil, response.InternalServerError
	}
	span.SetAttributes(attribute.String("staff", auth.Note))
	return auth, nil
}

func requestTime(c echo.Context, span trace.Span) (time.Time, error) {
	t, ok := c.Get("time").(time.Time)
	if !ok {
		span.RecordError(srverr.ErrTypeAssertMismatch)
		span.SetStatus(codes.Error, fmt.Sprintf("time: %s", srverr.ErrTypeAssertMismatch))
		return time.Time{}, response.InternalServerError
	}
	return t, nil
}

func populatedHint(c echo.Context, span trace.Span) (*models.Hint, error) {
	hint, ok := c.Get("hint").(*models.Hint)
	if !ok {
		span.RecordError(srverr.ErrTypeAssertMismatch)
		span.SetStatus(codes.Error, fmt.Sprintf("hint: %s", srverr.ErrTypeAssertMismatch))
		return nil, response.InternalServerError
	}
	span.SetAttributes(attribute.String("hint.id", hint.ID.String()))
	return hint, nil
}

func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	mapped := response.FromError(err)
	if mapped == response.InternalServerError {
		span.SetStatus(codes.Error, msg)
	} else {
		span.SetStatus(codes.Ok, msg)
	}
	return mapped
}

// binding resolves the optional team and puzzle selection of a shortcut request. Unknown ids and
// slugs are validation errors rather than silently unbound parameters.
func (h *Handler) binding(c echo.Context, sel types.ShortcutBinding, now time.Time) (shortcuts.Binding, error) {
	ctx := c.Request().Context()

	var team *models.Team
	if sel.TeamID != "" {
		id, err := uuid.Parse(sel.TeamID)
		if err != nil {
			return shortcuts.Binding{}, srverr.Validation("team_id", "Not a team id.")
		}
		team, err = models.ByID[models.Team](ctx, h.DB.WithContext(ctx), id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shortcuts.Binding{}, srverr.Validation("team_id", "No such team.")
		}
		if err != nil {
			return shortcuts.Binding{}, fmt.Errorf("failed to load team: %w", err)
		}
	}

	b := shortcuts.Binding{Now: now}
	rc := h.factory.New(team, now)
	if team != nil {
		b.Team = rc
	}

	if sel.Puzzle != "" {
		cat, err := rc.Catalog(ctx)
		if err != nil {
			return shortcuts.Binding{}, fmt.Errorf("failed to load catalog: %w", err)
		}
		p, ok := cat.BySlug(sel.Puzzle)
		if !ok {
			return shortcuts.Binding{}, srverr.Validation("puzzle", "No such puzzle.")
		}
		b.Puzzle = p
	}

	return b, nil
}
