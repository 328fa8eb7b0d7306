package staff

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/notify"
	"github.com/puzzlehunt/huntserver/internal/logger"
	"github.com/puzzlehunt/huntserver/internal/types"
)

// Lists the shortcuts runnable against the team_id and puzzle query params.
func (h *Handler) ListShortcuts(c echo.Context) error {
	_, span := tracer.Start(c.Request().Context(), "ListShortcuts")
	defer span.End()

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	var sel types.ShortcutBinding
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &sel); err != nil {
		span.SetStatus(codes.Ok, "failed to parse query")
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, types.StringError("failed to parse query"))
	}

	b, err := h.binding(c, sel, now)
	if err != nil {
		return fail(span, err, "failed to bind shortcut selection")
	}

	items := h.shortcuts.List(b)

	span.SetAttributes(attribute.Int("shortcuts", len(items)))
	span.SetStatus(codes.Ok, "listed shortcuts")
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) RunShortcut(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "RunShortcut")
	defer span.End()

	action := c.Param("name")
	span.SetAttributes(attribute.String("action", action))

	auth, err := staffAuth(c, span)
	if err != nil {
		return err
	}
	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	var sel types.ShortcutBinding

	span.AddEvent("parsing request body")
	if err := c.Bind(&sel); err != nil {
		span.SetStatus(codes.Ok, "failed to parse request data")
		span.RecordError(err)
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.StringError("failed to parse request data"),
		)
	}

	b, err := h.binding(c, sel, now)
	if err != nil {
		return fail(span, err, "failed to bind shortcut selection")
	}

	if err := h.game.RunShortcut(ctx, h.shortcuts, action, b, auth.Note); err != nil {
		return fail(span, err, "shortcut failed")
	}

	logger.Logger.InfoContext(ctx, "ran staff shortcut", "action", action, "staff", auth.Note, "team", sel.TeamID, "puzzle", sel.Puzzle)

	span.SetStatus(codes.Ok, "ran shortcut")
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Notifications(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Notifications")
	defer span.End()

	if _, err := staffAuth(c, span); err != nil {
		return err
	}

	if err := h.hub.Serve(c.Response(), c.Request(), notify.StaffGroup); err != nil {
		logger.Logger.DebugContext(ctx, "websocket upgrade failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Ok, "upgrade failed")
		return nil
	}

	span.SetStatus(codes.Ok, "connection closed")
	return nil
}
