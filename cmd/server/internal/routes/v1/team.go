package v1

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/game"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/notify"
	"github.com/puzzlehunt/huntserver/internal/logger"
	"github.com/puzzlehunt/huntserver/internal/types"
)

func (h *Handler) Quota(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Quota")
	defer span.End()

	rc, err := requestContext(c, span)
	if err != nil {
		return err
	}

	q, err := h.game.TeamQuota(ctx, rc)
	if err != nil {
		return fail(span, err, "failed to compute quota")
	}

	span.SetStatus(codes.Ok, "computed quota")
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) Solves(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Solves")
	defer span.End()

	rc, err := requestContext(c, span)
	if err != nil {
		return err
	}

	solves, err := h.game.SolveLog(ctx, rc)
	if err != nil {
		return fail(span, err, "failed to list solves")
	}
	if solves == nil {
		solves = []game.SolveEntry{}
	}

	span.SetAttributes(attribute.Int("solves", len(solves)))
	span.SetStatus(codes.Ok, "listed solves")
	return c.JSON(http.StatusOK, solves)
}

func (h *Handler) Progress(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Progress")
	defer span.End()

	rc, err := requestContext(c, span)
	if err != nil {
		return err
	}

	p, err := h.game.Progress(ctx, rc)
	if err != nil {
		return fail(span, err, "failed to compute progress")
	}

	span.SetStatus(codes.Ok, "computed progress")
	return c.JSON(http.StatusOK, p)
}

// The viewing team sees its own row even when hidden.
func (h *Handler) TeamLeaderboard(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "TeamLeaderboard")
	defer span.End()

	rc, err := requestContext(c, span)
	if err != nil {
		return err
	}

	board, err := h.game.Leaderboard(ctx, rc.TeamID())
	if err != nil {
		return fail(span, err, "failed to build leaderboard")
	}

	span.SetStatus(codes.Ok, "built leaderboard")
	return c.JSON(http.StatusOK, board)
}

func (h *Handler) PublicLeaderboard(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "PublicLeaderboard")
	defer span.End()

	board, err := h.game.Leaderboard(ctx, uuid.Nil)
	if err != nil {
		return fail(span, err, "failed to build leaderboard")
	}

	span.SetStatus(codes.Ok, "built leaderboard")
	return c.JSON(http.StatusOK, board)
}

// Streams the team's unlock, solve and hint events until the client goes away.
func (h *Handler) Notifications(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Notifications")
	defer span.End()

	rc, err := requestContext(c, span)
	if err != nil {
		return err
	}

	group := notify.TeamGroup(rc.TeamID())
	span.SetAttributes(attribute.String("group", group))

	if err := h.hub.Serve(c.Response(), c.Request(), group); err != nil {
		// the upgrader already wrote the error response
		logger.Logger.DebugContext(ctx, "websocket upgrade failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Ok, "upgrade failed")
		return nil
	}

	span.SetStatus(codes.Ok, "connection closed")
	return nil
}

func (h *Handler) Register(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Register")
	defer span.End()

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	var rdata game.Registration

	span.AddEvent("parsing request body")
	if err := c.Bind(&rdata); err != nil {
		span.SetStatus(codes.Ok, "failed to parse request data")
		span.RecordError(err)
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.StringError("failed to parse request data"),
		)
	}

	span.AddEvent("validating request body")
	if err := c.Validate(rdata); err != nil {
		span.SetStatus(codes.Ok, "failed to validate request data")
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, types.ValidationError(err))
	}

	registered, err := h.game.RegisterTeam(ctx, rdata, now)
	if err != nil {
		return fail(span, err, "registration not accepted")
	}

	span.SetAttributes(attribute.String("team.id", registered.Team.ID.String()))
	span.SetStatus(codes.Ok, "registered team")
	return c.JSON(http.StatusCreated, types.RegisterResponse{
		TeamID:   registered.Team.ID,
		TeamName: registered.Team.TeamName,
		Token:    registered.Token,
	})
}
