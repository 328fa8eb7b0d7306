package staff

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/game"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/response"
	"github.com/puzzlehunt/huntserver/internal/types"
)

func (h *Handler) OpenHints(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "OpenHints")
	defer span.End()

	queue, err := h.game.OpenHints(ctx)
	if err != nil {
		return fail(span, err, "failed to list open hints")
	}

	span.SetAttributes(attribute.Int("open", len(queue.Open)), attribute.Int64("unclaimed", queue.Unclaimed))
	span.SetStatus(codes.Ok, "listed open hints")
	return c.JSON(http.StatusOK, types.StaffHints{
		Unclaimed: queue.Unclaimed,
		Open:      response.Hints(queue.Open),
	})
}

func (h *Handler) ClaimHint(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ClaimHint")
	defer span.End()

	auth, err := staffAuth(c, span)
	if err != nil {
		return err
	}
	hint, err := populatedHint(c, span)
	if err != nil {
		return err
	}
	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	claimed, err := h.game.ClaimHint(ctx, hint.ID, auth.Note, now)
	if err != nil {
		return fail(span, err, "claim not accepted")
	}

	span.SetStatus(codes.Ok, "claimed hint")
	return c.JSON(http.StatusOK, response.Hint(claimed))
}

func (h *Handler) UnclaimHint(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "UnclaimHint")
	defer span.End()

	if _, err := staffAuth(c, span); err != nil {
		return err
	}
	hint, err := populatedHint(c, span)
	if err != nil {
		return err
	}

	released, err := h.game.UnclaimHint(ctx, hint.ID)
	if err != nil {
		return fail(span, err, "unclaim not accepted")
	}

	span.SetStatus(codes.Ok, "released hint")
	return c.JSON(http.StatusOK, response.Hint(released))
}

func (h *Handler) AnswerHint(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "AnswerHint")
	defer span.End()

	auth, err := staffAuth(c, span)
	if err != nil {
		return err
	}
	hint, err := populatedHint(c, span)
	if err != nil {
		return err
	}
	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	var rdata game.HintAnswer

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

	answered, err := h.game.AnswerHint(ctx, hint.ID, rdata, auth.Note, now)
	if err != nil {
		return fail(span, err, "answer not accepted")
	}

	span.SetAttributes(attribute.String("status", string(answered.Status)))
	span.SetStatus(codes.Ok, "answered hint")
	return c.JSON(http.StatusOK, response.Hint(answered))
}
