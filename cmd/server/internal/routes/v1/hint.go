package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/game"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/response"
	"github.com/puzzlehunt/huntserver/internal/types"
)

func (h *Handler) Hints(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Hints")
	defer span.End()

	slug := c.Param("slug")
	span.SetAttributes(attribute.String("puzzle.slug", slug))

	rc, err := requestContext(c, span)
	if err != nil {
		return err
	}

	thread, err := h.game.PuzzleHints(ctx, rc, slug)
	if err != nil {
		return fail(span, err, "failed to list hints")
	}

	out := types.HintThread{
		Hints:                  response.Hints(thread.Hints),
		CanFollowup:            thread.CanFollowup,
		RelevantHintsRemaining: thread.RelevantRemaining,
		Error:                  thread.Error,
	}
	for i := range out.Hints {
		out.Hints[i].Puzzle = slug
	}

	span.SetAttributes(attribute.Int("hints", len(out.Hints)))
	span.SetStatus(codes.Ok, "listed hints")
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) RequestHint(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "RequestHint")
	defer span.End()

	slug := c.Param("slug")
	span.SetAttributes(attribute.String("puzzle.slug", slug))

	rc, err := requestContext(c, span)
	if err != nil {
		return err
	}

	var rdata game.HintRequest

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

	hint, err := h.game.RequestHint(ctx, rc, slug, rdata)
	if err != nil {
		return fail(span, err, "hint request not accepted")
	}

	out := response.Hint(hint)
	out.Puzzle = slug

	span.SetAttributes(attribute.String("hint.id", hint.ID.String()))
	span.SetStatus(codes.Ok, "filed hint")
	return c.JSON(http.StatusCreated, out)
}
