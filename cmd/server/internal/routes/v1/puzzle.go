package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/game"
	"github.com/puzzlehunt/huntserver/internal/types"
)

func (h *Handler) Puzzles(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Puzzles")
	defer span.End()

	rc, err := requestContext(c, span)
	if err != nil {
		return err
	}

	puzzles, err := h.game.Puzzles(ctx, rc)
	if err != nil {
		return fail(span, err, "failed to list puzzles")
	}
	if puzzles == nil {
		puzzles = []game.PuzzleStatus{}
	}

	span.SetAttributes(attribute.Int("puzzles", len(puzzles)))
	span.SetStatus(codes.Ok, "listed puzzles")
	return c.JSON(http.StatusOK, puzzles)
}

func (h *Handler) Puzzle(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Puzzle")
	defer span.End()

	slug := c.Param("slug")
	span.SetAttributes(attribute.String("puzzle.slug", slug))

	rc, err := requestContext(c, span)
	if err != nil {
		return err
	}

	status, err := h.game.ViewPuzzle(ctx, rc, slug)
	if err != nil {
		return fail(span, err, "failed to view puzzle")
	}

	span.SetStatus(codes.Ok, "viewed puzzle")
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) Solve(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Solve")
	defer span.End()

	slug := c.Param("slug")
	span.SetAttributes(attribute.String("puzzle.slug", slug))

	rc, err := requestContext(c, span)
	if err != nil {
		return err
	}

	var rdata types.SolveRequest

	span.AddEvent("parsing request body")
	if err := c.Bind(&rdata); err != nil {
		span.SetStatus(codes.Ok, "failed to parse request data")
		span.RecordError(err)
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.StringError("failed to parse request data"),
		)
	}

	result, err := h.game.SubmitAnswer(ctx, rc, slug, rdata.Answer)
	if err != nil {
		return fail(span, err, "answer not accepted")
	}

	span.SetAttributes(attribute.String("status", string(result.Status)))
	span.SetStatus(codes.Ok, "checked answer")
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) FreeAnswer(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "FreeAnswer")
	defer span.End()

	slug := c.Param("slug")
	span.SetAttributes(attribute.String("puzzle.slug", slug))

	rc, err := requestContext(c, span)
	if err != nil {
		return err
	}

	result, err := h.game.UseFreeAnswer(ctx, rc, slug)
	if err != nil {
		return fail(span, err, "free answer not accepted")
	}

	span.SetStatus(codes.Ok, "used free answer")
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Survey(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Survey")
	defer span.End()

	slug := c.Param("slug")
	span.SetAttributes(attribute.String("puzzle.slug", slug))

	rc, err := requestContext(c, span)
	if err != nil {
		return err
	}

	var rdata game.SurveyInput

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

	if err := h.game.SubmitSurvey(ctx, rc, slug, rdata); err != nil {
		return fail(span, err, "survey not accepted")
	}

	span.SetStatus(codes.Ok, "recorded survey")
	return c.NoContent(http.StatusNoContent)
}
