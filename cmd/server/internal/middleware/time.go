package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/puzzlehunt/huntserver/internal/hunt"
)

// Sets a fixed time as the authoritative time for a request being received. Every hunt rule checked
// while serving the request uses this instant.
func Time(key string, clock hunt.Clock) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			_, span := tracer.Start(c.Request().Context(), "Time", trace.WithAttributes(
				attribute.String("key", key),
			))
			defer span.End()

			t := clock.Now()
			c.Set(key, t)

			span.AddEvent("set_time", trace.WithAttributes(
				attribute.String("time", t.Format(time.RFC3339Nano)),
			))

			span.RecordError(nil)
			span.SetStatus(codes.Ok, "set time")
			return next(c)
		}
	}
}

// RequestTime returns the instant set by Time, falling back to the wall clock.
func RequestTime(c echo.Context, key string) time.Time {
	if t, ok := c.Get(key).(time.Time); ok {
		return t
	}
	return time.Now()
}
