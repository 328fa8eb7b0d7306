package v1

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/game"
	servermiddleware "github.com/puzzlehunt/huntserver/cmd/server/internal/middleware"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/notify"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/ratelimit"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/response"
	"github.com/puzzlehunt/huntserver/internal/config"
	"github.com/puzzlehunt/huntserver/internal/logger"
)

const name = "github.com/puzzlehunt/huntserver/cmd/server/internal/routes/v1"

var tracer = otel.Tracer(name)

type Handler struct {
	game   *game.Service
	hub    *notify.Hub
	config *config.Config
}

// Identifies the caller by credential, falling back to the client address on unauthenticated routes.
func identify(c echo.Context) (string, error) {
	if auth, ok := c.Get("auth").(*models.Auth); ok {
		return auth.ID.String(), nil
	}
	if ip := c.RealIP(); ip != "" {
		return ip, nil
	}
	return "", srverr.ErrTypeAssertMismatch
}

func NewRedisLimiter(
	redisHost string,
	limiterKey string,
	perMinute int64,
	failOpen bool,
	onlyMethod *string,
) middleware.RateLimiterConfig {
	l := logger.Logger
	var store middleware.RateLimiterStore

	redisAddr := redisHost + ":6379"
	l.Debug("Setting up rate limiter with Redis", "redis", redisAddr, "limiter", limiterKey)
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	rdConf := &ratelimit.RedisLimiterConfig{
		PerMinute:   perMinute,
		RedisClient: rdb,
		LimiterKey:  limiterKey,
		FailOpen:    failOpen,
	}
	store = ratelimit.NewRedisLimitStore(*rdConf)

	skipper := middleware.DefaultSkipper
	if onlyMethod != nil {
		skipper = func(c echo.Context) bool {
			return c.Request().Method != *onlyMethod
		}
	}

	return middleware.RateLimiterConfig{
		Skipper:             skipper,
		Store:               store,
		IdentifierExtractor: identify,
		ErrorHandler: func(context echo.Context, _ error) error {
			return context.JSON(http.StatusForbidden, nil)
		},
		DenyHandler: func(context echo.Context, _ string, _ error) error {
			return context.JSON(http.StatusTooManyRequests, nil)
		},
	}
}

func NewHandler(svc *game.Service, hub *notify.Hub, cfg *config.Config) Handler {
	return Handler{
		game:   svc,
		hub:    hub,
		config: cfg,
	}
}

func (h *Handler) rateLimited() bool {
	return h.config.RateLimit != nil && h.config.RateLimit.GlobalPerMinute > 0
}

func (h *Handler) AddRoutes(e *echo.Echo, middlewareHandler *servermiddleware.Handler) {
	l := logger.Logger

	v1Group := e.Group(
		"/v1",
		middleware.BasicAuth(middlewareHandler.BasicAuthValidator),
		servermiddleware.HasPermissions("auth", &models.Permissions{Team: true}),
		middlewareHandler.TeamContext("auth", "time", "rc"),
	)

	if h.rateLimited() {
		v1Group.Use(
			middleware.RateLimiterWithConfig(
				NewRedisLimiter(
					h.config.RateLimit.RedisHost,
					"global",
					h.config.RateLimit.GlobalPerMinute,
					h.config.RateLimit.FailOpen,
					nil,
				),
			),
		)
	} else {
		l.Warn("not configured to have a global rate limit")
	}

	v1Group.GET("/ping/", h.Ping)
	v1Group.GET("/puzzles/", h.Puzzles)

	puzzleGroup := v1Group.Group("/puzzle/:slug")

	if h.config.RateLimit != nil && h.config.RateLimit.SubmitPerMinute > 0 {
		post := http.MethodPost
		puzzleGroup.Use(
			middleware.RateLimiterWithConfig(
				NewRedisLimiter(
					h.config.RateLimit.RedisHost,
					"submit",
					h.config.RateLimit.SubmitPerMinute,
					h.config.RateLimit.FailOpen,
					&post,
				),
			),
		)
	} else {
		l.Warn("not configured to have a submit rate limit")
	}

	puzzleGroup.GET("/", h.Puzzle)
	puzzleGroup.POST("/solve/", h.Solve)
	puzzleGroup.POST("/free-answer/", h.FreeAnswer)
	puzzleGroup.GET("/hints/", h.Hints)
	puzzleGroup.POST("/hints/", h.RequestHint)
	puzzleGroup.POST("/survey/", h.Survey)

	teamGroup := v1Group.Group("/team")
	teamGroup.GET("/quota/", h.Quota)
	teamGroup.GET("/solves/", h.Solves)
	teamGroup.GET("/progress/", h.Progress)

	v1Group.GET("/leaderboard/", h.TeamLeaderboard)
	v1Group.GET("/ws/", h.Notifications)
}

// Unauthenticated routes. Registration shares the global limit keyed by client address.
func (h *Handler) AddPublicRoutes(e *echo.Echo) {
	register := e.Group("/register")
	if h.rateLimited() {
		register.Use(
			middleware.RateLimiterWithConfig(
				NewRedisLimiter(
					h.config.RateLimit.RedisHost,
					"register",
					h.config.RateLimit.GlobalPerMinute,
					h.config.RateLimit.FailOpen,
					nil,
				),
			),
		)
	}
	register.POST("/", h.Register)

	e.GET("/leaderboard/", h.PublicLeaderboard)
}

// Pulls the team view set by TeamContext.
func requestContext(c echo.Context, span trace.Span) (*requestctx.Context, error) {
	rc := servermiddleware.RequestContext(c, "rc")
	if rc == nil {
		span.RecordError(srverr.ErrTypeAssertMismatch)
		span.SetStatus(codes.Error, fmt.Sprintf("rc: %s", srverr.ErrTypeAssertMismatch))
		return nil, response.InternalServerError
	}
	return rc, nil
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

// Records a failed domain call on the span and maps it for the client. Denials are not span errors.
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
