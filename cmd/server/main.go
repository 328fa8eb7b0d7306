package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	sloggorm "github.com/orandin/slog-gorm"
	"github.com/redis/go-redis/v9"
	otellib "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/game"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/leaderboard"
	servermiddleware "github.com/puzzlehunt/huntserver/cmd/server/internal/middleware"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/migrations"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/notify"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/routes"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/routes/staff"
	routesv1 "github.com/puzzlehunt/huntserver/cmd/server/internal/routes/v1"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/taskrunner"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/unlock"
	"github.com/puzzlehunt/huntserver/internal/config"
	"github.com/puzzlehunt/huntserver/internal/exitcode"
	"github.com/puzzlehunt/huntserver/internal/hunt"
	"github.com/puzzlehunt/huntserver/internal/logger"
	"github.com/puzzlehunt/huntserver/internal/otel"
)

const name string = "github.com/puzzlehunt/huntserver/cmd/server"

var tracer = otellib.Tracer(name)

type server struct {
	router       *echo.Echo
	config       *config.Config
	db           *gorm.DB
	taskRunner   *taskrunner.Client
	hub          *notify.Hub
	hubCancel    func()
	redis        *redis.Client
	otelShutdown func(context.Context) error
}

// connectDB opens the pool without touching the schema.
func connectDB(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	_, span := tracer.Start(ctx, "connectDB")
	defer span.End()

	gormLogger := slog.New(logger.Handler)

	sg := sloggorm.New(
		sloggorm.WithHandler(gormLogger.Handler()),
		sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
	)
	if cfg.Logging.Gorm.TraceQueries {
		sg = sloggorm.New(
			sloggorm.WithHandler(gormLogger.Handler()),
			sloggorm.WithTraceAll(),
			sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
		)
	}

	span.AddEvent("initialized gorm logging")

	db, err := gorm.Open(
		postgres.Open(cfg.PostgresDSN()),
		&gorm.Config{Logger: sg, TranslateError: true},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to initialize database")
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire underlying database connection")
		return nil, fmt.Errorf("failed to acquire underlying database connection: %w", err)
	}

	// Configure db connection pool
	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConnections)
	sqlDB.SetConnMaxLifetime(cfg.Postgres.ConnectionTTL)

	span.AddEvent("initialized database connection")

	err = db.Use(gormtracing.NewPlugin())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to add otel plugin to gorm")
		return nil, fmt.Errorf("failed to add otel plugin to gorm: %w", err)
	}

	span.AddEvent("added the otel plugin to gorm")
	span.SetStatus(codes.Ok, "connected to database")
	return db, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	ctx, span := tracer.Start(ctx, "openDB")
	defer span.End()

	db, err := connectDB(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to connect to database")
		return nil, err
	}

	err = migrations.Up(ctx, db)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to preform database migrations")
		return nil, fmt.Errorf("failed to perform database migrations: %w", err)
	}

	span.AddEvent("migrated database to latest version")
	span.SetStatus(codes.Ok, "opened database")
	return db, nil
}

func initServer(ctx context.Context) (*server, error) {
	server := new(server)

	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize server config: %w", err)
	}
	server.config = cfg

	shutdownOTel, err := otel.SetupOTelSDK(ctx, otel.Options{
		HuntTitle: cfg.Hunt.Title,
		UseOTLP:   cfg.Logging.UseOTLP,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTEL SDK: %w", err)
	}
	defer func() {
		// Something failed to initialize, make sure everything gets flushed to the server
		if server.otelShutdown == nil {
			otelShutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				time.Second*time.Duration(cfg.GracefulShutdownSecs),
			)
			defer cancel()

			if err = shutdownOTel(otelShutdownCtx); err != nil {
				logger.Logger.Error("failed to flush otel data", "error", err)
			}
		}
	}()

	ctx, span := tracer.Start(ctx, "initServer")
	defer span.End()

	logger.LogLevel.Set(slog.Level(cfg.Logging.App.Level))

	db, err := openDB(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open database")
		return nil, err
	}

	if err = models.LoadStaffKeysFromConfig(ctx, db, cfg.Staff); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load staff keys from config")
		return nil, fmt.Errorf("failed to load staff keys from config: %w", err)
	}

	span.AddEvent("loaded staff keys from config")

	rules := hunt.FromConfig(cfg.Hunt)

	mailCfg := cfg.Mail
	if mailCfg == nil {
		mailCfg = &config.MailConfig{}
	}
	mailer, err := notify.NewMailer(ctx, mailCfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct mailer")
		return nil, fmt.Errorf("failed to construct mailer: %w", err)
	}

	alertsCfg := cfg.Alerts
	if alertsCfg == nil {
		alertsCfg = &config.AlertsConfig{}
	}

	taskRunnerClient := taskrunner.Create()
	hub := notify.NewHub()
	dispatcher := notify.NewDispatcher(
		taskRunnerClient,
		hub,
		mailer,
		notify.NewWebhookAlerter(alertsCfg),
	)

	span.AddEvent("initialized notifications")

	ttl := 15 * time.Second
	if cfg.Leaderboard != nil {
		ttl = cfg.Leaderboard.CacheTTL
		if cfg.Leaderboard.RedisHost != "" {
			server.redis = redis.NewClient(&redis.Options{Addr: cfg.Leaderboard.RedisHost + ":6379"})
		}
	}
	board := leaderboard.NewCache(game.LeaderboardLoader(db, rules), server.redis, ttl)

	engine := unlock.NewEngine(unlock.ForScheme(rules.Scheme), models.UnlockStore{DB: db}, dispatcher, rules.Title)
	factory := &requestctx.Factory{
		Rules: rules,
		Source: requestctx.DBSource{
			DB:           db,
			IntroSlug:    rules.IntroRoundSlug,
			MetaMetaSlug: rules.MetaMetaSlug,
		},
		Computer: engine,
	}
	svc := game.New(db, rules, dispatcher, board, cfg.Domain)

	span.AddEvent("initialized game service")

	middlewareHandler := servermiddleware.Handler{DB: db, Factory: factory}
	v1Handler := routesv1.NewHandler(svc, hub, cfg)
	staffHandler := staff.NewHandler(db, svc, hub, factory)

	e, err := routes.BuildEcho(logger.Logger, hunt.SystemClock{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error building router")
		return nil, fmt.Errorf("error building router: %w", err)
	}

	span.AddEvent("created echo router")

	v1Handler.AddRoutes(e, &middlewareHandler)
	v1Handler.AddPublicRoutes(e)
	staffHandler.AddRoutes(e, &middlewareHandler)

	server.otelShutdown = shutdownOTel
	server.router = e
	server.db = db
	server.taskRunner = taskRunnerClient
	server.hub = hub

	return server, nil
}

func (s *server) Start(ctx context.Context) error {
	hubCtx, hubCancel := context.WithCancel(ctx)
	go s.hub.Run(hubCtx)
	s.hubCancel = hubCancel

	logger.Logger.Info("Starting services...", "title", s.config.Hunt.Title)

	err := s.router.Start(s.config.ListenAddress)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *server) Shutdown() error {
	var errs error

	ctx, cancelTimeout := context.WithTimeout(
		context.Background(),
		time.Second*time.Duration(s.config.GracefulShutdownSecs),
	)
	defer cancelTimeout()

	if err := s.router.Shutdown(ctx); err != nil {
		errs = errors.Join(errs, err)
	}

	// pending mail and alerts are flushed before the hub goes away
	if err := s.taskRunner.Shutdown(ctx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to shutdown taskRunner gracefully: %w", err))
	}

	if s.hubCancel != nil {
		s.hubCancel()
	}

	if s.redis != nil {
		errs = errors.Join(errs, s.redis.Close())
	}

	if s.otelShutdown != nil {
		errs = errors.Join(errs, s.otelShutdown(ctx))
	}

	return errs
}

func serve(ctx context.Context) error {
	server, err := initServer(ctx)
	if err != nil {
		return err
	}

	errch := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Got shutdown signal!")
		errch <- server.Shutdown()
		close(errch)
	}()

	if err := server.Start(ctx); err != nil {
		return err
	}

	if err := <-errch; err != nil {
		logger.Logger.Error("Error shutting down server", "error", err)
	}

	return nil
}

func runApp(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logger.Logger.Error(err.Error())

		var ee exitcode.ExitError
		if errors.As(err, &ee) {
			return ee.Code
		}
		return exitcode.Errored
	}

	return exitcode.Normal
}

func main() {
	ctx, cancelSignal := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)

	logger.InitSlog()

	code := runApp(ctx)
	cancelSignal()
	os.Exit(code)
}
