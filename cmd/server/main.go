package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofrs/flock"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/mathieu-neron/chanwatch/internal/config"
	"github.com/mathieu-neron/chanwatch/internal/control"
	"github.com/mathieu-neron/chanwatch/internal/db"
	"github.com/mathieu-neron/chanwatch/internal/handler"
	"github.com/mathieu-neron/chanwatch/internal/middleware"
	"github.com/mathieu-neron/chanwatch/internal/repository"
	"github.com/mathieu-neron/chanwatch/internal/router"
	"github.com/mathieu-neron/chanwatch/internal/service"
	"github.com/mathieu-neron/chanwatch/internal/session"
	"github.com/mathieu-neron/chanwatch/pkg/hash"
)

func main() {
	cfg := config.Load()

	logCloser, logErr := middleware.InitLogger(cfg.LogLevel, "chanwatch", cfg.LogFile)
	defer logCloser.Close()
	log := middleware.Logger
	if logErr != nil {
		log.Warn().Err(logErr).Str("file", cfg.LogFile).Msg("logging to stdout only")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	lock := flock.New(cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatal().Err(err).Str("lock", cfg.LockFile).Msg("failed to acquire instance lock")
	}
	if !locked {
		log.Fatal().Str("lock", cfg.LockFile).Msg("another instance is already running")
	}
	defer lock.Unlock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("username", cfg.Username).
		Bool("password_set", cfg.Password != "").
		Str("auth_token", hash.Redact(cfg.AuthToken)).
		Str("primary", cfg.PrimaryChannel).
		Int("max_workers", cfg.MaxWorkers).
		Str("session_mode", cfg.SessionMode).
		Msg("chanwatch starting")

	browser, err := session.Dial(ctx, session.BrowserConfig{
		ControlURL:    cfg.BrowserURL,
		Bin:           cfg.BrowserBin,
		Headless:      cfg.BrowserHeadless,
		BaseURL:       cfg.ChannelBaseURL,
		BonusSelector: cfg.BonusSelector,
		AuthToken:     cfg.AuthToken,
		CallTimeout:   cfg.CallTimeout,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("browser unavailable")
	}
	defer browser.Close()

	var factory session.Factory = browser
	if cfg.SessionMode == "shared" {
		factory = session.NewShared(browser)
	}

	// Stats sinks: the text report always, redis and postgres when configured.
	sinks := []service.StatsSink{repository.NewStatsFile(cfg.StatsFile)}

	cache := service.NewCacheService(cfg.RedisURL, cfg.StatsInterval, log)
	defer cache.Close()
	sinks = append(sinks, cache)

	var pool *pgxpool.Pool
	var history handler.HistorySource
	if cfg.DatabaseURL != "" {
		pool = openHistory(ctx, cfg.DatabaseURL, log)
		if pool != nil {
			defer pool.Close()
			repo := repository.NewStatsRepo(pool)
			sinks = append(sinks, repo)
			history = repo
		}
	}

	orch := service.NewOrchestrator(service.Options{
		Primary:         cfg.PrimaryChannel,
		MaxWorkers:      cfg.MaxWorkers,
		StopGrace:       cfg.StopGrace,
		ShutdownTimeout: cfg.ShutdownTimeout,
		StatsInterval:   cfg.StatsInterval,
		StatsTimeout:    cfg.StatsTimeout,
		Worker: service.WorkerConfig{
			PollInterval:    cfg.PollInterval,
			MaxRetries:      cfg.MaxRetries,
			RetryDelay:      cfg.RetryDelay,
			CallTimeout:     cfg.CallTimeout,
			PointsPerPeriod: cfg.PointsPerPeriod,
			AccrualPeriod:   cfg.AccrualPeriod,
			ClaimReward:     cfg.ClaimReward,
		},
	}, factory, sinks, log)

	surface := control.NewSurface(control.DefaultTimeout, log)
	surface.OnExit(stop)
	surface.Attach(orch)

	handler.InitMetrics(orch.List, orch.Recorder().Flushes, pool)

	app := fiber.New(fiber.Config{
		AppName:      "chanwatch",
		ServerHeader: "chanwatch",
	})
	router.Setup(app, &router.Handlers{
		Control: handler.NewControlHandler(surface),
		Health:  handler.NewHealthHandler(orch, pool, cache.Client()),
		Stats:   handler.NewStatsHandler(orch.Recorder(), history),
	}, router.Options{CORSOrigins: cfg.CORSOrigins, Metrics: true})

	go func() {
		log.Info().Str("port", cfg.Port).Msg("control surface listening")
		if err := app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
			log.Error().Err(err).Msg("control surface stopped")
			stop()
		}
	}()

	if err := orch.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start orchestrator")
	}

	go func() {
		if err := control.RunConsole(ctx, surface, os.Stdin, os.Stdout); err != nil {
			log.Warn().Err(err).Msg("console closed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if err := orch.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("some workers did not stop in time")
	}
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Msg("control surface shutdown")
	}
	log.Info().Msg("bye")
}

// openHistory connects to postgres and prepares the stats table. Failures
// disable history instead of stopping the process.
func openHistory(ctx context.Context, url string, log zerolog.Logger) *pgxpool.Pool {
	pool, err := db.NewPool(ctx, url, log)
	if err != nil {
		log.Warn().Err(err).Msg("stats history disabled")
		return nil
	}

	repo := repository.NewStatsRepo(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Warn().Err(err).Msg("stats history disabled: schema")
		pool.Close()
		return nil
	}

	prev, err := repo.LatestByChannel(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not read previous stats")
	}
	for _, s := range prev {
		log.Info().
			Str("channel", s.Channel).
			Float64("total_points", s.TotalPoints).
			Float64("points_per_minute", s.PointsPerMinute).
			Msg("previous session")
	}
	return pool
}
