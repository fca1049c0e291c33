// Package main provides the entrypoint for the holdtrack Telegram bot and its
// health server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/holdtrack/holdtrack/internal/api"
	"github.com/holdtrack/holdtrack/internal/api/middleware"
	"github.com/holdtrack/holdtrack/internal/bot"
	"github.com/holdtrack/holdtrack/internal/chain/dexscreener"
	"github.com/holdtrack/holdtrack/internal/chain/helius"
	"github.com/holdtrack/holdtrack/internal/config"
	"github.com/holdtrack/holdtrack/internal/database"
	"github.com/holdtrack/holdtrack/internal/health"
	"github.com/holdtrack/holdtrack/internal/holder"
	"github.com/holdtrack/holdtrack/internal/logging"
	"github.com/holdtrack/holdtrack/internal/provider/resilience"
	"github.com/holdtrack/holdtrack/internal/telemetry"
	"github.com/holdtrack/holdtrack/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file read before the process environment")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, closer := logging.New(logging.Config{
		Service: config.ServiceName,
		Version: Version,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
	})

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting holdtrack bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("bot exited with error")
	}
	_ = closer.Close() //nolint:errcheck // nothing left to log to
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    config.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
	}, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	httpMetrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}
	healthMetrics, err := health.NewMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("init health metrics: %w", err)
	}

	registry := health.NewRegistry()
	var initFailures []string

	// Database. A failed connection leaves the slot empty and the bot degraded.
	pool := connectDatabase(ctx, cfg, log)
	var repo holder.Repository
	if pool != nil {
		defer pool.Close()
		registry.RegisterDatabase(database.NewPinger(pool))
		repo = holder.NewPostgresRepository(pool)
	} else {
		log.Warn().Msg("holder data is kept in memory until restart")
		initFailures = append(initFailures, "database")
		repo = holder.NewInMemoryRepository()
	}

	holders := holder.NewService(holder.ServiceConfig{
		Repository: repo,
		Logger:     log,
	})

	// Upstream providers
	providers := resilience.NewRegistry()
	job := worker.NewSnapshotJob(worker.SnapshotJobConfig{
		Config: worker.DefaultSnapshotConfig(cfg.TokenMint),
		Logger: log,
		Holders: helius.NewClient(helius.ClientConfig{
			BaseURL:  cfg.HeliusURL,
			APIKey:   cfg.HeliusAPIKey,
			Registry: providers,
			Decimals: cfg.TokenDecimals,
			Logger:   log,
		}),
		Prices: dexscreener.NewClient(dexscreener.ClientConfig{
			Registry: providers,
			Logger:   log,
		}),
		Recorder:  holders,
		Overrides: holders,
	})

	monitor := worker.NewMonitor(worker.MonitorConfig{
		Schedule: cfg.SnapshotSchedule,
		Runner:   job,
		Tasks: []worker.Task{
			worker.CleanupTask(holders, cfg.CleanupSchedule, cfg.SnapshotRetentionDays, log),
			worker.ValidationTask(holders, cfg.ValidateSchedule),
		},
		Logger: log,
	})
	if err := monitor.Start(ctx); err != nil {
		log.Error().Err(err).Msg("blockchain monitor failed to start")
	} else {
		defer monitor.Stop()
	}
	registry.RegisterMonitor(monitor)

	// Telegram. Without a client the bot and dispatcher slots stay empty.
	clientCfg := bot.DefaultClientConfig(cfg.BotToken)
	clientCfg.Logger = log
	client, err := bot.NewClient(clientCfg)
	if err != nil {
		log.Error().Err(err).Msg("telegram client unavailable")
		initFailures = append(initFailures, "telegram")
	} else {
		registry.RegisterBot(health.IdentityFunc(func(ctx context.Context) (health.Identity, error) {
			me, err := client.GetMe(ctx)
			if err != nil {
				return health.Identity{}, err
			}
			return health.Identity{ID: me.ID, Username: me.UserName}, nil
		}))

		dispatcher := bot.NewDispatcher(bot.DispatcherConfig{
			Client: client,
			Commands: bot.NewCommands(bot.CommandsConfig{
				Holders:          holders,
				Snapshots:        monitor,
				Providers:        providers,
				AdminUserIDs:     cfg.AdminUserIDs,
				LeaderboardLimit: cfg.LeaderboardLimit,
				MinimumHoldDays:  cfg.MinimumHoldDays,
				RetentionDays:    cfg.SnapshotRetentionDays,
				Logger:           log,
			}),
			Logger: log,
		})
		if err := dispatcher.Start(ctx); err != nil {
			return fmt.Errorf("start dispatcher: %w", err)
		}
		defer dispatcher.Stop()
		registry.RegisterDispatcher(dispatcher)
	}

	checker := health.NewChecker(health.CheckerConfig{
		Registry: registry,
		Timeout:  cfg.HealthCheckTimeout,
		Metrics:  healthMetrics,
		Logger:   log,
	})

	readiness := health.NewReadiness()
	stopReadiness := armReadiness(readiness, cfg.StartupDelay, initFailures, log)
	defer stopReadiness()

	server := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.Port),
		Handler: api.NewRouter(api.RouterConfig{
			Logger:      log,
			ServiceName: config.ServiceName,
			Metrics:     httpMetrics,
			Checker:     checker,
			Readiness:   readiness,
			RequireTLS:  cfg.RequireTLS,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// The aggregate waits up to one check timeout.
		WriteTimeout: cfg.HealthCheckTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down health server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info().Msg("bot stopped")
	return err
}

// armReadiness schedules the readiness flag unless a required subsystem failed
// to initialise, in which case the service stays NOT_READY until restarted.
func armReadiness(r *health.Readiness, delay time.Duration, failed []string, log zerolog.Logger) func() bool {
	if len(failed) > 0 {
		log.Warn().Strs("failed", failed).Msg("initialisation incomplete, readiness will not be reported")
		return func() bool { return false }
	}
	return r.ArmAfter(delay)
}

// connectDatabase opens the pool and applies migrations. It returns nil when
// either step fails.
func connectDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) *pgxpool.Pool {
	dbConfig := cfg.Database()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to database")
		return nil
	}

	if err := database.Migrate(ctx, pool); err != nil {
		log.Error().Err(err).Msg("failed to apply migrations")
		pool.Close()
		return nil
	}

	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")
	return pool
}
