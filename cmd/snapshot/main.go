// Package main provides a one-shot holder snapshot for backfills and manual runs.
// It reads the same configuration as the bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/holdtrack/holdtrack/internal/chain"
	"github.com/holdtrack/holdtrack/internal/chain/dexscreener"
	"github.com/holdtrack/holdtrack/internal/chain/helius"
	"github.com/holdtrack/holdtrack/internal/config"
	"github.com/holdtrack/holdtrack/internal/database"
	"github.com/holdtrack/holdtrack/internal/holder"
	"github.com/holdtrack/holdtrack/internal/logging"
	"github.com/holdtrack/holdtrack/internal/provider/resilience"
	"github.com/holdtrack/holdtrack/internal/worker"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file read before the process environment")
	date := pflag.String("date", "", "record the snapshot under this UTC date (YYYY-MM-DD) instead of today; dates before the latest snapshot are rejected")
	dryRun := pflag.Bool("dry-run", false, "fetch holders and price without writing to the database")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	var on time.Time
	if *date != "" {
		on, err = time.Parse(time.DateOnly, *date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "--date: %v\n", err)
			os.Exit(2)
		}
	}

	log, closer := logging.New(logging.Config{
		Service: "holdtrack-snapshot",
		Version: Version,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, log, on, *dryRun)
	stop()
	_ = closer.Close() //nolint:errcheck // best effort
	if err != nil {
		log.Error().Err(err).Msg("snapshot failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, on time.Time, dryRun bool) error {
	var (
		recorder  worker.Recorder
		overrides worker.PriceOverrides
	)
	if dryRun {
		recorder = dryRunRecorder{log: log}
	} else {
		pool, err := database.Connect(ctx, cfg.Database())
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		svc := holder.NewService(holder.ServiceConfig{
			Repository: holder.NewPostgresRepository(pool),
			Logger:     log,
		})
		recorder, overrides = svc, svc
	}
	if !on.IsZero() {
		recorder = datedRecorder{Recorder: recorder, date: on}
	}

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
		Recorder:  recorder,
		Overrides: overrides,
	})

	result := job.Run(ctx)
	for _, st := range providers.All() {
		log.Debug().
			Str("provider", st.Name).
			Str("circuit", st.State.String()).
			Uint32("failures", st.Counts.TotalFailures).
			Msg("provider status")
	}
	return result.Err
}

// datedRecorder records every snapshot under a fixed date.
type datedRecorder struct {
	worker.Recorder
	date time.Time
}

func (r datedRecorder) RecordSnapshot(ctx context.Context, _ time.Time, balances []chain.Balance, priceUSD float64) (*holder.SnapshotSummary, error) {
	return r.Recorder.RecordSnapshot(ctx, r.date, balances, priceUSD)
}

// dryRunRecorder logs what would be recorded.
type dryRunRecorder struct {
	log zerolog.Logger
}

func (r dryRunRecorder) RecordSnapshot(_ context.Context, date time.Time, balances []chain.Balance, priceUSD float64) (*holder.SnapshotSummary, error) {
	var total float64
	for _, b := range balances {
		total += b.Amount
	}
	r.log.Info().
		Str("date", date.UTC().Format(time.DateOnly)).
		Int("holders", len(balances)).
		Float64("tokens", total).
		Float64("price_usd", priceUSD).
		Msg("dry run, nothing written")

	return &holder.SnapshotSummary{
		Date:     date,
		PriceUSD: priceUSD,
		Holders:  len(balances),
	}, nil
}
