// Package worker runs the holder snapshot job on a schedule.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/holdtrack/holdtrack/internal/chain"
	"github.com/holdtrack/holdtrack/internal/holder"
)

// SnapshotConfig holds configuration for the snapshot job.
type SnapshotConfig struct {
	// Mint is the token contract address whose holders are tracked.
	Mint string

	// Timeout bounds a whole run, provider calls and database writes included.
	// Default: 5 minutes
	Timeout time.Duration
}

// DefaultSnapshotConfig returns the default snapshot configuration for mint.
func DefaultSnapshotConfig(mint string) SnapshotConfig {
	return SnapshotConfig{
		Mint:    mint,
		Timeout: 5 * time.Minute,
	}
}

// Recorder persists one day's balances.
type Recorder interface {
	RecordSnapshot(ctx context.Context, date time.Time, balances []chain.Balance, priceUSD float64) (*holder.SnapshotSummary, error)
}

// PriceOverrides supplies a manual price that replaces the market price until a
// snapshot has been recorded with it.
type PriceOverrides interface {
	PriceOverride(ctx context.Context) (float64, bool, error)
	ClearPriceOverride(ctx context.Context) error
}

// SnapshotJobConfig holds dependencies for creating a SnapshotJob.
type SnapshotJobConfig struct {
	Config   SnapshotConfig
	Logger   zerolog.Logger
	Holders  chain.HolderSource
	Prices   chain.PriceSource
	Recorder Recorder
	// Overrides is optional.
	Overrides PriceOverrides
	// Now defaults to time.Now.
	Now func() time.Time
}

// SnapshotJob fetches the current price and holder list and records them.
type SnapshotJob struct {
	config   SnapshotConfig
	logger   zerolog.Logger
	holders  chain.HolderSource
	prices   chain.PriceSource
	recorder  Recorder
	overrides PriceOverrides
	now       func() time.Time
	metrics   *SnapshotMetrics
}

// SnapshotMetrics tracks snapshot job statistics.
type SnapshotMetrics struct {
	mu sync.RWMutex

	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64
	PriceFailures  int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	LastHolders     int
	LastError       string
}

// SnapshotResult contains the outcome of one run.
type SnapshotResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	PriceUSD float64
	// PriceOverridden is set when PriceUSD came from a manual override.
	PriceOverridden bool
	// PriceErr is set when the price lookup failed and the run continued at price 0.
	PriceErr error

	Summary *holder.SnapshotSummary
	// Err is set when the run did not record a snapshot.
	Err error
}

// OK reports whether a snapshot was recorded.
func (r *SnapshotResult) OK() bool {
	return r.Err == nil
}

// NewSnapshotJob creates a new snapshot job.
func NewSnapshotJob(cfg SnapshotJobConfig) *SnapshotJob {
	config := cfg.Config
	if config.Timeout <= 0 {
		config.Timeout = DefaultSnapshotConfig(config.Mint).Timeout
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &SnapshotJob{
		config:   config,
		logger:   cfg.Logger.With().Str("job", "snapshot").Logger(),
		holders:  cfg.Holders,
		prices:   cfg.Prices,
		recorder:  cfg.Recorder,
		overrides: cfg.Overrides,
		now:       now,
		metrics:   &SnapshotMetrics{},
	}
}

// Run executes one snapshot. A failed price lookup is tolerated. A failed holder
// lookup or write aborts the run and is reported in the result.
func (j *SnapshotJob) Run(ctx context.Context) *SnapshotResult {
	result := &SnapshotResult{StartTime: j.now()}

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	j.logger.Info().Str("mint", j.config.Mint).Msg("starting snapshot")

	price, overridden := j.manualPrice(ctx)
	if !overridden {
		var err error
		price, err = j.prices.FetchPriceUSD(ctx, j.config.Mint)
		if err != nil {
			result.PriceErr = err
			j.logger.Warn().Err(err).Msg("price lookup failed, recording at zero")
			price = 0
		}
	}
	result.PriceUSD = price
	result.PriceOverridden = overridden

	balances, err := j.holders.FetchHolders(ctx, j.config.Mint)
	if err != nil {
		result.Err = fmt.Errorf("fetch holders: %w", err)
	} else {
		result.Summary, err = j.recorder.RecordSnapshot(ctx, result.StartTime, balances, price)
		if err != nil {
			result.Err = fmt.Errorf("record snapshot: %w", err)
		} else if overridden {
			if err := j.overrides.ClearPriceOverride(ctx); err != nil {
				j.logger.Error().Err(err).Msg("failed to clear price override")
			}
		}
	}

	result.EndTime = j.now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	j.updateMetrics(result)

	if result.Err != nil {
		j.logger.Error().Err(result.Err).Dur("duration", result.Duration).Msg("snapshot failed")
		return result
	}

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("holders", result.Summary.Holders).
		Int("added", result.Summary.Added).
		Int("removed", result.Summary.Removed).
		Float64("price_usd", price).
		Msg("snapshot completed")

	return result
}

// manualPrice returns the override price, if one is set. Lookup errors fall back
// to the market price.
func (j *SnapshotJob) manualPrice(ctx context.Context) (float64, bool) {
	if j.overrides == nil {
		return 0, false
	}
	price, ok, err := j.overrides.PriceOverride(ctx)
	if err != nil {
		j.logger.Warn().Err(err).Msg("price override lookup failed, using market price")
		return 0, false
	}
	if ok {
		j.logger.Info().Float64("price_usd", price).Msg("using manual price override")
	}
	return price, ok
}

func (j *SnapshotJob) updateMetrics(r *SnapshotResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	if r.PriceErr != nil {
		j.metrics.PriceFailures++
	}
	j.metrics.LastRunAt = r.EndTime
	j.metrics.LastRunDuration = r.Duration

	if r.Err != nil {
		j.metrics.FailedRuns++
		j.metrics.LastError = r.Err.Error()
		return
	}
	j.metrics.SuccessfulRuns++
	j.metrics.LastHolders = r.Summary.Holders
	j.metrics.LastError = ""
}

// GetMetrics returns a copy of the current metrics.
func (j *SnapshotJob) GetMetrics() SnapshotMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return SnapshotMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		SuccessfulRuns:  j.metrics.SuccessfulRuns,
		FailedRuns:      j.metrics.FailedRuns,
		PriceFailures:   j.metrics.PriceFailures,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		LastHolders:     j.metrics.LastHolders,
		LastError:       j.metrics.LastError,
	}
}
