package holder

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/holdtrack/holdtrack/internal/chain"
)

// statsTopN is how many leaders Stats includes.
const statsTopN = 5

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service provides holder tracking business logic.
type Service struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

// NewService creates a new holder service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo: cfg.Repository,
		log:  cfg.Logger.With().Str("component", "holder").Logger(),
		now:  now,
	}
}

// RecordSnapshot stores the balances observed on date at the given USD price.
// Non-positive balances and malformed owners are dropped, which ends their holding period.
func (s *Service) RecordSnapshot(ctx context.Context, date time.Time, balances []chain.Balance, priceUSD float64) (*SnapshotSummary, error) {
	positions := make([]Position, 0, len(balances))
	for _, b := range balances {
		if b.Amount <= 0 {
			continue
		}
		if err := chain.ValidateWallet(b.Owner); err != nil {
			s.log.Warn().Str("owner", b.Owner).Msg("skipping malformed owner")
			continue
		}
		positions = append(positions, Position{
			WalletAddress: b.Owner,
			TokenBalance:  b.Amount,
			USDValue:      b.Amount * priceUSD,
		})
	}

	if len(positions) == 0 {
		return nil, ErrEmptySnapshot
	}

	summary, err := s.repo.ApplySnapshot(ctx, date, positions)
	if err != nil {
		return nil, fmt.Errorf("apply snapshot: %w", err)
	}
	summary.PriceUSD = priceUSD

	s.log.Info().
		Time("date", summary.Date).
		Int("holders", summary.Holders).
		Int("added", summary.Added).
		Int("removed", summary.Removed).
		Float64("price_usd", priceUSD).
		Msg("snapshot recorded")

	return summary, nil
}

// Leaderboard returns the top limit holders at or above the USD threshold.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]Entry, error) {
	threshold, err := s.Threshold(ctx)
	if err != nil {
		return nil, err
	}

	holders, err := s.repo.List(ctx, ListOptions{MinUSD: threshold, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}

	return s.rank(holders), nil
}

// Rank returns the entry for wallet. Holders below the threshold come back with Rank 0.
func (s *Service) Rank(ctx context.Context, wallet string) (*Entry, error) {
	if err := chain.ValidateWallet(wallet); err != nil {
		return nil, err
	}

	h, err := s.repo.Get(ctx, wallet)
	if err != nil {
		return nil, err
	}

	threshold, err := s.Threshold(ctx)
	if err != nil {
		return nil, err
	}

	entry := &Entry{Holder: *h, DaysHeld: h.DaysHeld(s.now())}
	if h.USDValue < threshold {
		return entry, nil
	}

	qualified, err := s.repo.List(ctx, ListOptions{MinUSD: threshold})
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	for i, q := range qualified {
		if q.WalletAddress == wallet {
			entry.Rank = i + 1
			break
		}
	}

	return entry, nil
}

// Stats summarises all current holders.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	threshold, err := s.Threshold(ctx)
	if err != nil {
		return nil, err
	}

	all, err := s.repo.List(ctx, ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}

	latest, err := s.repo.LatestSnapshotDate(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		TotalHolders: len(all),
		ThresholdUSD: threshold,
		LastSnapshot: latest,
	}

	qualified := make([]*Holder, 0, len(all))
	for _, h := range all {
		st.TotalTokens += h.TokenBalance
		st.TotalUSD += h.USDValue
		if h.USDValue >= threshold {
			qualified = append(qualified, h)
		}
	}
	st.QualifiedHolders = len(qualified)

	if len(qualified) > statsTopN {
		qualified = qualified[:statsTopN]
	}
	st.Top = s.rank(qualified)

	return st, nil
}

// Threshold returns the minimum USD value for leaderboard ranking.
func (s *Service) Threshold(ctx context.Context) (float64, error) {
	raw, ok, err := s.repo.GetSetting(ctx, SettingMinimumUSD)
	if err != nil {
		return 0, fmt.Errorf("get threshold: %w", err)
	}
	if !ok {
		return 0, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.log.Warn().Str("value", raw).Msg("stored threshold is not a number, using 0")
		return 0, nil
	}
	return v, nil
}

// SetThreshold updates the minimum USD value for leaderboard ranking.
func (s *Service) SetThreshold(ctx context.Context, usd float64) error {
	if usd < 0 || math.IsNaN(usd) || math.IsInf(usd, 0) {
		return ErrInvalidThreshold
	}

	if err := s.repo.SetSetting(ctx, SettingMinimumUSD, strconv.FormatFloat(usd, 'f', -1, 64)); err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}

	s.log.Info().Float64("threshold_usd", usd).Msg("threshold updated")
	return nil
}

// Eligible returns ranked holders that have held for at least minDays with a positive balance.
func (s *Service) Eligible(ctx context.Context, minDays int) ([]Entry, error) {
	board, err := s.Leaderboard(ctx, 0)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(board))
	for _, e := range board {
		if e.DaysHeld >= minDays && e.TokenBalance > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

// PruneSnapshots deletes snapshot rows older than keepDays before today and
// returns how many were removed.
func (s *Service) PruneSnapshots(ctx context.Context, keepDays int) (int64, error) {
	if keepDays < 1 {
		return 0, ErrInvalidRetention
	}

	cutoff := Day(s.now()).AddDate(0, 0, -keepDays)
	deleted, err := s.repo.PruneSnapshots(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Time("before", cutoff).
		Int64("deleted", deleted).
		Msg("old snapshots pruned")
	return deleted, nil
}

// Validate checks holder and snapshot rows for inconsistencies.
func (s *Service) Validate(ctx context.Context) (*IntegrityReport, error) {
	report, err := s.repo.CheckIntegrity(ctx)
	if err != nil {
		return nil, err
	}

	if !report.Valid() {
		s.log.Warn().
			Int("holders_without_snapshots", report.HoldersWithoutSnapshots).
			Int("stale_holders", report.StaleHolders).
			Msg("snapshot data has inconsistencies")
	}
	return report, nil
}

// PriceOverride returns the manual USD price, if one is set.
func (s *Service) PriceOverride(ctx context.Context) (float64, bool, error) {
	raw, ok, err := s.repo.GetSetting(ctx, SettingPriceOverride)
	if err != nil {
		return 0, false, fmt.Errorf("get price override: %w", err)
	}
	if !ok {
		return 0, false, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		s.log.Warn().Str("value", raw).Msg("stored price override is invalid, ignoring")
		return 0, false, nil
	}
	return v, true, nil
}

// SetPriceOverride makes the next snapshot use usd instead of the market price.
func (s *Service) SetPriceOverride(ctx context.Context, usd float64) error {
	if usd <= 0 || math.IsNaN(usd) || math.IsInf(usd, 0) {
		return ErrInvalidPrice
	}

	if err := s.repo.SetSetting(ctx, SettingPriceOverride, strconv.FormatFloat(usd, 'f', -1, 64)); err != nil {
		return fmt.Errorf("set price override: %w", err)
	}

	s.log.Info().Float64("price_usd", usd).Msg("price override set")
	return nil
}

// ClearPriceOverride returns snapshots to the market price.
func (s *Service) ClearPriceOverride(ctx context.Context) error {
	if err := s.repo.DeleteSetting(ctx, SettingPriceOverride); err != nil {
		return fmt.Errorf("clear price override: %w", err)
	}
	return nil
}

// History returns the most recent snapshots recorded for wallet.
func (s *Service) History(ctx context.Context, wallet string, limit int) ([]*Snapshot, error) {
	if err := chain.ValidateWallet(wallet); err != nil {
		return nil, err
	}
	return s.repo.Snapshots(ctx, wallet, limit)
}

func (s *Service) rank(holders []*Holder) []Entry {
	now := s.now()
	out := make([]Entry, 0, len(holders))
	for i, h := range holders {
		out = append(out, Entry{Holder: *h, Rank: i + 1, DaysHeld: h.DaysHeld(now)})
	}
	return out
}
