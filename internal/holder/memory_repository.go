package holder

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu        sync.RWMutex
	holders   map[string]*Holder
	snapshots map[string][]*Snapshot
	settings  map[string]string
	latest    *time.Time
	now       func() time.Time
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates a new in-memory holder repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		holders:   make(map[string]*Holder),
		snapshots: make(map[string][]*Snapshot),
		settings:  map[string]string{SettingMinimumUSD: "0"},
		now:       time.Now,
	}
}

// Get retrieves a holder by wallet.
func (r *InMemoryRepository) Get(_ context.Context, wallet string) (*Holder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.holders[wallet]
	if !ok {
		return nil, ErrHolderNotFound
	}

	cpy := *h
	return &cpy, nil
}

// List returns holders in leaderboard order.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]*Holder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Holder, 0, len(r.holders))
	for _, h := range r.holders {
		if h.USDValue < opts.MinUSD {
			continue
		}
		cpy := *h
		out = append(out, &cpy)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.FirstSeenDate.Equal(b.FirstSeenDate) {
			return a.FirstSeenDate.Before(b.FirstSeenDate)
		}
		if a.USDValue != b.USDValue {
			return a.USDValue > b.USDValue
		}
		return a.WalletAddress < b.WalletAddress
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ApplySnapshot records positions for date.
func (r *InMemoryRepository) ApplySnapshot(_ context.Context, date time.Time, positions []Position) (*SnapshotSummary, error) {
	date = Day(date)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.latest != nil && date.Before(*r.latest) {
		return nil, ErrSnapshotOutOfOrder
	}

	summary := &SnapshotSummary{Date: date, Holders: len(positions)}
	seen := make(map[string]struct{}, len(positions))
	now := r.now()

	for _, p := range positions {
		seen[p.WalletAddress] = struct{}{}

		h, ok := r.holders[p.WalletAddress]
		if !ok {
			h = &Holder{WalletAddress: p.WalletAddress, FirstSeenDate: date}
			r.holders[p.WalletAddress] = h
			summary.Added++
		}
		h.TokenBalance = p.TokenBalance
		h.USDValue = p.USDValue
		h.LastUpdated = now

		r.putSnapshot(&Snapshot{
			WalletAddress: p.WalletAddress,
			TokenBalance:  p.TokenBalance,
			USDValue:      p.USDValue,
			SnapshotDate:  date,
			DaysHeld:      h.DaysHeld(date),
		})
	}

	for wallet := range r.holders {
		if _, ok := seen[wallet]; !ok {
			delete(r.holders, wallet)
			summary.Removed++
		}
	}

	if r.latest == nil || date.After(*r.latest) {
		d := date
		r.latest = &d
	}

	return summary, nil
}

// putSnapshot replaces the row for the same wallet and day, keeping newest first.
func (r *InMemoryRepository) putSnapshot(s *Snapshot) {
	rows := r.snapshots[s.WalletAddress]
	for i, existing := range rows {
		if existing.SnapshotDate.Equal(s.SnapshotDate) {
			rows[i] = s
			return
		}
	}
	rows = append(rows, s)
	sort.Slice(rows, func(i, j int) bool { return rows[i].SnapshotDate.After(rows[j].SnapshotDate) })
	r.snapshots[s.WalletAddress] = rows
}

// Snapshots returns the recorded rows for a wallet, newest first.
func (r *InMemoryRepository) Snapshots(_ context.Context, wallet string, limit int) ([]*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.snapshots[wallet]
	if limit <= 0 {
		limit = 30
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]*Snapshot, 0, len(rows))
	for _, s := range rows {
		cpy := *s
		out = append(out, &cpy)
	}
	return out, nil
}

// PruneSnapshots deletes snapshot rows dated before the given day.
func (r *InMemoryRepository) PruneSnapshots(_ context.Context, before time.Time) (int64, error) {
	before = Day(before)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.latest != nil && r.latest.Before(before) {
		before = *r.latest
	}

	var deleted int64
	for wallet, rows := range r.snapshots {
		kept := rows[:0]
		for _, s := range rows {
			if s.SnapshotDate.Before(before) {
				deleted++
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(r.snapshots, wallet)
			continue
		}
		r.snapshots[wallet] = kept
	}
	return deleted, nil
}

// CheckIntegrity cross-checks holder rows against snapshot rows.
func (r *InMemoryRepository) CheckIntegrity(_ context.Context) (*IntegrityReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := &IntegrityReport{}
	if r.latest != nil {
		d := *r.latest
		report.LatestSnapshot = &d
	}

	for wallet := range r.holders {
		rows := r.snapshots[wallet]
		switch {
		case len(rows) == 0:
			report.HoldersWithoutSnapshots++
		case r.latest != nil && rows[0].SnapshotDate.Before(*r.latest):
			report.StaleHolders++
		}
	}
	return report, nil
}

// LatestSnapshotDate returns the most recent snapshot day.
func (r *InMemoryRepository) LatestSnapshotDate(_ context.Context) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.latest == nil {
		return nil, nil
	}
	d := *r.latest
	return &d, nil
}

// GetSetting returns the value for key.
func (r *InMemoryRepository) GetSetting(_ context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.settings[key]
	return v, ok, nil
}

// SetSetting creates or replaces key.
func (r *InMemoryRepository) SetSetting(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings[key] = value
	return nil
}

// DeleteSetting removes key.
func (r *InMemoryRepository) DeleteSetting(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.settings, key)
	return nil
}
