// Package holder tracks how long each wallet has held the token without a break.
package holder

import (
	"errors"
	"time"
)

// Domain errors.
var (
	ErrHolderNotFound   = errors.New("holder not found")
	ErrInvalidThreshold = errors.New("threshold must be a non-negative number")
	ErrEmptySnapshot    = errors.New("snapshot has no holders")
	ErrInvalidPrice     = errors.New("price must be a positive number")
	ErrInvalidRetention = errors.New("retention must be at least one day")

	// ErrSnapshotOutOfOrder is returned when a snapshot is dated before the latest
	// recorded one. Holder rows always describe the newest snapshot.
	ErrSnapshotOutOfOrder = errors.New("snapshot date is before the latest recorded snapshot")
)

// Settings keys.
const (
	// SettingMinimumUSD is the leaderboard USD threshold.
	SettingMinimumUSD = "minimum_usd_threshold"
	// SettingPriceOverride is a manual USD price used by the next snapshot instead
	// of the market price.
	SettingPriceOverride = "manual_price_usd"
)

// DefaultRetentionDays is how long snapshot rows are kept by default.
const DefaultRetentionDays = 90

// Holder is a wallet currently holding the token.
type Holder struct {
	WalletAddress string
	TokenBalance  float64
	USDValue      float64
	// FirstSeenDate is the first snapshot day of the current unbroken holding period.
	FirstSeenDate time.Time
	LastUpdated   time.Time
}

// DaysHeld returns whole days between FirstSeenDate and the day of asOf.
func (h *Holder) DaysHeld(asOf time.Time) int {
	d := int(Day(asOf).Sub(Day(h.FirstSeenDate)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// Position is one wallet's balance in a snapshot about to be recorded.
type Position struct {
	WalletAddress string
	TokenBalance  float64
	USDValue      float64
}

// Snapshot is a recorded balance for a wallet on a given day.
type Snapshot struct {
	WalletAddress string
	TokenBalance  float64
	USDValue      float64
	SnapshotDate  time.Time
	DaysHeld      int
}

// SnapshotSummary describes the effect of recording one snapshot.
type SnapshotSummary struct {
	Date     time.Time
	PriceUSD float64
	Holders  int
	Added    int
	Removed  int
}

// Entry is a holder with its leaderboard position.
type Entry struct {
	Holder
	// Rank is 1-based among holders at or above the USD threshold. Zero means unranked.
	Rank     int
	DaysHeld int
}

// Qualified reports whether the entry is ranked on the leaderboard.
func (e *Entry) Qualified() bool {
	return e.Rank > 0
}

// Stats summarises the current holder set.
type Stats struct {
	TotalHolders     int
	QualifiedHolders int
	TotalTokens      float64
	TotalUSD         float64
	ThresholdUSD     float64
	LastSnapshot     *time.Time
	Top              []Entry
}

// IntegrityReport describes inconsistencies between holder and snapshot rows.
type IntegrityReport struct {
	// HoldersWithoutSnapshots counts holders with no snapshot row at all.
	HoldersWithoutSnapshots int
	// StaleHolders counts holders whose newest snapshot predates the latest snapshot day.
	StaleHolders   int
	LatestSnapshot *time.Time
}

// Valid reports whether no inconsistency was found.
func (r *IntegrityReport) Valid() bool {
	return r.HoldersWithoutSnapshots == 0 && r.StaleHolders == 0
}

// ListOptions filters and bounds a holder listing.
type ListOptions struct {
	// MinUSD drops holders whose USD value is below it.
	MinUSD float64
	// Limit caps the number of rows. Zero or negative means no cap.
	Limit int
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
