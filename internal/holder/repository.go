package holder

import (
	"context"
	"time"
)

// Repository defines the interface for holder persistence.
type Repository interface {
	// Get retrieves a holder by wallet. Returns ErrHolderNotFound when absent.
	Get(ctx context.Context, wallet string) (*Holder, error)

	// List returns holders ordered by FirstSeenDate ascending, then USDValue
	// descending, then wallet.
	List(ctx context.Context, opts ListOptions) ([]*Holder, error)

	// ApplySnapshot atomically records positions for date. Wallets in positions
	// are upserted and keep their FirstSeenDate. Holders missing from positions
	// are deleted so a later purchase starts a new holding period.
	// Returns ErrSnapshotOutOfOrder when date is before LatestSnapshotDate.
	ApplySnapshot(ctx context.Context, date time.Time, positions []Position) (*SnapshotSummary, error)

	// Snapshots returns the recorded rows for a wallet, newest first.
	Snapshots(ctx context.Context, wallet string, limit int) ([]*Snapshot, error)

	// PruneSnapshots deletes snapshot rows dated before the given day. Rows of the
	// latest snapshot day are always kept.
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)

	// CheckIntegrity cross-checks holder rows against snapshot rows.
	CheckIntegrity(ctx context.Context) (*IntegrityReport, error)

	// LatestSnapshotDate returns the most recent snapshot day, or nil if none exist.
	LatestSnapshotDate(ctx context.Context) (*time.Time, error)

	// GetSetting returns the value for key and false if unset.
	GetSetting(ctx context.Context, key string) (string, bool, error)

	// SetSetting creates or replaces key.
	SetSetting(ctx context.Context, key, value string) error

	// DeleteSetting removes key. Removing an unset key is not an error.
	DeleteSetting(ctx context.Context, key string) error
}
