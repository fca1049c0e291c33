package holder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgreSQL holder repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// snapshotLockKey is the advisory lock id held while a snapshot is applied.
const snapshotLockKey int64 = 0x686f6c64

const holderColumns = `wallet_address, token_balance, usd_value, first_seen_date, last_updated`

// Get retrieves a holder by wallet.
func (r *PostgresRepository) Get(ctx context.Context, wallet string) (*Holder, error) {
	query := `SELECT ` + holderColumns + ` FROM holders WHERE wallet_address = $1`

	var h Holder
	err := r.pool.QueryRow(ctx, query, wallet).Scan(
		&h.WalletAddress, &h.TokenBalance, &h.USDValue, &h.FirstSeenDate, &h.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHolderNotFound
		}
		return nil, fmt.Errorf("get holder: %w", err)
	}

	return &h, nil
}

// List returns holders in leaderboard order.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*Holder, error) {
	query := `
		SELECT ` + holderColumns + `
		FROM holders
		WHERE usd_value >= $1
		ORDER BY first_seen_date ASC, usd_value DESC, wallet_address ASC
	`
	args := []any{opts.MinUSD}
	if opts.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, opts.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}

	holders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Holder, error) {
		var h Holder
		err := row.Scan(&h.WalletAddress, &h.TokenBalance, &h.USDValue, &h.FirstSeenDate, &h.LastUpdated)
		return &h, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan holders: %w", err)
	}

	return holders, nil
}

// ApplySnapshot records positions for date inside one transaction.
func (r *PostgresRepository) ApplySnapshot(ctx context.Context, date time.Time, positions []Position) (*SnapshotSummary, error) {
	date = Day(date)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// Serialises concurrent writers so the ordering check below stays valid until commit.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, snapshotLockKey); err != nil {
		return nil, fmt.Errorf("lock snapshots: %w", err)
	}

	var latest *time.Time
	if err := tx.QueryRow(ctx, `SELECT MAX(snapshot_date) FROM snapshots`).Scan(&latest); err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if latest != nil && date.Before(Day(*latest)) {
		return nil, ErrSnapshotOutOfOrder
	}

	// xmax is zero only for freshly inserted rows
	const upsertHolder = `
		INSERT INTO holders (wallet_address, token_balance, usd_value, first_seen_date, last_updated)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (wallet_address) DO UPDATE SET
			token_balance = EXCLUDED.token_balance,
			usd_value = EXCLUDED.usd_value,
			last_updated = NOW()
		RETURNING (xmax = 0)
	`
	const upsertSnapshot = `
		INSERT INTO snapshots (wallet_address, token_balance, usd_value, snapshot_date, days_held)
		SELECT $1, $2, $3, $4::date, GREATEST($4::date - h.first_seen_date, 0)
		FROM holders h WHERE h.wallet_address = $1
		ON CONFLICT (wallet_address, snapshot_date) DO UPDATE SET
			token_balance = EXCLUDED.token_balance,
			usd_value = EXCLUDED.usd_value,
			days_held = EXCLUDED.days_held
	`

	batch := &pgx.Batch{}
	wallets := make([]string, 0, len(positions))
	for _, p := range positions {
		wallets = append(wallets, p.WalletAddress)
		batch.Queue(upsertHolder, p.WalletAddress, p.TokenBalance, p.USDValue, date)
		batch.Queue(upsertSnapshot, p.WalletAddress, p.TokenBalance, p.USDValue, date)
	}

	summary := &SnapshotSummary{Date: date, Holders: len(positions)}

	results := tx.SendBatch(ctx, batch)
	for range positions {
		var inserted bool
		if err := results.QueryRow().Scan(&inserted); err != nil {
			_ = results.Close()
			return nil, fmt.Errorf("upsert holder: %w", err)
		}
		if inserted {
			summary.Added++
		}
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return nil, fmt.Errorf("upsert snapshot: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("close batch: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM holders WHERE NOT (wallet_address = ANY($1))`, wallets)
	if err != nil {
		return nil, fmt.Errorf("remove sold holders: %w", err)
	}
	summary.Removed = int(tag.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}

	return summary, nil
}

// Snapshots returns the recorded rows for a wallet, newest first.
func (r *PostgresRepository) Snapshots(ctx context.Context, wallet string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := r.pool.Query(ctx, `
		SELECT wallet_address, token_balance, usd_value, snapshot_date, days_held
		FROM snapshots
		WHERE wallet_address = $1
		ORDER BY snapshot_date DESC
		LIMIT $2
	`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	snaps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Snapshot, error) {
		var s Snapshot
		err := row.Scan(&s.WalletAddress, &s.TokenBalance, &s.USDValue, &s.SnapshotDate, &s.DaysHeld)
		return &s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}

	return snaps, nil
}

// PruneSnapshots deletes snapshot rows dated before the given day.
func (r *PostgresRepository) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM snapshots
		WHERE snapshot_date < $1::date
		  AND snapshot_date < (SELECT MAX(snapshot_date) FROM snapshots)
	`, Day(before))
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CheckIntegrity cross-checks holder rows against snapshot rows.
func (r *PostgresRepository) CheckIntegrity(ctx context.Context) (*IntegrityReport, error) {
	const query = `
		WITH last_seen AS (
			SELECT h.wallet_address, MAX(s.snapshot_date) AS d
			FROM holders h
			LEFT JOIN snapshots s ON s.wallet_address = h.wallet_address
			GROUP BY h.wallet_address
		)
		SELECT
			COUNT(*) FILTER (WHERE d IS NULL),
			COUNT(*) FILTER (WHERE d < (SELECT MAX(snapshot_date) FROM snapshots)),
			(SELECT MAX(snapshot_date) FROM snapshots)
		FROM last_seen
	`

	var report IntegrityReport
	err := r.pool.QueryRow(ctx, query).Scan(
		&report.HoldersWithoutSnapshots, &report.StaleHolders, &report.LatestSnapshot,
	)
	if err != nil {
		return nil, fmt.Errorf("check integrity: %w", err)
	}
	return &report, nil
}

// LatestSnapshotDate returns the most recent snapshot day.
func (r *PostgresRepository) LatestSnapshotDate(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT MAX(snapshot_date) FROM snapshots`).Scan(&latest); err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return latest, nil
}

// GetSetting returns the value for key.
func (r *PostgresRepository) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting creates or replaces key.
func (r *PostgresRepository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes key.
func (r *PostgresRepository) DeleteSetting(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}
