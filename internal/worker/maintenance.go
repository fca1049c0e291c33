package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/holdtrack/holdtrack/internal/holder"
)

// Task is a recurring maintenance job scheduled alongside snapshots.
type Task struct {
	Name string
	// Schedule is a standard five-field cron expression evaluated in UTC.
	Schedule string
	Run      func(ctx context.Context) error
}

// Pruner deletes snapshots older than a retention window.
type Pruner interface {
	PruneSnapshots(ctx context.Context, keepDays int) (int64, error)
}

// Validator checks the consistency of stored holder data.
type Validator interface {
	Validate(ctx context.Context) (*holder.IntegrityReport, error)
}

// CleanupTask prunes snapshots older than keepDays.
func CleanupTask(p Pruner, schedule string, keepDays int, log zerolog.Logger) Task {
	return Task{
		Name:     "snapshot-cleanup",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			deleted, err := p.PruneSnapshots(ctx, keepDays)
			if err != nil {
				return fmt.Errorf("prune snapshots: %w", err)
			}
			log.Info().Int64("deleted", deleted).Int("keep_days", keepDays).Msg("snapshot cleanup finished")
			return nil
		},
	}
}

// ValidationTask runs the integrity check. Inconsistencies are reported as errors.
func ValidationTask(v Validator, schedule string) Task {
	return Task{
		Name:     "integrity-check",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			report, err := v.Validate(ctx)
			if err != nil {
				return fmt.Errorf("validate holders: %w", err)
			}
			if !report.Valid() {
				return fmt.Errorf("%d holders without snapshots, %d stale holders",
					report.HoldersWithoutSnapshots, report.StaleHolders)
			}
			return nil
		},
	}
}
