package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	// ErrMonitorRunning is returned by Start when the monitor is already started.
	ErrMonitorRunning = errors.New("monitor already running")

	// ErrRunInProgress is returned by TriggerNow while another run is active.
	ErrRunInProgress = errors.New("snapshot already in progress")
)

// Runner executes one snapshot.
type Runner interface {
	Run(ctx context.Context) *SnapshotResult
}

// MonitorConfig holds configuration for the blockchain monitor.
type MonitorConfig struct {
	// Schedule is a standard five-field cron expression evaluated in UTC.
	Schedule string
	Runner   Runner
	// Tasks run on their own schedules and may overlap with snapshots.
	Tasks  []Task
	Logger zerolog.Logger
}

// Monitor runs snapshots on a cron schedule and on demand. Runs never overlap.
type Monitor struct {
	schedule string
	runner   Runner
	tasks    []Task
	logger   zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
	busy    atomic.Bool

	last atomic.Pointer[SnapshotResult]
}

// NewMonitor creates a stopped monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	return &Monitor{
		schedule: cfg.Schedule,
		runner:   cfg.Runner,
		tasks:    cfg.Tasks,
		logger:   cfg.Logger.With().Str("component", "monitor").Logger(),
	}
}

// Start schedules snapshots until Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running.Load() {
		return ErrMonitorRunning
	}

	sched, err := cron.ParseStandard(m.schedule)
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", m.schedule, err)
	}
	taskScheds := make([]cron.Schedule, len(m.tasks))
	for i, t := range m.tasks {
		taskScheds[i], err = cron.ParseStandard(t.Schedule)
		if err != nil {
			return fmt.Errorf("invalid cron schedule %q for %s: %w", t.Schedule, t.Name, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	clog := cronLogger{log: m.logger}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog)),
	)
	entry := c.Schedule(sched, cron.FuncJob(func() {
		if _, err := m.run(runCtx); err != nil {
			m.logger.Warn().Err(err).Msg("scheduled snapshot skipped")
		}
	}))
	for i, t := range m.tasks {
		c.Schedule(taskScheds[i], m.taskJob(runCtx, t))
	}
	c.Start()

	m.cron = c
	m.entry = entry
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running.Store(true)

	go func(done <-chan struct{}) {
		select {
		case <-ctx.Done():
			m.Stop()
		case <-done:
		}
	}(m.done)

	m.logger.Info().
		Str("schedule", m.schedule).
		Int("tasks", len(m.tasks)).
		Time("next_run", sched.Next(time.Now().UTC())).
		Msg("blockchain monitor started")

	return nil
}

// Stop cancels any in-flight run, waits for it and halts the schedule.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running.Load() {
		return
	}
	m.running.Store(false)

	m.cancel()
	<-m.cron.Stop().Done()
	close(m.done)

	m.logger.Info().Msg("blockchain monitor stopped")
}

// IsRunning reports whether the schedule is active.
func (m *Monitor) IsRunning() bool {
	return m.running.Load()
}

// TriggerNow runs a snapshot immediately on the caller's goroutine.
// It returns ErrRunInProgress if a run is already active.
func (m *Monitor) TriggerNow(ctx context.Context) (*SnapshotResult, error) {
	return m.run(ctx)
}

// LastResult returns the most recent run outcome, or nil before the first run.
func (m *Monitor) LastResult() *SnapshotResult {
	return m.last.Load()
}

// NextRun returns the next scheduled snapshot time, or nil when stopped.
func (m *Monitor) NextRun() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running.Load() {
		return nil
	}
	e := m.cron.Entry(m.entry)
	if !e.Valid() {
		return nil
	}
	next := e.Next
	return &next
}

func (m *Monitor) taskJob(ctx context.Context, t Task) cron.Job {
	log := m.logger.With().Str("task", t.Name).Logger()
	return cron.FuncJob(func() {
		start := time.Now()
		if err := t.Run(ctx); err != nil {
			log.Error().Err(err).Dur("duration", time.Since(start)).Msg("maintenance task failed")
			return
		}
		log.Debug().Dur("duration", time.Since(start)).Msg("maintenance task finished")
	})
}

func (m *Monitor) run(ctx context.Context) (*SnapshotResult, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer m.busy.Store(false)

	result := m.runner.Run(ctx)
	m.last.Store(result)
	return result, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
