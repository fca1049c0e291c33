package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Service names as they appear in a Report.
const (
	ServiceDatabase          = "database"
	ServiceBot               = "bot"
	ServiceDispatcher        = "dispatcher"
	ServiceBlockchainMonitor = "blockchain_monitor"
)

// State is the verdict for one service or for the whole process.
type State string

// States.
const (
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
)

// MessageNotInitialized is reported for a registry slot that was never filled.
const MessageNotInitialized = "service not initialized"

// ErrAggregation is returned when the fan-out itself fails, as opposed to a check.
var ErrAggregation = errors.New("health check system error")

// ServiceStatus is the result of probing one subsystem.
type ServiceStatus struct {
	State   State
	Message string

	// Set by the bot check on success.
	BotID       int64
	BotUsername string
}

// Healthy reports whether the service passed its check.
func (s ServiceStatus) Healthy() bool {
	return s.State == StateHealthy
}

func healthy(msg string) ServiceStatus {
	return ServiceStatus{State: StateHealthy, Message: msg}
}

func unhealthy(msg string) ServiceStatus {
	return ServiceStatus{State: StateUnhealthy, Message: msg}
}

// Report is the aggregate of every check, computed fresh per call.
type Report struct {
	Status     State
	Timestamp  time.Time
	Services   map[string]ServiceStatus
	HTTPStatus int
}

// CheckerConfig configures a Checker.
type CheckerConfig struct {
	Registry *Registry

	// Timeout bounds each individual check.
	// Default: 10 seconds
	Timeout time.Duration

	// Metrics is optional.
	Metrics *Metrics
	Logger  zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Checker queries the registered subsystems.
type Checker struct {
	registry *Registry
	timeout  time.Duration
	metrics  *Metrics
	log      zerolog.Logger
	now      func() time.Time
}

type check struct {
	name string
	fn   func(ctx context.Context) ServiceStatus
}

// NewChecker creates a Checker. A nil Registry behaves like an empty one.
func NewChecker(cfg CheckerConfig) *Checker {
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Checker{
		registry: registry,
		timeout:  timeout,
		metrics:  cfg.Metrics,
		log:      cfg.Logger.With().Str("component", "health").Logger(),
		now:      now,
	}
}

// CheckDatabase runs a trivial query against the database.
func (c *Checker) CheckDatabase(ctx context.Context) ServiceStatus {
	db := c.registry.Database()
	if db == nil {
		return unhealthy(MessageNotInitialized)
	}
	if err := db.Ping(ctx); err != nil {
		return unhealthy("database connection failed: " + err.Error())
	}
	return healthy("database connection successful")
}

// CheckBot calls getMe and reports the bot's id and username.
func (c *Checker) CheckBot(ctx context.Context) ServiceStatus {
	bot := c.registry.Bot()
	if bot == nil {
		return unhealthy(MessageNotInitialized)
	}
	me, err := bot.Identity(ctx)
	if err != nil {
		return unhealthy("bot API error: " + err.Error())
	}

	st := healthy("bot API connection successful")
	st.BotID = me.ID
	st.BotUsername = me.Username
	return st
}

// CheckDispatcher reports whether the update dispatcher is alive.
func (c *Checker) CheckDispatcher(_ context.Context) ServiceStatus {
	d := c.registry.Dispatcher()
	if d == nil {
		return unhealthy(MessageNotInitialized)
	}
	if !d.IsAlive() {
		return unhealthy("dispatcher is not running")
	}
	return healthy("dispatcher is running")
}

// CheckBlockchainMonitor reports whether the snapshot monitor is running.
func (c *Checker) CheckBlockchainMonitor(_ context.Context) ServiceStatus {
	m := c.registry.Monitor()
	if m == nil {
		return unhealthy(MessageNotInitialized)
	}
	if !m.IsRunning() {
		return unhealthy("blockchain monitor is not running")
	}
	return healthy("blockchain monitor is running")
}

// Aggregate runs every check concurrently and waits for all of them. A check that
// fails, panics or overruns the timeout only marks its own service unhealthy.
// An error is returned only when the aggregation itself breaks.
func (c *Checker) Aggregate(ctx context.Context) (report *Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("panic", fmt.Sprint(r)).Msg("health aggregation crashed")
			report, err = nil, fmt.Errorf("%w: %v", ErrAggregation, r)
		}
	}()

	checks := []check{
		{ServiceDatabase, c.CheckDatabase},
		{ServiceBot, c.CheckBot},
		{ServiceDispatcher, c.CheckDispatcher},
		{ServiceBlockchainMonitor, c.CheckBlockchainMonitor},
	}

	report = &Report{
		Status:    StateHealthy,
		Timestamp: c.now(),
		Services:  make(map[string]ServiceStatus, len(checks)),
	}

	results := make([]ServiceStatus, len(checks))
	var wg sync.WaitGroup
	for i, chk := range checks {
		i, chk := i, chk
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.runCheck(ctx, chk)
		}()
	}
	wg.Wait()

	for i, chk := range checks {
		st := results[i]
		report.Services[chk.name] = st
		if !st.Healthy() {
			report.Status = StateUnhealthy
			c.log.Warn().Str("service", chk.name).Str("message", st.Message).Msg("health check failed")
		}
	}

	report.HTTPStatus = http.StatusOK
	if report.Status != StateHealthy {
		report.HTTPStatus = http.StatusServiceUnavailable
	}
	return report, nil
}

// runCheck executes one check with the per-check timeout and panic isolation.
func (c *Checker) runCheck(ctx context.Context, chk check) ServiceStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	done := make(chan ServiceStatus, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error().Str("service", chk.name).Str("panic", fmt.Sprint(r)).Msg("health check panicked")
				done <- unhealthy(fmt.Sprintf("health check failed: %v", r))
			}
		}()
		done <- chk.fn(ctx)
	}()

	var st ServiceStatus
	select {
	case st = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			st = unhealthy(fmt.Sprintf("health check timed out after %s", c.timeout))
		} else {
			st = unhealthy("health check cancelled")
		}
	}

	c.metrics.record(ctx, chk.name, time.Since(start), st)
	return st
}
