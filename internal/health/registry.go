// Package health reports whether the bot's subsystems are working.
//
// A Registry holds lookup-only references to the database, the Telegram client,
// the update dispatcher and the blockchain monitor. A Checker queries each of them
// concurrently and folds the results into a Report. Readiness is a one-shot flag
// armed at startup.
package health

import (
	"context"
	"sync"
)

// Pinger runs a trivial round trip against a store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Identity is the bot account returned by getMe.
type Identity struct {
	ID       int64
	Username string
}

// IdentityProvider asks the bot API who the bot is.
type IdentityProvider interface {
	Identity(ctx context.Context) (Identity, error)
}

// LivenessReporter reports whether a long-running loop is alive.
type LivenessReporter interface {
	IsAlive() bool
}

// RunReporter reports whether a background task is running.
type RunReporter interface {
	IsRunning() bool
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx).
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// IdentityFunc adapts a function to IdentityProvider.
type IdentityFunc func(ctx context.Context) (Identity, error)

// Identity calls f(ctx).
func (f IdentityFunc) Identity(ctx context.Context) (Identity, error) { return f(ctx) }

// LivenessFunc adapts a function to LivenessReporter.
type LivenessFunc func() bool

// IsAlive calls f().
func (f LivenessFunc) IsAlive() bool { return f() }

// RunningFunc adapts a function to RunReporter.
type RunningFunc func() bool

// IsRunning calls f().
func (f RunningFunc) IsRunning() bool { return f() }

// Registry holds the subsystems the Checker queries. It never starts, stops or
// closes them. An empty slot is reported as not initialized.
type Registry struct {
	mu         sync.RWMutex
	database   Pinger
	bot        IdentityProvider
	dispatcher LivenessReporter
	monitor    RunReporter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterDatabase sets the database check.
func (r *Registry) RegisterDatabase(p Pinger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.database = p
}

// RegisterBot sets the bot identity check.
func (r *Registry) RegisterBot(p IdentityProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bot = p
}

// RegisterDispatcher sets the dispatcher liveness check.
func (r *Registry) RegisterDispatcher(p LivenessReporter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatcher = p
}

// RegisterMonitor sets the blockchain monitor check.
func (r *Registry) RegisterMonitor(p RunReporter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitor = p
}

// Database returns the registered database check, or nil.
func (r *Registry) Database() Pinger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.database
}

// Bot returns the registered bot check, or nil.
func (r *Registry) Bot() IdentityProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bot
}

// Dispatcher returns the registered dispatcher check, or nil.
func (r *Registry) Dispatcher() LivenessReporter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dispatcher
}

// Monitor returns the registered monitor check, or nil.
func (r *Registry) Monitor() RunReporter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.monitor
}
