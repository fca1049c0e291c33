package health

import (
	"sync"
	"sync/atomic"
	"time"
)

// Readiness is a one-way flag: it starts false and, once set, stays true.
type Readiness struct {
	ready   atomic.Bool
	once    sync.Once
	armOnce sync.Once
	done    chan struct{}
}

// NewReadiness creates a flag in the not-ready state.
func NewReadiness() *Readiness {
	return &Readiness{done: make(chan struct{})}
}

// Ready reports whether the flag has been set.
func (r *Readiness) Ready() bool {
	return r.ready.Load()
}

// MarkReady sets the flag. Later calls do nothing.
func (r *Readiness) MarkReady() {
	r.once.Do(func() {
		r.ready.Store(true)
		close(r.done)
	})
}

// Done is closed when the flag is set.
func (r *Readiness) Done() <-chan struct{} {
	return r.done
}

// ArmAfter sets the flag once delay has elapsed. Only the first call arms a
// timer. The returned function cancels a pending timer and reports whether it did.
func (r *Readiness) ArmAfter(delay time.Duration) (stop func() bool) {
	stop = func() bool { return false }
	r.armOnce.Do(func() {
		if delay <= 0 {
			r.MarkReady()
			return
		}
		t := time.AfterFunc(delay, r.MarkReady)
		stop = t.Stop
	})
	return stop
}
