// Package schedule owns the delayed work of a conversation: the single
// "resume listening" retry slot and the silence timer.
//
// Every timer here has exactly one pending slot. Arming a slot stops the
// previous timer first, so bursts of requests collapse into the most recent
// deadline and two timers for the same purpose are never live at once.
package schedule

import (
	"log/slog"
	"sync"
	"time"
)

// Stopper is the handle returned by Clock.AfterFunc.
type Stopper interface {
	Stop() bool
}

// Clock abstracts time so tests can fire timers by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

type options struct {
	clock  Clock
	logger *slog.Logger
}

// Option configures timers and schedulers.
type Option func(*options)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: SystemClock, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Timer is a single-shot timer with one pending slot.
type Timer struct {
	name   string
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex
	pending  Stopper
	gen      uint64
	deadline time.Time
}

// NewTimer creates an unarmed timer. name appears in logs.
func NewTimer(name string, opts ...Option) *Timer {
	o := buildOptions(opts)
	return &Timer{
		name:   name,
		clock:  o.clock,
		logger: o.logger.With("component", "schedule.timer", "timer", name),
	}
}

// Arm schedules fn after d, stopping any previously armed timer first.
func (t *Timer) Arm(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		t.pending.Stop()
		t.logger.Debug("superseded pending timer")
	}

	t.gen++
	gen := t.gen
	t.deadline = t.clock.Now().Add(d)
	t.pending = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		// A Stop or re-Arm after the runtime queued this callback bumps gen.
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.pending = nil
		t.mu.Unlock()

		fn()
	})
}

// Stop cancels the pending timer. It reports whether one was pending and is
// safe to call at any time.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.pending == nil {
		return false
	}
	t.pending.Stop()
	t.pending = nil
	return true
}

// Pending reports whether the timer is armed.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// Deadline returns when the armed timer fires.
func (t *Timer) Deadline() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return time.Time{}, false
	}
	return t.deadline, true
}

// Name returns the timer name.
func (t *Timer) Name() string {
	return t.name
}
