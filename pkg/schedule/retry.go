package schedule

import (
	"sync"
	"time"
)

// RetryScheduler re-attempts listening after a delay.
//
// When the timer fires, guard is consulted and resume runs only if it returns
// true. The guard is evaluated at fire time, not at schedule time, because the
// conversation may have moved on while the timer was pending.
type RetryScheduler struct {
	timer  *Timer
	guard  func() bool
	resume func()

	mu        sync.Mutex
	lastDelay time.Duration
	stats     RetryStats
}

// RetryStats counts scheduler activity.
type RetryStats struct {
	Scheduled int `json:"scheduled"`
	Fired     int `json:"fired"`
	Skipped   int `json:"skipped"`
	Cancelled int `json:"cancelled"`
}

// NewRetryScheduler creates a scheduler. guard may be nil, meaning always resume.
func NewRetryScheduler(guard func() bool, resume func(), opts ...Option) *RetryScheduler {
	return &RetryScheduler{
		timer:  NewTimer("retry", opts...),
		guard:  guard,
		resume: resume,
	}
}

// Schedule arms the retry slot, superseding any pending retry.
func (r *RetryScheduler) Schedule(d time.Duration) {
	r.mu.Lock()
	r.lastDelay = d
	r.stats.Scheduled++
	r.mu.Unlock()

	r.timer.logger.Debug("retry scheduled", "delay_ms", d.Milliseconds())
	r.timer.Arm(d, r.fire)
}

func (r *RetryScheduler) fire() {
	if r.guard != nil && !r.guard() {
		r.mu.Lock()
		r.stats.Skipped++
		r.mu.Unlock()
		r.timer.logger.Debug("retry skipped, conversation not idle")
		return
	}

	r.mu.Lock()
	r.stats.Fired++
	r.mu.Unlock()

	if r.resume != nil {
		r.resume()
	}
}

// Cancel clears the pending retry. It is a no-op when nothing is pending.
func (r *RetryScheduler) Cancel() bool {
	cancelled := r.timer.Stop()
	if cancelled {
		r.mu.Lock()
		r.stats.Cancelled++
		r.mu.Unlock()
	}
	return cancelled
}

// Pending reports whether a retry is armed.
func (r *RetryScheduler) Pending() bool {
	return r.timer.Pending()
}

// LastDelay returns the delay passed to the most recent Schedule.
func (r *RetryScheduler) LastDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDelay
}

// Stats returns a copy of the counters.
func (r *RetryScheduler) Stats() RetryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
