// Package countdown tracks the remaining exam time from a server-issued
// baseline.
package countdown

import "time"

// DefaultMinStep is the smallest decrement applied per tick.
const DefaultMinStep = time.Second

// Timer is a countdown that only moves downward. It is not safe for
// concurrent use; the session controller drives it from its event loop.
type Timer struct {
	remaining time.Duration
	last      time.Time
	minStep   time.Duration
	expired   bool
}

// New starts a countdown at baseline, observed at now. A non-positive
// baseline expires on the first tick.
func New(baseline time.Duration, now time.Time, minStep time.Duration) *Timer {
	if baseline < 0 {
		baseline = 0
	}
	if minStep <= 0 {
		minStep = DefaultMinStep
	}
	return &Timer{remaining: baseline, last: now, minStep: minStep}
}

// Tick decrements the remaining time by the delta observed since the
// previous tick, never less than the minimum step. Ticks delivered late by
// a throttled scheduler therefore catch up in one go. fired is true on the
// single tick that reaches zero.
func (t *Timer) Tick(now time.Time) (remaining time.Duration, fired bool) {
	if t.expired {
		return 0, false
	}

	delta := now.Sub(t.last)
	if delta < t.minStep {
		delta = t.minStep
	}
	t.last = now

	t.remaining -= delta
	if t.remaining <= 0 {
		t.remaining = 0
		t.expired = true
		return 0, true
	}
	return t.remaining, false
}

// Rebase applies a fresher server value. It is ignored unless it lowers
// the remaining time.
func (t *Timer) Rebase(serverRemaining time.Duration, now time.Time) {
	if t.expired {
		return
	}
	if serverRemaining < 0 {
		serverRemaining = 0
	}
	if serverRemaining < t.remaining {
		t.remaining = serverRemaining
		t.last = now
	}
}

// Remaining returns the time left.
func (t *Timer) Remaining() time.Duration { return t.remaining }

// Expired reports whether the expiry tick has happened.
func (t *Timer) Expired() bool { return t.expired }
