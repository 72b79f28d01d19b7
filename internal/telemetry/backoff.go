package telemetry

import "time"

// Backoff is the reconnect delay policy: delay grows linearly with the
// attempt number (base, 2×base, 3×base, …) and attempts are bounded.
// Keeping it a plain value makes the schedule testable without timers.
type Backoff struct {
	Base        time.Duration
	MaxAttempts int
}

// Delay returns the wait before the given 1-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return b.Base * time.Duration(attempt)
}

// Exhausted reports whether the given 1-based attempt exceeds the bound.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt > b.MaxAttempts
}
