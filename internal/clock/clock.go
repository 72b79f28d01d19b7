// Package clock abstracts time so that heartbeats, poll intervals,
// enforcement cooldowns and reconnect backoff can be driven
// deterministically in tests instead of sleeping on real timers.
package clock

import "time"

// Clock provides the subset of the time package the monitor uses.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration

	// AfterFunc schedules f to run in its own goroutine after d.
	AfterFunc(d time.Duration, f func()) Timer

	// NewTicker returns a ticker that fires every d.
	NewTicker(d time.Duration) Ticker
}

// Timer is a cancellable scheduled call.
type Timer interface {
	// Stop cancels the timer. Reports whether the call was prevented.
	Stop() bool
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// System returns a Clock backed by the real time package.
func System() Clock {
	return sysClock{}
}

type sysClock struct{}

func (sysClock) Now() time.Time                  { return time.Now() }
func (sysClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (sysClock) AfterFunc(d time.Duration, f func()) Timer {
	return sysTimer{time.AfterFunc(d, f)}
}

func (sysClock) NewTicker(d time.Duration) Ticker {
	return &sysTicker{time.NewTicker(d)}
}

type sysTimer struct{ t *time.Timer }

func (st sysTimer) Stop() bool { return st.t.Stop() }

type sysTicker struct{ t *time.Ticker }

func (st *sysTicker) C() <-chan time.Time { return st.t.C }
func (st *sysTicker) Stop()               { st.t.Stop() }
