package clock

import (
	"sort"
	"sync"
	"time"
)

// Mock is a manually advanced Clock for tests. Timers and tickers fire
// synchronously from Advance, in scheduled order, so a test can step time
// forward and observe every side effect before the next assertion.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

// NewMock returns a Mock pinned to an arbitrary fixed start time.
func NewMock() *Mock {
	return &Mock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{
		mock: m,
		when: m.now.Add(d),
		fn:   f,
	}
	m.timers = append(m.timers, t)
	return t
}

func (m *Mock) NewTicker(d time.Duration) Ticker {
	ch := make(chan time.Time, 1)
	t := &mockTicker{ch: ch}
	m.mu.Lock()
	t.timer = &mockTimer{
		mock:     m,
		when:     m.now.Add(d),
		interval: d,
		ch:       ch,
	}
	m.timers = append(m.timers, t.timer)
	m.mu.Unlock()
	return t
}

// Advance moves the clock forward by d, firing every timer and ticker due
// within the window in chronological order.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		m.fire(t)
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

// nextDue pops the earliest timer due at or before target, advancing the
// mock's notion of now to the timer's deadline.
func (m *Mock) nextDue(target time.Time) *mockTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.SliceStable(m.timers, func(i, j int) bool {
		return m.timers[i].when.Before(m.timers[j].when)
	})

	for i, t := range m.timers {
		if t.stopped {
			continue
		}
		if t.when.After(target) {
			return nil
		}
		m.now = t.when
		if t.interval > 0 {
			t.when = t.when.Add(t.interval)
		} else {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
		}
		return t
	}
	return nil
}

func (m *Mock) fire(t *mockTimer) {
	if t.fn != nil {
		t.fn()
		return
	}
	select {
	case t.ch <- t.mock.Now():
	default:
		// Ticker consumer is behind; drop the tick like time.Ticker does.
	}
}

type mockTimer struct {
	mock     *Mock
	when     time.Time
	interval time.Duration
	fn       func()
	ch       chan time.Time
	stopped  bool
}

func (t *mockTimer) Stop() bool {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	was := t.stopped
	t.stopped = true
	return !was
}

type mockTicker struct {
	ch    chan time.Time
	timer *mockTimer
}

func (t *mockTicker) C() <-chan time.Time { return t.ch }
func (t *mockTicker) Stop()               { t.timer.Stop() }
