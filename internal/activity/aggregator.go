// Package activity maintains the rolling session activity view. The
// snapshot is never persisted; it is recomputed from the controller-owned
// violation sequence and the last-active timestamp every time it is
// requested or pushed.
package activity

import (
	"sync"
	"time"

	"github.com/examguard/agent/internal/clock"
	"github.com/examguard/agent/internal/violation"
)

// Snapshot is the derived activity view consumed by the host UI and the
// telemetry channel.
type Snapshot struct {
	ElapsedSeconds      int       `json:"elapsedSeconds"`
	TabSwitchCount      int       `json:"tabSwitchCount"`
	FullscreenExitCount int       `json:"fullscreenExitCount"`
	ViolationCount      int       `json:"violationCount"`
	LastActiveAt        time.Time `json:"lastActiveAt"`
	IsActive            bool      `json:"isActive"`
}

// CountsFunc reads the current violation totals from their owner (the
// session controller). Going through the owner on every snapshot is what
// makes counter drift impossible.
type CountsFunc func() (total int, byKind map[violation.Kind]int)

// Aggregator derives snapshots on demand. Elapsed time is wall-clock from
// session start. Tab-hidden time still counts, since the goal is to bound
// total exam duration, not focused duration.
type Aggregator struct {
	mu           sync.Mutex
	clk          clock.Clock
	counts       CountsFunc
	startedAt    time.Time
	lastActiveAt time.Time
	active       bool
}

func NewAggregator(clk clock.Clock, counts CountsFunc) *Aggregator {
	return &Aggregator{clk: clk, counts: counts}
}

// Begin marks the session start. Called once when the controller enters
// the active state.
func (a *Aggregator) Begin() {
	now := a.clk.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startedAt = now
	a.lastActiveAt = now
	a.active = true
}

// End marks the session terminated. Snapshots remain readable afterwards.
func (a *Aggregator) End() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = false
}

// Touch refreshes the last-active timestamp. Stale touches (older than the
// current value) are ignored.
func (a *Aggregator) Touch(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if at.After(a.lastActiveAt) {
		a.lastActiveAt = at
	}
}

// Snapshot recomputes the activity view.
func (a *Aggregator) Snapshot() Snapshot {
	total, byKind := a.counts()

	a.mu.Lock()
	defer a.mu.Unlock()

	var elapsed int
	if !a.startedAt.IsZero() {
		elapsed = int(a.clk.Since(a.startedAt).Seconds())
	}
	return Snapshot{
		ElapsedSeconds:      elapsed,
		TabSwitchCount:      byKind[violation.TabSwitch],
		FullscreenExitCount: byKind[violation.FullscreenExit],
		ViolationCount:      total,
		LastActiveAt:        a.lastActiveAt,
		IsActive:            a.active,
	}
}
