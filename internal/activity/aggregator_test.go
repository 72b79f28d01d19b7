package activity

import (
	"testing"
	"time"

	"github.com/examguard/agent/internal/clock"
	"github.com/examguard/agent/internal/violation"
)

func TestSnapshotCountersMirrorSequence(t *testing.T) {
	counts := map[violation.Kind]int{}
	total := 0
	a := NewAggregator(clock.NewMock(), func() (int, map[violation.Kind]int) {
		return total, counts
	})
	a.Begin()

	snap := a.Snapshot()
	if snap.ViolationCount != 0 || snap.TabSwitchCount != 0 {
		t.Errorf("fresh snapshot should be zeroed, got %+v", snap)
	}

	counts[violation.TabSwitch] = 3
	counts[violation.FullscreenExit] = 1
	counts[violation.ClipboardUse] = 2
	total = 6

	snap = a.Snapshot()
	if snap.TabSwitchCount != 3 {
		t.Errorf("TabSwitchCount = %d, want 3", snap.TabSwitchCount)
	}
	if snap.FullscreenExitCount != 1 {
		t.Errorf("FullscreenExitCount = %d, want 1", snap.FullscreenExitCount)
	}
	if snap.ViolationCount != 6 {
		t.Errorf("ViolationCount = %d, want 6", snap.ViolationCount)
	}
}

func TestElapsedIsWallClock(t *testing.T) {
	clk := clock.NewMock()
	a := NewAggregator(clk, func() (int, map[violation.Kind]int) {
		return 0, nil
	})
	a.Begin()

	// Hidden time still counts toward elapsed.
	clk.Advance(90 * time.Second)
	snap := a.Snapshot()
	if snap.ElapsedSeconds != 90 {
		t.Errorf("ElapsedSeconds = %d, want 90", snap.ElapsedSeconds)
	}
}

func TestTouchIgnoresStaleTimestamps(t *testing.T) {
	clk := clock.NewMock()
	a := NewAggregator(clk, func() (int, map[violation.Kind]int) {
		return 0, nil
	})
	a.Begin()

	newer := clk.Now().Add(10 * time.Second)
	a.Touch(newer)
	a.Touch(clk.Now().Add(5 * time.Second)) // older than newer

	if got := a.Snapshot().LastActiveAt; !got.Equal(newer) {
		t.Errorf("LastActiveAt = %v, want %v", got, newer)
	}
}

func TestActiveFlagFollowsLifecycle(t *testing.T) {
	a := NewAggregator(clock.NewMock(), func() (int, map[violation.Kind]int) {
		return 0, nil
	})

	if a.Snapshot().IsActive {
		t.Error("IsActive should be false before Begin")
	}
	a.Begin()
	if !a.Snapshot().IsActive {
		t.Error("IsActive should be true after Begin")
	}
	a.End()
	if a.Snapshot().IsActive {
		t.Error("IsActive should be false after End")
	}
}
