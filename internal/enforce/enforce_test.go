package enforce

import (
	"testing"
	"time"

	"github.com/examguard/agent/internal/clock"
	"github.com/examguard/agent/internal/sim"
)

func testConfig() Config {
	return Config{
		WarningDuration: 3 * time.Second,
		ReissueDelay:    500 * time.Millisecond,
		Cooldown:        5 * time.Second,
	}
}

func TestWarningThenReissue(t *testing.T) {
	clk := clock.NewMock()
	p := sim.NewPlatform()
	var suspends []bool
	e := New(p, p, clk, testConfig(), func(s bool) { suspends = append(suspends, s) })

	p.ExitFullscreen()
	e.HandleFullscreenExit()

	if !p.OverlayVisible() {
		t.Fatal("overlay should be visible after exit")
	}
	if len(suspends) != 1 || !suspends[0] {
		t.Errorf("suspend calls = %v, want [true]", suspends)
	}
	before := p.FullscreenRequests()

	// Re-request happens after the reissue delay, not immediately.
	clk.Advance(499 * time.Millisecond)
	if p.FullscreenRequests() != before {
		t.Error("fullscreen re-requested before the reissue delay")
	}
	clk.Advance(1 * time.Millisecond)
	if p.FullscreenRequests() != before+1 {
		t.Errorf("requests = %d, want %d", p.FullscreenRequests(), before+1)
	}

	// Overlay hides after the warning duration and the session resumes.
	clk.Advance(3 * time.Second)
	if p.OverlayVisible() {
		t.Error("overlay should hide after the warning duration")
	}
	if len(suspends) != 2 || suspends[1] {
		t.Errorf("suspend calls = %v, want [true false]", suspends)
	}
}

func TestDuplicateWarningsDebounced(t *testing.T) {
	clk := clock.NewMock()
	p := sim.NewPlatform()
	shows := 0
	counter := &countingOverlay{Platform: p, shows: &shows}
	e := New(p, counter, clk, testConfig(), nil)

	e.HandleFullscreenExit()
	e.HandleFullscreenExit() // overlay still visible
	clk.Advance(3 * time.Second)
	e.HandleFullscreenExit() // hidden, but inside the 5s cooldown

	if shows != 1 {
		t.Errorf("overlay shown %d times, want 1", shows)
	}

	// Past the cooldown a new warning is allowed.
	clk.Advance(5 * time.Second)
	e.HandleFullscreenExit()
	if shows != 2 {
		t.Errorf("overlay shown %d times after cooldown, want 2", shows)
	}
}

func TestReissueSkippedWhenAlreadyFullscreen(t *testing.T) {
	clk := clock.NewMock()
	p := sim.NewPlatform()
	e := New(p, p, clk, testConfig(), nil)

	if err := p.Request(); err != nil {
		t.Fatalf("request error: %v", err)
	}
	before := p.FullscreenRequests()

	e.HandleFullscreenExit()
	clk.Advance(time.Second)
	if p.FullscreenRequests() != before {
		t.Errorf("requests = %d, want %d (no reissue while active)", p.FullscreenRequests(), before)
	}
}

func TestStopCancelsTimersAndHidesOverlay(t *testing.T) {
	clk := clock.NewMock()
	p := sim.NewPlatform()
	e := New(p, p, clk, testConfig(), nil)

	e.HandleFullscreenExit()
	if !p.OverlayVisible() {
		t.Fatal("overlay should be visible")
	}
	before := p.FullscreenRequests()

	e.Stop()
	e.Stop() // idempotent

	if p.OverlayVisible() {
		t.Error("overlay should be hidden after Stop")
	}
	clk.Advance(10 * time.Second)
	if p.FullscreenRequests() != before {
		t.Error("reissue timer should be cancelled by Stop")
	}
	if e.WarningVisible() {
		t.Error("WarningVisible should be false after Stop")
	}
}

type countingOverlay struct {
	*sim.Platform
	shows *int
}

func (c *countingOverlay) Show(message string) {
	*c.shows++
	c.Platform.Show(message)
}
