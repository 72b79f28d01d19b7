package detect

import (
	"context"
	"log"
	"time"

	"github.com/examguard/agent/internal/clock"
	"github.com/examguard/agent/internal/platform"
	"github.com/examguard/agent/internal/violation"
)

// DevToolsDetector polls window geometry and treats a large outer/inner
// dimension delta as an open devtools panel. It is edge-triggered: a signal
// is emitted only on the closed→open transition, never while the panel
// stays open.
//
// This is inherently a heuristic. A genuinely resized window (tiling window
// managers, manual docking) can cross the threshold too; there is no
// tolerance band for legitimate resizing, so treat the signal as
// best-effort, not proof.
type DevToolsDetector struct {
	prober       platform.ViewportProber
	clk          clock.Clock
	emit         Emit
	pollInterval time.Duration
	thresholdPx  int
	open         bool
}

func NewDevToolsDetector(p platform.ViewportProber, clk clock.Clock, emit Emit, pollInterval time.Duration, thresholdPx int) *DevToolsDetector {
	return &DevToolsDetector{
		prober:       p,
		clk:          clk,
		emit:         emit,
		pollInterval: pollInterval,
		thresholdPx:  thresholdPx,
	}
}

func (d *DevToolsDetector) Name() string { return "devtools" }

func (d *DevToolsDetector) Start(ctx context.Context) error {
	ticker := d.clk.NewTicker(d.pollInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				d.poll()
			}
		}
	}()
	return nil
}

func (d *DevToolsDetector) poll() {
	m, err := d.prober.Metrics()
	if err != nil {
		log.Printf("[devtools] viewport probe error: %v", err)
		return
	}

	widthDelta := m.OuterWidth - m.InnerWidth
	heightDelta := m.OuterHeight - m.InnerHeight
	crossed := widthDelta > d.thresholdPx || heightDelta > d.thresholdPx

	if crossed && !d.open {
		d.open = true
		d.emit(Signal{
			Kind: violation.DevToolsOpen,
			At:   d.clk.Now(),
			Details: violation.DevToolsDetails{
				WidthDelta:  widthDelta,
				HeightDelta: heightDelta,
			},
		})
		return
	}
	if !crossed {
		d.open = false
	}
}
