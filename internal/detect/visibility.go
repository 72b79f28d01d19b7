package detect

import (
	"context"
	"log"

	"github.com/examguard/agent/internal/clock"
	"github.com/examguard/agent/internal/platform"
	"github.com/examguard/agent/internal/violation"
)

// VisibilityDetector observes page visibility transitions. Every
// transition, hidden to visible and visible to hidden, is a tab switch signal
// carrying a running per-session counter.
type VisibilityDetector struct {
	watcher platform.VisibilityWatcher
	clk     clock.Clock
	emit    Emit
	count   int
}

func NewVisibilityDetector(w platform.VisibilityWatcher, clk clock.Clock, emit Emit) *VisibilityDetector {
	return &VisibilityDetector{watcher: w, clk: clk, emit: emit}
}

func (d *VisibilityDetector) Name() string { return "visibility" }

func (d *VisibilityDetector) Start(ctx context.Context) error {
	ch, err := d.watcher.WatchVisibility(ctx)
	if err != nil {
		log.Printf("[visibility] watch unavailable: %v", err)
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				d.count++
				d.emit(Signal{
					Kind:    violation.TabSwitch,
					At:      d.clk.Now(),
					Details: violation.TabSwitchDetails{Count: d.count},
				})
			}
		}
	}()
	return nil
}
