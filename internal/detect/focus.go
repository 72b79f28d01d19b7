package detect

import (
	"context"
	"log"

	"github.com/examguard/agent/internal/clock"
	"github.com/examguard/agent/internal/platform"
	"github.com/examguard/agent/internal/violation"
)

// FocusDetector observes window focus independent of tab visibility.
// Only blur is a signal; regaining focus is not itself a violation.
type FocusDetector struct {
	watcher platform.FocusWatcher
	clk     clock.Clock
	emit    Emit
}

func NewFocusDetector(w platform.FocusWatcher, clk clock.Clock, emit Emit) *FocusDetector {
	return &FocusDetector{watcher: w, clk: clk, emit: emit}
}

func (d *FocusDetector) Name() string { return "focus" }

func (d *FocusDetector) Start(ctx context.Context) error {
	ch, err := d.watcher.WatchFocus(ctx)
	if err != nil {
		log.Printf("[focus] watch unavailable: %v", err)
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case focused, ok := <-ch:
				if !ok {
					return
				}
				if focused {
					continue
				}
				d.emit(Signal{
					Kind:    violation.WindowBlur,
					At:      d.clk.Now(),
					Details: violation.WindowBlurDetails{},
				})
			}
		}
	}()
	return nil
}
