package detect

import (
	"context"
	"log"
	"time"

	"github.com/examguard/agent/internal/clock"
	"github.com/examguard/agent/internal/platform"
)

// InputDetector passively observes pointer movement, key presses, scroll
// and clicks purely to refresh the session's last-active timestamp. It
// produces no violations.
type InputDetector struct {
	watcher platform.InputWatcher
	clk     clock.Clock
	touch   func(time.Time)
}

func NewInputDetector(w platform.InputWatcher, clk clock.Clock, touch func(time.Time)) *InputDetector {
	return &InputDetector{watcher: w, clk: clk, touch: touch}
}

func (d *InputDetector) Name() string { return "input" }

func (d *InputDetector) Start(ctx context.Context) error {
	ch, err := d.watcher.WatchInput(ctx)
	if err != nil {
		log.Printf("[input] watch unavailable: %v", err)
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				at := ev.At
				if at.IsZero() {
					at = d.clk.Now()
				}
				d.touch(at)
			}
		}
	}()
	return nil
}
