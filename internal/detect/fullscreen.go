package detect

import (
	"context"
	"fmt"
	"log"

	"github.com/examguard/agent/internal/clock"
	"github.com/examguard/agent/internal/platform"
	"github.com/examguard/agent/internal/violation"
)

// FullscreenDetector requests fullscreen on start and signals every exit
// with an incrementing counter. It also intercepts the keyboard shortcuts
// conventionally used to leave fullscreen so enforcement gets first
// refusal. A denied request degrades the session to "requested but not
// enforced"; it never aborts.
type FullscreenDetector struct {
	fs    platform.FullscreenController
	clk   clock.Clock
	emit  Emit
	count int
}

func NewFullscreenDetector(fs platform.FullscreenController, clk clock.Clock, emit Emit) *FullscreenDetector {
	return &FullscreenDetector{fs: fs, clk: clk, emit: emit}
}

func (d *FullscreenDetector) Name() string { return "fullscreen" }

func (d *FullscreenDetector) Start(ctx context.Context) error {
	ch, err := d.fs.WatchFullscreen(ctx)
	if err != nil {
		log.Printf("[fullscreen] watch unavailable: %v", err)
		return err
	}

	if err := d.fs.InterceptExitShortcuts(ctx); err != nil {
		log.Printf("[fullscreen] shortcut interception unavailable: %v", err)
	}

	var setupErr error
	if err := d.fs.Request(); err != nil {
		log.Printf("[fullscreen] initial request denied: %v", err)
		setupErr = fmt.Errorf("fullscreen request denied: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case active, ok := <-ch:
				if !ok {
					return
				}
				if active {
					continue
				}
				d.count++
				d.emit(Signal{
					Kind:    violation.FullscreenExit,
					At:      d.clk.Now(),
					Details: violation.FullscreenExitDetails{Count: d.count},
				})
			}
		}
	}()
	return setupErr
}
