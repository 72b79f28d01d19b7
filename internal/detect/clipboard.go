package detect

import (
	"context"
	"log"

	"github.com/examguard/agent/internal/clock"
	"github.com/examguard/agent/internal/platform"
	"github.com/examguard/agent/internal/violation"
)

// ClipboardDetector observes copy and paste. Captured selection content is
// truncated to previewLimit runes so large payloads never leak into
// telemetry or the violation journal.
type ClipboardDetector struct {
	watcher      platform.ClipboardWatcher
	clk          clock.Clock
	emit         Emit
	previewLimit int
}

func NewClipboardDetector(w platform.ClipboardWatcher, clk clock.Clock, emit Emit, previewLimit int) *ClipboardDetector {
	return &ClipboardDetector{watcher: w, clk: clk, emit: emit, previewLimit: previewLimit}
}

func (d *ClipboardDetector) Name() string { return "clipboard" }

func (d *ClipboardDetector) Start(ctx context.Context) error {
	ch, err := d.watcher.WatchClipboard(ctx)
	if err != nil {
		log.Printf("[clipboard] watch unavailable: %v", err)
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
				d.emit(Signal{
					Kind: violation.ClipboardUse,
					At:   at,
					Details: violation.ClipboardDetails{
						Action:  string(ev.Action),
						Preview: truncatePreview(ev.Content, d.previewLimit),
					},
				})
			}
		}
	}()
	return nil
}

func truncatePreview(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
