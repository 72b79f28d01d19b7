// Package enforce reacts to fullscreen exits by presenting a blocking
// warning overlay and re-asserting the confined state.
package enforce

import (
	"log"
	"sync"
	"time"

	"github.com/examguard/agent/internal/clock"
	"github.com/examguard/agent/internal/platform"
)

// Config controls enforcement timing.
type Config struct {
	// WarningDuration is how long the overlay stays visible.
	WarningDuration time.Duration

	// ReissueDelay is the pause before re-requesting fullscreen, so the
	// request doesn't fight the browser's gesture requirements.
	ReissueDelay time.Duration

	// Cooldown suppresses duplicate warnings: additional exits inside the
	// window still count upstream, they just don't spawn overlapping UI.
	Cooldown time.Duration

	// Message is the overlay text.
	Message string
}

// Controller debounces warning overlays and re-issues fullscreen requests.
// The suspend hook lets the session controller flag the transient
// Suspended state while a warning is showing.
type Controller struct {
	mu          sync.Mutex
	fs          platform.FullscreenController
	overlay     platform.Overlay
	clk         clock.Clock
	cfg         Config
	suspend     func(bool)
	visible     bool
	lastShownAt time.Time
	timers      []clock.Timer
	stopped     bool
}

func New(fs platform.FullscreenController, overlay platform.Overlay, clk clock.Clock, cfg Config, suspend func(bool)) *Controller {
	if cfg.Message == "" {
		cfg.Message = "Fullscreen is required for this exam. Returning now."
	}
	return &Controller{
		fs:      fs,
		overlay: overlay,
		clk:     clk,
		cfg:     cfg,
		suspend: suspend,
	}
}

// HandleFullscreenExit shows the warning and schedules the fullscreen
// re-request. Called by the session controller for every FullscreenExit
// violation; exits inside the cooldown window are absorbed silently.
func (e *Controller) HandleFullscreenExit() {
	e.mu.Lock()
	if e.stopped || e.visible {
		e.mu.Unlock()
		return
	}
	now := e.clk.Now()
	if !e.lastShownAt.IsZero() && now.Sub(e.lastShownAt) < e.cfg.Cooldown {
		e.mu.Unlock()
		return
	}
	e.visible = true
	e.lastShownAt = now

	hideTimer := e.clk.AfterFunc(e.cfg.WarningDuration, e.hideWarning)
	reissueTimer := e.clk.AfterFunc(e.cfg.ReissueDelay, e.reissue)
	e.timers = append(e.timers, hideTimer, reissueTimer)
	e.mu.Unlock()

	if e.overlay != nil {
		e.overlay.Show(e.cfg.Message)
	}
	if e.suspend != nil {
		e.suspend(true)
	}
}

func (e *Controller) hideWarning() {
	e.mu.Lock()
	if e.stopped || !e.visible {
		e.mu.Unlock()
		return
	}
	e.visible = false
	e.mu.Unlock()

	if e.overlay != nil {
		e.overlay.Hide()
	}
	if e.suspend != nil {
		e.suspend(false)
	}
}

func (e *Controller) reissue() {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped || e.fs == nil {
		return
	}
	if e.fs.IsActive() {
		return
	}
	if err := e.fs.Request(); err != nil {
		log.Printf("[enforce] fullscreen re-request denied: %v", err)
	}
}

// WarningVisible reports whether the overlay is currently showing.
func (e *Controller) WarningVisible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible
}

// Stop cancels pending timers and removes any visible overlay. Safe to
// call more than once.
func (e *Controller) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	wasVisible := e.visible
	e.visible = false
	timers := e.timers
	e.timers = nil
	e.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	if wasVisible && e.overlay != nil {
		e.overlay.Hide()
	}
}
