// Package sim provides a scripted, in-process implementation of the
// platform capabilities. The demo binary runs the monitor against it, and
// package tests use it to drive detector signals deterministically.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/examguard/agent/internal/platform"
)

// ErrFullscreenDenied is returned by Request when the simulated user has
// denied the fullscreen prompt.
var ErrFullscreenDenied = errors.New("sim: fullscreen request denied")

// Platform implements every capability interface in internal/platform and
// exposes trigger methods for tests and the demo script.
type Platform struct {
	mu sync.Mutex

	visibilitySubs []chan bool
	focusSubs      []chan bool
	fullscreenSubs []chan bool
	clipboardSubs  []chan platform.ClipboardEvent
	inputSubs      []chan platform.InputEvent

	viewport         platform.ViewportMetrics
	fullscreenActive bool
	denyFullscreen   bool
	requestCount     int
	interceptActive  bool

	overlayVisible bool
	overlayMessage string
}

func NewPlatform() *Platform {
	return &Platform{
		viewport: platform.ViewportMetrics{
			OuterWidth:  1920,
			OuterHeight: 1080,
			InnerWidth:  1920,
			InnerHeight: 1080,
		},
	}
}

// Capabilities bundles this simulator into the form the session controller
// consumes.
func (p *Platform) Capabilities() platform.Capabilities {
	return platform.Capabilities{
		Visibility: p,
		Focus:      p,
		Fullscreen: p,
		Clipboard:  p,
		Viewport:   p,
		Input:      p,
		Overlay:    p,
	}
}

// --- watcher implementations ---

func (p *Platform) WatchVisibility(ctx context.Context) (<-chan bool, error) {
	return subscribe(ctx, &p.mu, &p.visibilitySubs), nil
}

func (p *Platform) WatchFocus(ctx context.Context) (<-chan bool, error) {
	return subscribe(ctx, &p.mu, &p.focusSubs), nil
}

func (p *Platform) WatchFullscreen(ctx context.Context) (<-chan bool, error) {
	return subscribe(ctx, &p.mu, &p.fullscreenSubs), nil
}

func (p *Platform) WatchClipboard(ctx context.Context) (<-chan platform.ClipboardEvent, error) {
	return subscribe(ctx, &p.mu, &p.clipboardSubs), nil
}

func (p *Platform) WatchInput(ctx context.Context) (<-chan platform.InputEvent, error) {
	return subscribe(ctx, &p.mu, &p.inputSubs), nil
}

func (p *Platform) Metrics() (platform.ViewportMetrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport, nil
}

// --- fullscreen controller ---

func (p *Platform) Request() error {
	p.mu.Lock()
	p.requestCount++
	if p.denyFullscreen {
		p.mu.Unlock()
		return ErrFullscreenDenied
	}
	p.fullscreenActive = true
	subs := append([]chan bool(nil), p.fullscreenSubs...)
	p.mu.Unlock()
	send(subs, true)
	return nil
}

func (p *Platform) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fullscreenActive
}

func (p *Platform) InterceptExitShortcuts(ctx context.Context) error {
	p.mu.Lock()
	p.interceptActive = true
	p.mu.Unlock()
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		p.interceptActive = false
		p.mu.Unlock()
	}()
	return nil
}

// --- overlay ---

func (p *Platform) Show(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overlayVisible = true
	p.overlayMessage = message
}

func (p *Platform) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overlayVisible = false
}

// --- triggers and inspection for tests / demo script ---

// SetVisible flips page visibility and notifies watchers.
func (p *Platform) SetVisible(visible bool) {
	p.mu.Lock()
	subs := append([]chan bool(nil), p.visibilitySubs...)
	p.mu.Unlock()
	send(subs, visible)
}

// SetFocused flips window focus and notifies watchers.
func (p *Platform) SetFocused(focused bool) {
	p.mu.Lock()
	subs := append([]chan bool(nil), p.focusSubs...)
	p.mu.Unlock()
	send(subs, focused)
}

// ExitFullscreen simulates the user leaving fullscreen.
func (p *Platform) ExitFullscreen() {
	p.mu.Lock()
	p.fullscreenActive = false
	subs := append([]chan bool(nil), p.fullscreenSubs...)
	p.mu.Unlock()
	send(subs, false)
}

// DenyFullscreen controls whether subsequent Request calls are denied.
func (p *Platform) DenyFullscreen(deny bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denyFullscreen = deny
}

// Copy simulates a copy event carrying the given selection.
func (p *Platform) Copy(content string) {
	p.clipboard(platform.ClipboardCopy, content)
}

// Paste simulates a paste event carrying the given payload.
func (p *Platform) Paste(content string) {
	p.clipboard(platform.ClipboardPaste, content)
}

func (p *Platform) clipboard(action platform.ClipboardAction, content string) {
	p.mu.Lock()
	subs := append([]chan platform.ClipboardEvent(nil), p.clipboardSubs...)
	p.mu.Unlock()
	send(subs, platform.ClipboardEvent{Action: action, Content: content})
}

// SetViewport replaces the geometry returned by Metrics.
func (p *Platform) SetViewport(m platform.ViewportMetrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport = m
}

// Input simulates generic user activity at the given time.
func (p *Platform) Input(at time.Time) {
	p.mu.Lock()
	subs := append([]chan platform.InputEvent(nil), p.inputSubs...)
	p.mu.Unlock()
	send(subs, platform.InputEvent{At: at})
}

// OverlayVisible reports whether the enforcement warning is showing.
func (p *Platform) OverlayVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlayVisible
}

// OverlayMessage returns the last message passed to Show.
func (p *Platform) OverlayMessage() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlayMessage
}

// FullscreenRequests counts Request calls, granted or denied.
func (p *Platform) FullscreenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requestCount
}

// InterceptActive reports whether exit-shortcut interception is in place.
func (p *Platform) InterceptActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interceptActive
}

// subscribe registers a buffered channel in subs and removes it when ctx
// ends. Sends are non-blocking; a subscriber that falls 32 events behind
// starts losing events, mirroring how a real event loop would coalesce.
// The channel is left open after removal: consumers exit via ctx, and an
// in-flight broadcast must never hit a closed channel.
func subscribe[T any](ctx context.Context, mu *sync.Mutex, subs *[]chan T) <-chan T {
	ch := make(chan T, 32)
	mu.Lock()
	*subs = append(*subs, ch)
	mu.Unlock()

	go func() {
		<-ctx.Done()
		mu.Lock()
		for i, c := range *subs {
			if c == ch {
				*subs = append((*subs)[:i], (*subs)[i+1:]...)
				break
			}
		}
		mu.Unlock()
	}()
	return ch
}

func send[T any](subs []chan T, v T) {
	for _, ch := range subs {
		select {
		case ch <- v:
		default:
		}
	}
}
