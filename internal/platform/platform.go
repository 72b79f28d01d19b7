// Package platform defines the capability interfaces the detectors observe.
// The embedding host supplies adapters for its runtime (browser bridge,
// kiosk shell, webview); tests and the demo binary use the scripted
// simulator in internal/sim. A nil capability means the host cannot provide
// that signal source and the corresponding detector is simply not attached.
package platform

import (
	"context"
	"time"
)

// Capabilities bundles every signal source and effector the monitor can
// use. Fields may be nil.
type Capabilities struct {
	Visibility VisibilityWatcher
	Focus      FocusWatcher
	Fullscreen FullscreenController
	Clipboard  ClipboardWatcher
	Viewport   ViewportProber
	Input      InputWatcher
	Overlay    Overlay
}

// VisibilityWatcher observes page/tab visibility transitions.
type VisibilityWatcher interface {
	// WatchVisibility emits true when the page becomes visible and false
	// when it becomes hidden. The channel is closed when ctx is cancelled.
	WatchVisibility(ctx context.Context) (<-chan bool, error)
}

// FocusWatcher observes window focus independent of tab visibility. This
// covers alt-tabbing to another application while the tab stays "visible".
type FocusWatcher interface {
	// WatchFocus emits true on focus and false on blur. The channel is
	// closed when ctx is cancelled.
	WatchFocus(ctx context.Context) (<-chan bool, error)
}

// FullscreenController abstracts the fullscreen API behind a single
// capability so vendor-specific fallbacks live in the adapter, not in the
// detector.
type FullscreenController interface {
	// Request asks the host to enter fullscreen. An error means the
	// request was denied; the session proceeds in degraded mode.
	Request() error

	// IsActive reports whether the host is currently fullscreen.
	IsActive() bool

	// WatchFullscreen emits the new fullscreen state on every transition.
	// The channel is closed when ctx is cancelled.
	WatchFullscreen(ctx context.Context) (<-chan bool, error)

	// InterceptExitShortcuts suppresses the default action of the
	// keyboard shortcuts conventionally used to leave fullscreen, so
	// enforcement gets first refusal. Interception ends when ctx is
	// cancelled.
	InterceptExitShortcuts(ctx context.Context) error
}

// ClipboardAction distinguishes copy from paste.
type ClipboardAction string

const (
	ClipboardCopy  ClipboardAction = "copy"
	ClipboardPaste ClipboardAction = "paste"
)

// ClipboardEvent is a single observed copy or paste. Content carries the
// captured selection; the clipboard detector truncates it before it leaves
// the process.
type ClipboardEvent struct {
	Action  ClipboardAction
	Content string
	At      time.Time
}

// ClipboardWatcher observes copy and paste events.
type ClipboardWatcher interface {
	WatchClipboard(ctx context.Context) (<-chan ClipboardEvent, error)
}

// ViewportMetrics is a point-in-time reading of window geometry. The
// devtools heuristic polls the outer/inner deltas.
type ViewportMetrics struct {
	OuterWidth  int
	OuterHeight int
	InnerWidth  int
	InnerHeight int
}

// ViewportProber reads current window geometry on demand.
type ViewportProber interface {
	Metrics() (ViewportMetrics, error)
}

// InputEvent is a generic user-activity observation (pointer movement,
// key press, scroll, click). Only the timestamp matters to the monitor.
type InputEvent struct {
	At time.Time
}

// InputWatcher passively observes user input activity.
type InputWatcher interface {
	WatchInput(ctx context.Context) (<-chan InputEvent, error)
}

// Overlay presents the blocking enforcement warning.
type Overlay interface {
	// Show displays a non-dismissible full-viewport warning.
	Show(message string)

	// Hide removes the warning if visible.
	Hide()
}
