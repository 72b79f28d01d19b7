package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/examguard/agent/internal/activity"
	"github.com/examguard/agent/internal/clock"
	"github.com/examguard/agent/internal/config"
	"github.com/examguard/agent/internal/detect"
	"github.com/examguard/agent/internal/enforce"
	"github.com/examguard/agent/internal/platform"
	"github.com/examguard/agent/internal/telemetry"
	"github.com/examguard/agent/internal/violation"
)

// Reporter persists the session record and its violations.
// *report.Reporter satisfies it.
type Reporter interface {
	CreateSession(ctx context.Context, subjectID string, startedAt time.Time) (string, error)
	Report(v violation.Violation)
	Flush(ctx context.Context) error
	Close()
}

// Stream is the live telemetry connection. *telemetry.Channel satisfies it.
type Stream interface {
	Open(ctx context.Context) error
	Push(update telemetry.Update)
	Close() error
}

// Options wires a Controller.
type Options struct {
	Config   *config.Config
	Policy   Policy
	Platform platform.Capabilities
	Clock    clock.Clock
	Reporter Reporter

	// NewStream builds the telemetry channel once the backend has assigned
	// a session ID. Nil selects the default websocket channel; a factory
	// returning nil disables streaming.
	NewStream func(sessionID string, hello func() telemetry.Hello) Stream
}

// Controller is the session state machine. All signal handling happens on
// one loop goroutine, so the violation sequence is strictly ordered;
// getters read a mutex-guarded view.
type Controller struct {
	opts Options
	clk  clock.Clock

	mu         sync.RWMutex
	state      State
	stopped    bool
	sessionID  string
	startedAt  time.Time
	host       activity.HostInfo
	setupNotes []string
	violations []violation.Violation
	counts     map[violation.Kind]int
	severities map[violation.Severity]int
	sinceLast  []violation.Violation
	pendingCtx *telemetry.SessionContext

	agg      *activity.Aggregator
	enforcer *enforce.Controller
	stream   Stream
	signals  chan detect.Signal
	cancel   context.CancelFunc
	loopDone chan struct{}
}

func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	c := &Controller{
		opts:       opts,
		clk:        opts.Clock,
		counts:     make(map[violation.Kind]int),
		severities: make(map[violation.Severity]int),
	}
	c.agg = activity.NewAggregator(c.clk, c.violationCounts)
	return c
}

// Start registers the session with the backend, attaches the detectors the
// policy asks for, opens the telemetry channel and begins observing.
// Starting a running controller terminates the current run first; starting
// after an explicit Stop returns ErrTerminated.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrTerminated
	}
	running := c.state.Running() || c.state == Initializing
	c.mu.Unlock()
	if running {
		log.Printf("[session] start on a running session, restarting")
		c.terminate()
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return ErrTerminated
		}
		c.mu.Unlock()
	}

	now := c.clk.Now()
	host := activity.ProbeHost()

	c.mu.Lock()
	c.state = Initializing
	c.startedAt = now
	c.host = host
	c.setupNotes = nil
	c.violations = nil
	c.counts = make(map[violation.Kind]int)
	c.severities = make(map[violation.Severity]int)
	c.sinceLast = nil
	c.pendingCtx = nil
	c.mu.Unlock()

	sessionID, err := c.opts.Reporter.CreateSession(ctx, c.opts.Policy.SubjectID, now)
	if err != nil {
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()
		return fmt.Errorf("start session: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.sessionID = sessionID
	c.cancel = cancel
	c.signals = make(chan detect.Signal, 128)
	c.loopDone = make(chan struct{})
	c.mu.Unlock()

	if c.opts.Policy.RequireFullscreen {
		c.enforcer = enforce.New(c.opts.Platform.Fullscreen, c.opts.Platform.Overlay, c.clk, enforce.Config{
			WarningDuration: c.opts.Config.Enforce.WarningDuration,
			ReissueDelay:    c.opts.Config.Enforce.ReissueDelay,
			Cooldown:        c.opts.Config.Enforce.WarningCooldown,
			Message:         c.opts.Config.Enforce.WarningMessage,
		}, c.setSuspended)
	}

	c.attachDetectors(runCtx)
	c.openStream(runCtx, sessionID)
	c.agg.Begin()

	c.mu.Lock()
	c.state = Active
	c.mu.Unlock()

	ticker := c.clk.NewTicker(c.opts.Config.Monitor.HeartbeatInterval)
	go c.run(runCtx, ticker, c.signals, c.loopDone)
	log.Printf("[session] %s active for subject %s", sessionID, c.opts.Policy.SubjectID)
	return nil
}

// attachDetectors starts every detector the policy and the platform's
// capabilities allow. A detector setup error degrades the session and is
// recorded in the hello setup notes; it never aborts the start.
func (c *Controller) attachDetectors(ctx context.Context) {
	var detectors []detect.Detector
	caps := c.opts.Platform

	if c.opts.Policy.RequireTabFocus {
		if caps.Visibility != nil {
			detectors = append(detectors, detect.NewVisibilityDetector(caps.Visibility, c.clk, c.emit))
		}
		if caps.Focus != nil {
			detectors = append(detectors, detect.NewFocusDetector(caps.Focus, c.clk, c.emit))
		}
	}
	if c.opts.Policy.RequireFullscreen && caps.Fullscreen != nil {
		detectors = append(detectors, detect.NewFullscreenDetector(caps.Fullscreen, c.clk, c.emit))
	}
	if caps.Clipboard != nil {
		detectors = append(detectors, detect.NewClipboardDetector(caps.Clipboard, c.clk, c.emit, c.opts.Config.Monitor.ClipboardPreviewLen))
	}
	if caps.Viewport != nil {
		detectors = append(detectors, detect.NewDevToolsDetector(caps.Viewport, c.clk, c.emit,
			c.opts.Config.Monitor.DevToolsPollEvery, c.opts.Config.Monitor.DevToolsThresholdPx))
	}
	if caps.Input != nil {
		detectors = append(detectors, detect.NewInputDetector(caps.Input, c.clk, c.agg.Touch))
	}

	for _, d := range detectors {
		if err := d.Start(ctx); err != nil {
			log.Printf("[session] detector %s degraded: %v", d.Name(), err)
			c.mu.Lock()
			c.setupNotes = append(c.setupNotes, fmt.Sprintf("%s: %v", d.Name(), err))
			c.mu.Unlock()
		}
	}
}

func (c *Controller) openStream(ctx context.Context, sessionID string) {
	factory := c.opts.NewStream
	if factory == nil {
		factory = c.defaultStream
	}
	stream := factory(sessionID, c.hello)
	if stream == nil {
		return
	}
	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()
	if err := stream.Open(ctx); err != nil {
		log.Printf("[session] telemetry open failed, continuing: %v", err)
	}
}

func (c *Controller) defaultStream(sessionID string, hello func() telemetry.Hello) Stream {
	cfg := c.opts.Config
	return telemetry.NewChannel(telemetry.Options{
		URL:   cfg.Backend.TelemetryURL + "/" + sessionID,
		Token: cfg.Backend.Token,
		Backoff: telemetry.Backoff{
			Base:        cfg.Telemetry.ReconnectBase,
			MaxAttempts: cfg.Telemetry.ReconnectAttempts,
		},
		WriteTimeout: cfg.Telemetry.WriteTimeout,
		PingInterval: cfg.Telemetry.PingInterval,
		PongTimeout:  cfg.Telemetry.PongTimeout,
		Hello:        hello,
		Clock:        c.clk,
	})
}

// hello builds the state-sync message for every channel (re)connect.
func (c *Controller) hello() telemetry.Hello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return telemetry.Hello{
		Type:       telemetry.MsgHello,
		SessionID:  c.sessionID,
		SubjectID:  c.opts.Policy.SubjectID,
		StartedAt:  c.startedAt,
		Host:       c.host,
		SetupNotes: append([]string(nil), c.setupNotes...),
	}
}

// emit hands a detector signal to the loop. Never blocks: the buffer is
// generous and a full buffer means the loop is wedged, which dropping
// cannot make worse.
func (c *Controller) emit(sig detect.Signal) {
	c.mu.RLock()
	signals := c.signals
	c.mu.RUnlock()
	if signals == nil {
		return
	}
	select {
	case signals <- sig:
	default:
		log.Printf("[session] signal buffer full, dropping %s", sig.Kind)
	}
}

func (c *Controller) run(ctx context.Context, ticker clock.Ticker, signals <-chan detect.Signal, done chan struct{}) {
	defer ticker.Stop()
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			c.handleSignal(sig)
		case <-ticker.C():
			c.heartbeat()
		}
	}
}

// handleSignal classifies one raw signal into a violation and fans it out.
// Runs only on the loop goroutine, so the sequence order is the arrival
// order.
func (c *Controller) handleSignal(sig detect.Signal) {
	c.mu.Lock()
	count := c.counts[sig.Kind] + 1
	v := violation.New(sig.Kind, count, sig.At, sig.Details)
	// The sequence is monotonic in occurredAt. Detector goroutines race the
	// fan-in channel, and clipboard/input timestamps are host-supplied, so
	// an older time can arrive after a newer one; clamp to the last entry.
	if n := len(c.violations); n > 0 {
		if last := c.violations[n-1].OccurredAt; v.OccurredAt.Before(last) {
			v.OccurredAt = last
		}
	}
	c.violations = append(c.violations, v)
	c.counts[sig.Kind] = count
	c.severities[v.Severity]++
	c.sinceLast = append(c.sinceLast, v)
	c.mu.Unlock()

	c.agg.Touch(sig.At)
	log.Printf("[session] violation %s #%d severity=%s", v.Kind, count, v.Severity)

	c.opts.Reporter.Report(v)
	c.push(nil)

	if v.Kind == violation.FullscreenExit && c.enforcer != nil {
		c.enforcer.HandleFullscreenExit()
	}
	if c.opts.Policy.OnViolation != nil {
		notify(func() { c.opts.Policy.OnViolation(v) }, "onViolation")
	}
}

func (c *Controller) heartbeat() {
	sample := activity.SampleResources(c.clk.Now())
	snap := c.push(&sample)
	if c.opts.Policy.OnActivityUpdate != nil {
		notify(func() { c.opts.Policy.OnActivityUpdate(snap) }, "onActivityUpdate")
	}
}

// push sends one activity update. The since-last batch and the pending
// context advance on every push attempt, connected or not: the channel is
// best-effort and the reporter owns durability.
func (c *Controller) push(resources *activity.ResourceSample) activity.Snapshot {
	snap := c.agg.Snapshot()

	c.mu.Lock()
	batch := c.sinceLast
	c.sinceLast = nil
	sessionCtx := c.pendingCtx
	c.pendingCtx = nil
	stream := c.stream
	c.mu.Unlock()

	if stream != nil {
		stream.Push(telemetry.Update{
			Type:                telemetry.MsgActivityUpdate,
			Snapshot:            snap,
			ViolationsSinceLast: batch,
			Context:             sessionCtx,
			Resources:           resources,
		})
	}
	return snap
}

// notify runs a host callback, recovering panics so a host bug cannot kill
// the pipeline.
func notify(fn func(), name string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[session] %s callback panicked: %v", name, r)
		}
	}()
	fn()
}

// setSuspended flags the transient Suspended state while an enforcement
// warning is showing.
func (c *Controller) setSuspended(suspended bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case suspended && c.state == Active:
		c.state = Suspended
	case !suspended && c.state == Suspended:
		c.state = Active
	}
}

// UpdateContext attaches host metadata (current code, language, problem)
// to the next telemetry push.
func (c *Controller) UpdateContext(sc telemetry.SessionContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingCtx = &sc
}

// violationCounts feeds the aggregator; reading through the controller is
// what keeps snapshot counters and the sequence in lockstep.
func (c *Controller) violationCounts() (int, map[violation.Kind]int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byKind := make(map[violation.Kind]int, len(c.counts))
	for k, n := range c.counts {
		byKind[k] = n
	}
	return len(c.violations), byKind
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Snapshot returns the current activity view.
func (c *Controller) Snapshot() activity.Snapshot {
	return c.agg.Snapshot()
}

// Violations returns a copy of the ordered violation sequence.
func (c *Controller) Violations() []violation.Violation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]violation.Violation(nil), c.violations...)
}

// ViolationSummary aggregates the sequence for the post-session report.
func (c *Controller) ViolationSummary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Summary{
		Total:      len(c.violations),
		ByKind:     make(map[violation.Kind]int, len(c.counts)),
		BySeverity: make(map[violation.Severity]int, len(c.severities)),
	}
	for k, n := range c.counts {
		s.ByKind[k] = n
	}
	for sev, n := range c.severities {
		s.BySeverity[sev] = n
	}
	return s
}

// Stop terminates the session for good: detectors stop, queued reports are
// flushed, the channel closes gracefully. Safe to call more than once;
// Start afterwards returns ErrTerminated.
func (c *Controller) Stop() {
	c.mu.Lock()
	already := c.stopped
	c.stopped = true
	c.mu.Unlock()
	if already {
		return
	}
	c.terminate()
}

// terminate tears down the current run. Also used by Start when the host
// restarts a running session.
func (c *Controller) terminate() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	loopDone := c.loopDone
	stream := c.stream
	c.stream = nil
	c.signals = nil
	c.state = Terminated
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-loopDone

	if c.enforcer != nil {
		c.enforcer.Stop()
		c.enforcer = nil
	}
	c.agg.End()

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), c.opts.Config.Report.FlushTimeout)
	if err := c.opts.Reporter.Flush(flushCtx); err != nil {
		log.Printf("[session] report flush incomplete: %v", err)
	}
	cancelFlush()

	if stream != nil {
		if err := stream.Close(); err != nil {
			log.Printf("[session] telemetry close: %v", err)
		}
	}
	log.Printf("[session] terminated")
}
