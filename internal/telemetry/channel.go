// Package telemetry maintains the live streaming connection to the
// backend observer. Delivery is best-effort: when the socket is not open,
// pushes are dropped without queueing. Durability belongs to the
// reporter, not this channel.
package telemetry

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/examguard/agent/internal/clock"
)

// Options configures a Channel.
type Options struct {
	// URL is the per-session websocket endpoint.
	URL string

	// Token is the bearer credential sent on dial.
	Token string

	Backoff      Backoff
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration

	// Hello builds the state-sync message sent on every (re)connect.
	Hello func() Hello

	// OnDegraded fires once when reconnect attempts are exhausted.
	OnDegraded func()

	Clock clock.Clock
}

// Channel is a resilient websocket connection. An unexpected close
// triggers bounded reconnects with linear backoff; after exhaustion the
// channel is degraded (one-way-dead) and the session continues without it.
type Channel struct {
	opts   Options
	dialer *websocket.Dialer

	mu       sync.Mutex
	writeMu  sync.Mutex // serialises conn writes (push, hello, ping)
	conn     *websocket.Conn
	closed   bool
	degraded bool
}

func NewChannel(opts Options) *Channel {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	return &Channel{
		opts:   opts,
		dialer: websocket.DefaultDialer,
	}
}

// Open dials the endpoint and sends the hello message. A dial failure is
// not fatal: the reconnect loop starts in the background and the session
// proceeds; the error is informational.
func (c *Channel) Open(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		log.Printf("[telemetry] initial dial failed: %v", err)
		go c.reconnect(ctx)
		return err
	}
	c.adopt(ctx, conn)
	return nil
}

// Push sends an update if the connection is open and healthy. Pushes on a
// closed, degraded or reconnecting channel are silently dropped.
func (c *Channel) Push(update Update) {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if conn == nil || closed {
		return
	}
	if err := c.writeJSON(conn, update); err != nil {
		// The read loop notices the broken conn and reconnects.
		log.Printf("[telemetry] push failed: %v", err)
	}
}

// Degraded reports whether reconnect attempts have been exhausted.
func (c *Channel) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Connected reports whether a socket is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close shuts the channel down for good. No reconnect is attempted after
// an explicit close. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	deadline := c.opts.Clock.Now().Add(c.opts.WriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// adopt installs a freshly dialed connection: hello, read loop, ping loop.
func (c *Channel) adopt(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.degraded = false
	c.mu.Unlock()

	if c.opts.Hello != nil {
		if err := c.writeJSON(conn, c.opts.Hello()); err != nil {
			log.Printf("[telemetry] hello failed: %v", err)
		}
	}

	go c.readLoop(ctx, conn)
	go c.pingLoop(ctx, conn)
}

// readLoop consumes inbound pong/ack messages until the connection drops,
// then hands off to the reconnect loop unless the close was deliberate.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	if c.opts.PongTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
			return nil
		})
	}

	for {
		var msg Inbound
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if c.opts.PongTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		}
		// pong/ack are heartbeat acknowledgments only; nothing to do.
	}

	conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	deliberate := c.closed
	c.mu.Unlock()

	if deliberate || ctx.Err() != nil {
		return
	}
	log.Printf("[telemetry] connection lost, reconnecting")
	c.reconnect(ctx)
}

// reconnect retries the dial with linear backoff until it succeeds or the
// attempt budget is spent, at which point the channel is marked degraded.
func (c *Channel) reconnect(ctx context.Context) {
	for attempt := 1; !c.opts.Backoff.Exhausted(attempt); attempt++ {
		if !c.sleep(ctx, c.opts.Backoff.Delay(attempt)) {
			return
		}
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			log.Printf("[telemetry] reconnect attempt %d/%d failed: %v",
				attempt, c.opts.Backoff.MaxAttempts, err)
			continue
		}
		log.Printf("[telemetry] reconnected on attempt %d", attempt)
		c.adopt(ctx, conn)
		return
	}

	c.mu.Lock()
	c.degraded = true
	c.mu.Unlock()
	log.Printf("[telemetry] reconnect attempts exhausted, channel degraded")
	if c.opts.OnDegraded != nil {
		c.opts.OnDegraded()
	}
}

// sleep waits d on the channel's clock; reports false if ctx ended first.
func (c *Channel) sleep(ctx context.Context, d time.Duration) bool {
	done := make(chan struct{})
	t := c.opts.Clock.AfterFunc(d, func() { close(done) })
	select {
	case <-done:
		return true
	case <-ctx.Done():
		t.Stop()
		return false
	}
}

func (c *Channel) writeJSON(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.opts.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	return conn.WriteJSON(v)
}

// pingLoop keeps the connection alive. It exits when the connection is
// replaced or the context ends.
func (c *Channel) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if c.opts.PingInterval <= 0 {
		return
	}
	ticker := c.opts.Clock.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.mu.Lock()
			current := c.conn
			c.mu.Unlock()
			if current != conn {
				return
			}
			c.writeMu.Lock()
			if c.opts.WriteTimeout > 0 {
				conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			}
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
