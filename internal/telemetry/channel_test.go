package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/examguard/agent/internal/activity"
)

// wsServer is a minimal websocket endpoint that records every inbound
// message and the bearer header of each dial.
type wsServer struct {
	srv      *httptest.Server
	messages chan []byte
	tokens   chan string
	conns    chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{
		messages: make(chan []byte, 64),
		tokens:   make(chan string, 8),
		conns:    make(chan *websocket.Conn, 8),
	}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.tokens <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.messages <- data
		}
	}))
	t.Cleanup(s.srv.CloseClientConnections)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) nextMessage(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case data := <-s.messages:
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("bad message %q: %v", data, err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func (s *wsServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func testOptions(s *wsServer) Options {
	return Options{
		URL:          s.url(),
		Token:        "test-token",
		Backoff:      Backoff{Base: 5 * time.Millisecond, MaxAttempts: 3},
		WriteTimeout: time.Second,
		Hello: func() Hello {
			return Hello{Type: MsgHello, SessionID: "sess-1", SubjectID: "subj-1"}
		},
	}
}

func TestChannelSendsHelloOnOpen(t *testing.T) {
	s := newWSServer(t)
	c := NewChannel(testOptions(s))
	defer c.Close()

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	if token := <-s.tokens; token != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer token", token)
	}
	msg := s.nextMessage(t)
	if msg["type"] != "hello" {
		t.Errorf("first message type = %v, want hello", msg["type"])
	}
	if msg["sessionId"] != "sess-1" {
		t.Errorf("sessionId = %v, want sess-1", msg["sessionId"])
	}
	if !c.Connected() {
		t.Error("Connected() = false after successful open")
	}
}

func TestChannelPush(t *testing.T) {
	s := newWSServer(t)
	c := NewChannel(testOptions(s))
	defer c.Close()

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s.nextMessage(t) // hello

	c.Push(Update{
		Type:     MsgActivityUpdate,
		Snapshot: activity.Snapshot{TabSwitchCount: 2, ViolationCount: 2},
	})

	msg := s.nextMessage(t)
	if msg["type"] != "activity_update" {
		t.Errorf("message type = %v, want activity_update", msg["type"])
	}
	snap, ok := msg["snapshot"].(map[string]interface{})
	if !ok {
		t.Fatalf("snapshot missing from update: %v", msg)
	}
	if snap["tabSwitchCount"] != float64(2) {
		t.Errorf("tabSwitchCount = %v, want 2", snap["tabSwitchCount"])
	}
}

func TestChannelReconnectsAfterDrop(t *testing.T) {
	s := newWSServer(t)
	c := NewChannel(testOptions(s))
	defer c.Close()

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	conn := s.nextConn(t)
	s.nextMessage(t) // hello

	// Kill the connection server-side; the channel should dial again and
	// resend the state-sync hello.
	conn.Close()

	msg := s.nextMessage(t)
	if msg["type"] != "hello" {
		t.Errorf("post-reconnect message type = %v, want hello", msg["type"])
	}
	if c.Degraded() {
		t.Error("Degraded() = true after successful reconnect")
	}
}

func TestChannelDegradedAfterExhaustion(t *testing.T) {
	s := newWSServer(t)
	url := s.url()
	s.srv.CloseClientConnections()
	s.srv.Close()

	degraded := make(chan struct{})
	opts := testOptions(s)
	opts.URL = url
	opts.OnDegraded = func() { close(degraded) }
	c := NewChannel(opts)
	defer c.Close()

	// Open fails and the bounded reconnect loop runs out of attempts.
	if err := c.Open(context.Background()); err == nil {
		t.Fatal("Open() against closed server should return error")
	}

	select {
	case <-degraded:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for degraded callback")
	}
	if !c.Degraded() {
		t.Error("Degraded() = false after exhausting reconnect attempts")
	}
	if c.Connected() {
		t.Error("Connected() = true on a degraded channel")
	}
}

func TestChannelCloseStopsReconnect(t *testing.T) {
	s := newWSServer(t)
	url := s.url()
	s.srv.CloseClientConnections()
	s.srv.Close()

	fired := make(chan struct{}, 1)
	opts := testOptions(s)
	opts.URL = url
	opts.Backoff = Backoff{Base: 50 * time.Millisecond, MaxAttempts: 3}
	opts.OnDegraded = func() { fired <- struct{}{} }
	c := NewChannel(opts)

	c.Open(context.Background())
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	select {
	case <-fired:
		t.Error("reconnect loop kept running after explicit close")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestChannelPingsWithoutWriteTimeout(t *testing.T) {
	s := newWSServer(t)
	opts := testOptions(s)
	opts.WriteTimeout = 0
	opts.PingInterval = 20 * time.Millisecond
	c := NewChannel(opts)
	defer c.Close()

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s.nextMessage(t) // hello

	// Several ping intervals pass; with no write timeout the keepalive
	// must not impose an already-expired deadline and kill the connection.
	time.Sleep(100 * time.Millisecond)

	if !c.Connected() {
		t.Fatal("Connected() = false after ping intervals with zero write timeout")
	}
	c.Push(Update{Type: MsgActivityUpdate})
	if msg := s.nextMessage(t); msg["type"] != "activity_update" {
		t.Errorf("message type = %v, want activity_update", msg["type"])
	}
}

func TestChannelPushAfterCloseIsDropped(t *testing.T) {
	s := newWSServer(t)
	c := NewChannel(testOptions(s))

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s.nextMessage(t) // hello

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}

	// Must not panic or block.
	c.Push(Update{Type: MsgActivityUpdate})
}
