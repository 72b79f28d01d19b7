package report

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/examguard/agent/internal/violation"
)

type recordedRequest struct {
	path           string
	idempotencyKey string
	body           map[string]interface{}
}

// backendStub is an httptest backend that records every request and can
// fail the first N violation posts.
type backendStub struct {
	srv *httptest.Server

	mu        sync.Mutex
	requests  []recordedRequest
	failFirst int
	failCode  int
}

func newBackendStub(t *testing.T) *backendStub {
	t.Helper()
	s := &backendStub{failCode: http.StatusInternalServerError}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		s.requests = append(s.requests, recordedRequest{
			path:           r.URL.Path,
			idempotencyKey: r.Header.Get("Idempotency-Key"),
			body:           body,
		})
		fail := s.failFirst > 0
		if fail {
			s.failFirst--
		}
		code := s.failCode
		s.mu.Unlock()

		if fail {
			w.WriteHeader(code)
			return
		}
		if r.URL.Path == "/sessions" {
			json.NewEncoder(w).Encode(map[string]string{"sessionId": "sess-42"})
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *backendStub) recorded() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedRequest(nil), s.requests...)
}

func newTestReporter(s *backendStub) *Reporter {
	return NewReporter(Options{
		BaseURL:        s.srv.URL,
		Token:          "test-token",
		RequestTimeout: time.Second,
		RetryDelay:     5 * time.Millisecond,
	})
}

func TestCreateSession(t *testing.T) {
	s := newBackendStub(t)
	r := newTestReporter(s)
	defer r.Close()

	id, err := r.CreateSession(context.Background(), "subj-1", time.Now())
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if id != "sess-42" {
		t.Errorf("session id = %q, want sess-42", id)
	}
	if r.SessionID() != "sess-42" {
		t.Errorf("SessionID() = %q, want sess-42", r.SessionID())
	}

	reqs := s.recorded()
	if len(reqs) != 1 || reqs[0].path != "/sessions" {
		t.Fatalf("requests = %+v, want one POST /sessions", reqs)
	}
	if reqs[0].body["subjectId"] != "subj-1" {
		t.Errorf("subjectId = %v, want subj-1", reqs[0].body["subjectId"])
	}
}

func TestReportDeliversViolation(t *testing.T) {
	s := newBackendStub(t)
	r := newTestReporter(s)
	defer r.Close()

	if _, err := r.CreateSession(context.Background(), "subj-1", time.Now()); err != nil {
		t.Fatal(err)
	}

	v := violation.New(violation.TabSwitch, 2, time.Now(), violation.TabSwitchDetails{Count: 2})
	r.Report(v)
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	reqs := s.recorded()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2 (create + violation)", len(reqs))
	}
	post := reqs[1]
	if post.path != "/sessions/sess-42/violations" {
		t.Errorf("path = %q", post.path)
	}
	if post.idempotencyKey != v.ID {
		t.Errorf("Idempotency-Key = %q, want violation id %q", post.idempotencyKey, v.ID)
	}
	if post.body["kind"] != "tab_switch" {
		t.Errorf("kind = %v, want tab_switch", post.body["kind"])
	}
	if post.body["severity"] != "medium" {
		t.Errorf("severity = %v, want medium", post.body["severity"])
	}
}

func TestReportRetriesOnceOnServerError(t *testing.T) {
	s := newBackendStub(t)
	r := newTestReporter(s)
	defer r.Close()

	if _, err := r.CreateSession(context.Background(), "subj-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	s.failFirst = 1
	s.mu.Unlock()

	r.Report(violation.New(violation.WindowBlur, 1, time.Now(), violation.WindowBlurDetails{}))
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	reqs := s.recorded()
	if len(reqs) != 3 {
		t.Fatalf("got %d requests, want 3 (create + failed post + retry)", len(reqs))
	}
	if reqs[1].idempotencyKey != reqs[2].idempotencyKey {
		t.Error("retry used a different idempotency key")
	}
}

func TestReportDoesNotRetryClientError(t *testing.T) {
	s := newBackendStub(t)
	r := newTestReporter(s)
	defer r.Close()

	if _, err := r.CreateSession(context.Background(), "subj-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	s.failFirst = 2
	s.failCode = http.StatusUnprocessableEntity
	s.mu.Unlock()

	r.Report(violation.New(violation.ClipboardUse, 1, time.Now(), violation.ClipboardDetails{Action: "copy"}))
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	if reqs := s.recorded(); len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2 (4xx must not be retried)", len(reqs))
	}
}

func TestFlushHonorsContext(t *testing.T) {
	s := newBackendStub(t)
	r := newTestReporter(s)
	r.Close() // worker gone, barrier can never drain

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Flush(ctx); err != nil {
		t.Fatalf("Flush() on closed reporter should return nil, got %v", err)
	}
}

func TestJournalAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "violations.jsonl")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal() error: %v", err)
	}

	first := violation.New(violation.TabSwitch, 1, time.Now(), violation.TabSwitchDetails{Count: 1})
	second := violation.New(violation.DevToolsOpen, 1, time.Now(), violation.DevToolsDetails{WidthDelta: 320})
	if err := j.Append(first); err != nil {
		t.Fatal(err)
	}
	if err := j.Append(second); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []violation.Violation
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var v violation.Violation
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			t.Fatalf("bad journal line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, v)
	}
	if len(lines) != 2 {
		t.Fatalf("journal has %d lines, want 2", len(lines))
	}
	if lines[0].ID != first.ID || lines[0].Kind != violation.TabSwitch {
		t.Errorf("first line = %+v", lines[0])
	}
	if lines[1].Severity != violation.High {
		t.Errorf("second line severity = %v, want high", lines[1].Severity)
	}
}

func TestJournalAppendAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "violations.jsonl")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	j.Close()

	v := violation.New(violation.WindowBlur, 1, time.Now(), violation.WindowBlurDetails{})
	if err := j.Append(v); err == nil {
		t.Error("Append() after Close should return error")
	}
}
