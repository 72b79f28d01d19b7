package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/examguard/agent/internal/violation"
)

// Options configures a Reporter.
type Options struct {
	// BaseURL is the backend REST root, e.g. "https://host/api".
	BaseURL string

	// Token is the bearer credential attached to every request.
	Token string

	RequestTimeout time.Duration
	RetryDelay     time.Duration

	// Journal receives every violation before any network attempt.
	// Optional; a nil journal disables local durability.
	Journal *Journal
}

// Reporter registers the session with the backend and delivers each
// violation over HTTP. Delivery runs on a background worker so the
// session loop never blocks on the network; failures are logged, retried
// once, then dropped; the journal keeps the durable record.
type Reporter struct {
	opts   Options
	client *http.Client

	mu        sync.Mutex
	sessionID string

	queue chan job
	done  chan struct{}
	once  sync.Once
}

type job struct {
	v violation.Violation

	// flush, when non-nil, marks a drain barrier instead of a delivery.
	flush chan struct{}
}

func NewReporter(opts Options) *Reporter {
	r := &Reporter{
		opts:   opts,
		client: &http.Client{Timeout: opts.RequestTimeout},
		queue:  make(chan job, 64),
		done:   make(chan struct{}),
	}
	go r.worker()
	return r
}

// CreateSession registers a new monitoring session and returns the
// backend-assigned session ID. Called once, before any violation report.
func (r *Reporter) CreateSession(ctx context.Context, subjectID string, startedAt time.Time) (string, error) {
	body := map[string]interface{}{
		"subjectId": subjectID,
		"startedAt": startedAt,
	}
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := r.post(ctx, r.opts.BaseURL+"/sessions", "", body, &resp); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("create session: backend returned empty session id")
	}

	r.mu.Lock()
	r.sessionID = resp.SessionID
	r.mu.Unlock()
	return resp.SessionID, nil
}

// SessionID returns the backend-assigned ID, empty before CreateSession.
func (r *Reporter) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Report journals the violation and queues it for delivery. Never blocks:
// if the queue is full the network copy is dropped and only the journal
// retains it.
func (r *Reporter) Report(v violation.Violation) {
	if r.opts.Journal != nil {
		if err := r.opts.Journal.Append(v); err != nil {
			log.Printf("[report] journal append failed: %v", err)
		}
	}
	select {
	case r.queue <- job{v: v}:
	case <-r.done:
	default:
		log.Printf("[report] delivery queue full, dropping %s (journaled)", v.ID)
	}
}

// Flush blocks until every queued violation has been delivered or the
// context expires. Used on session stop so a report racing the shutdown
// is not abandoned mid-flight.
func (r *Reporter) Flush(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	default:
	}
	barrier := make(chan struct{})
	select {
	case r.queue <- job{flush: barrier}:
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the delivery worker. Safe to call more than once.
func (r *Reporter) Close() {
	r.once.Do(func() { close(r.done) })
}

func (r *Reporter) worker() {
	for {
		select {
		case <-r.done:
			return
		case j := <-r.queue:
			if j.flush != nil {
				close(j.flush)
				continue
			}
			r.deliver(j.v)
		}
	}
}

// deliver posts one violation, retrying once after a short delay on a
// transport error or 5xx. A 4xx is permanent and not retried. Failures
// never propagate to the session loop.
func (r *Reporter) deliver(v violation.Violation) {
	url := fmt.Sprintf("%s/sessions/%s/violations", r.opts.BaseURL, r.SessionID())
	err := r.post(context.Background(), url, v.ID, v, nil)
	if err == nil {
		return
	}
	if permanent(err) {
		log.Printf("[report] violation %s rejected: %v", v.ID, err)
		return
	}

	log.Printf("[report] violation %s delivery failed, retrying: %v", v.ID, err)
	select {
	case <-time.After(r.opts.RetryDelay):
	case <-r.done:
		return
	}
	if err := r.post(context.Background(), url, v.ID, v, nil); err != nil {
		log.Printf("[report] violation %s delivery failed after retry: %v", v.ID, err)
	}
}

// statusError marks a non-2xx response; 4xx ones are permanent.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func permanent(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code >= 400 && se.code < 500
}

// post sends a JSON body and optionally decodes a JSON response. The
// idempotency key, when set, lets the backend deduplicate retries.
func (r *Reporter) post(ctx context.Context, url, idempotencyKey string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.opts.Token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &statusError{code: resp.StatusCode}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
