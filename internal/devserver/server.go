// Package devserver is a minimal in-process stand-in for the exam backend.
// The -sim demo mounts it so the agent can run end-to-end (session
// registration, violation persistence, telemetry socket) without any
// infrastructure. It logs what it receives and keeps everything in memory.
package devserver

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Server struct {
	authToken string
	upgrader  websocket.Upgrader

	mu         sync.Mutex
	subjects   map[string]string // session id -> subject id
	violations map[string]int    // session id -> accepted count
	seenKeys   map[string]bool   // idempotency keys already accepted
}

func New(authToken string) *Server {
	return &Server{
		authToken:  authToken,
		subjects:   make(map[string]string),
		violations: make(map[string]int),
		seenKeys:   make(map[string]bool),
	}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/sessions", s.handleCreateSession)
	mux.HandleFunc("/sessions/", s.handleSessionRoutes)
	mux.HandleFunc("/ws/sessions/", s.handleTelemetry)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.authToken
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		SubjectID string `json:"subjectId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.subjects[id] = req.SubjectID
	s.mu.Unlock()

	log.Printf("[devserver] session %s registered for subject %s", id, req.SubjectID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"sessionId": id})
}

// handleSessionRoutes dispatches /sessions/{id}/violations.
func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "violations" || r.Method != http.MethodPost {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	sessionID := parts[0]

	s.mu.Lock()
	_, known := s.subjects[sessionID]
	s.mu.Unlock()
	if !known {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	var v struct {
		Kind     string `json:"kind"`
		Severity string `json:"severity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if key := r.Header.Get("Idempotency-Key"); key != "" {
		s.mu.Lock()
		duplicate := s.seenKeys[key]
		s.seenKeys[key] = true
		if !duplicate {
			s.violations[sessionID]++
		}
		s.mu.Unlock()
		if duplicate {
			log.Printf("[devserver] duplicate violation %s ignored", key)
			w.WriteHeader(http.StatusOK)
			return
		}
	} else {
		s.mu.Lock()
		s.violations[sessionID]++
		s.mu.Unlock()
	}

	log.Printf("[devserver] session %s violation kind=%s severity=%s", sessionID, v.Kind, v.Severity)
	w.WriteHeader(http.StatusCreated)
}

// handleTelemetry accepts the agent's streaming channel and logs the
// traffic, acking every update.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sessionID := strings.TrimPrefix(r.URL.Path, "/ws/sessions/")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[devserver] upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	log.Printf("[devserver] telemetry channel open for session %s", sessionID)

	for {
		var msg struct {
			Type                string            `json:"type"`
			SubjectID           string            `json:"subjectId"`
			ViolationsSinceLast []json.RawMessage `json:"violationsSinceLast"`
			Snapshot            struct {
				ElapsedSeconds int `json:"elapsedSeconds"`
				ViolationCount int `json:"violationCount"`
			} `json:"snapshot"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("[devserver] telemetry channel closed for session %s", sessionID)
			return
		}

		switch msg.Type {
		case "hello":
			log.Printf("[devserver] hello from subject %s", msg.SubjectID)
		case "activity_update":
			log.Printf("[devserver] update: elapsed=%ds violations=%d batch=%d",
				msg.Snapshot.ElapsedSeconds, msg.Snapshot.ViolationCount, len(msg.ViolationsSinceLast))
		}
		if err := conn.WriteJSON(map[string]string{"type": "ack"}); err != nil {
			return
		}
	}
}

// ViolationCount reports how many distinct violations a session has posted.
func (s *Server) ViolationCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.violations[sessionID]
}
