// Package report delivers violations to the backend durably: every
// violation is appended to a local JSONL journal before any network
// attempt, so a crash or offline stretch never loses a record.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/examguard/agent/internal/violation"
)

// Journal is an append-only JSONL file, one violation per line. Appends
// are synchronous; the file is the source of truth for post-session audit.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{file: f, enc: json.NewEncoder(f)}, nil
}

// Append writes one violation as a single JSON line.
func (j *Journal) Append(v violation.Violation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return fmt.Errorf("journal closed")
	}
	if err := j.enc.Encode(v); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
