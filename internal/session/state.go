// Package session runs the monitored exam session: it owns the lifecycle
// state machine, the ordered violation sequence, and the single loop that
// classifies detector signals and fans them out to enforcement, the
// reporter and the telemetry channel.
package session

import (
	"encoding/json"
	"errors"

	"github.com/examguard/agent/internal/activity"
	"github.com/examguard/agent/internal/violation"
)

// ErrTerminated is returned by Start after an explicit Stop; a stopped
// session cannot be revived.
var ErrTerminated = errors.New("session terminated")

type State int

const (
	Idle State = iota
	Initializing
	Active
	Suspended
	Terminated
)

var stateNames = map[State]string{
	Idle:         "idle",
	Initializing: "initializing",
	Active:       "active",
	Suspended:    "suspended",
	Terminated:   "terminated",
}

var stateFromName = map[string]State{
	"idle":         Idle,
	"initializing": Initializing,
	"active":       Active,
	"suspended":    Suspended,
	"terminated":   Terminated,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := stateFromName[n]; ok {
		*s = v
	}
	return nil
}

// Running reports whether the session is observing (Active or the
// transient Suspended while an enforcement warning is up).
func (s State) Running() bool {
	return s == Active || s == Suspended
}

// Policy is the host-supplied per-session configuration.
type Policy struct {
	// SubjectID identifies the examinee to the backend.
	SubjectID string

	// RequireFullscreen turns on the fullscreen detector and the
	// enforcement controller.
	RequireFullscreen bool

	// RequireTabFocus attaches the visibility and focus detectors. When
	// false, tab switches and window blurs are not observed at all.
	RequireTabFocus bool

	// OnViolation, when set, is invoked for every classified violation.
	// Panics in the callback are recovered; the pipeline never dies for a
	// host bug.
	OnViolation func(violation.Violation)

	// OnActivityUpdate, when set, is invoked on every heartbeat.
	OnActivityUpdate func(activity.Snapshot)
}

// Summary aggregates the violation sequence for the post-session report.
type Summary struct {
	Total      int                        `json:"total"`
	ByKind     map[violation.Kind]int     `json:"byKind"`
	BySeverity map[violation.Severity]int `json:"bySeverity"`
}
