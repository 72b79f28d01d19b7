// Package violation defines the classified integrity-breach record and the
// severity rule table. Violations are immutable once created; the session
// controller appends them to an ordered sequence that serves as the audit
// trail for the proctored session.
package violation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Kind int

const (
	TabSwitch Kind = iota
	FullscreenExit
	WindowBlur
	ClipboardUse
	DevToolsOpen
)

var kindNames = map[Kind]string{
	TabSwitch:      "tab_switch",
	FullscreenExit: "fullscreen_exit",
	WindowBlur:     "window_blur",
	ClipboardUse:   "clipboard_use",
	DevToolsOpen:   "devtools_open",
}

var kindFromName = map[string]Kind{
	"tab_switch":      TabSwitch,
	"fullscreen_exit": FullscreenExit,
	"window_blur":     WindowBlur,
	"clipboard_use":   ClipboardUse,
	"devtools_open":   DevToolsOpen,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := kindFromName[s]; ok {
		*k = v
	}
	return nil
}

type Severity int

const (
	Low Severity = iota
	Medium
	High
)

var severityNames = map[Severity]string{
	Low:    "low",
	Medium: "medium",
	High:   "high",
}

var severityFromName = map[string]Severity{
	"low":    Low,
	"medium": Medium,
	"high":   High,
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := severityFromName[n]; ok {
		*s = v
	}
	return nil
}

// Violation is a single classified integrity-breach record.
type Violation struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Severity   Severity  `json:"severity"`
	OccurredAt time.Time `json:"occurredAt"`
	Details    Details   `json:"context"`
}

// UnmarshalJSON decodes the kind-specific details payload into its
// concrete type so journal replay round-trips cleanly.
func (v *Violation) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string          `json:"id"`
		Kind       Kind            `json:"kind"`
		Severity   Severity        `json:"severity"`
		OccurredAt time.Time       `json:"occurredAt"`
		Details    json.RawMessage `json:"context"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.ID = raw.ID
	v.Kind = raw.Kind
	v.Severity = raw.Severity
	v.OccurredAt = raw.OccurredAt
	v.Details = nil
	if len(raw.Details) == 0 || string(raw.Details) == "null" {
		return nil
	}

	switch raw.Kind {
	case TabSwitch:
		var d TabSwitchDetails
		if err := json.Unmarshal(raw.Details, &d); err != nil {
			return err
		}
		v.Details = d
	case FullscreenExit:
		var d FullscreenExitDetails
		if err := json.Unmarshal(raw.Details, &d); err != nil {
			return err
		}
		v.Details = d
	case WindowBlur:
		v.Details = WindowBlurDetails{}
	case ClipboardUse:
		var d ClipboardDetails
		if err := json.Unmarshal(raw.Details, &d); err != nil {
			return err
		}
		v.Details = d
	case DevToolsOpen:
		var d DevToolsDetails
		if err := json.Unmarshal(raw.Details, &d); err != nil {
			return err
		}
		v.Details = d
	}
	return nil
}

// New builds a violation with a fresh ID and the severity dictated by the
// rule table for the running count of this kind (including this signal).
func New(kind Kind, count int, at time.Time, details Details) Violation {
	return Violation{
		ID:         uuid.NewString(),
		Kind:       kind,
		Severity:   SeverityFor(kind, count),
		OccurredAt: at,
		Details:    details,
	}
}

// SeverityFor is the single source of truth for severity. count is the
// running number of violations of this kind including the current one.
// Any change here is a behavior change, not a bug fix.
func SeverityFor(kind Kind, count int) Severity {
	switch kind {
	case TabSwitch:
		switch {
		case count > 3:
			return High
		case count > 1:
			return Medium
		default:
			return Low
		}
	case FullscreenExit:
		if count > 2 {
			return High
		}
		return Medium
	case WindowBlur:
		return Medium
	case ClipboardUse, DevToolsOpen:
		return High
	default:
		return Low
	}
}
