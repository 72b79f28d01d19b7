package telemetry

import (
	"time"

	"github.com/examguard/agent/internal/activity"
	"github.com/examguard/agent/internal/violation"
)

type MessageType string

const (
	MsgHello          MessageType = "hello"
	MsgActivityUpdate MessageType = "activity_update"
	MsgPong           MessageType = "pong"
	MsgAck            MessageType = "ack"
)

// Hello is the state-sync message sent whenever the channel (re)opens.
type Hello struct {
	Type       MessageType       `json:"type"`
	SessionID  string            `json:"sessionId"`
	SubjectID  string            `json:"subjectId"`
	StartedAt  time.Time         `json:"startedAt"`
	Host       activity.HostInfo `json:"host"`
	SetupNotes []string          `json:"setupNotes,omitempty"`
}

// SessionContext is the host-supplied metadata attached to the next push
// after updateContext.
type SessionContext struct {
	CurrentCode string `json:"currentCode,omitempty"`
	Language    string `json:"language,omitempty"`
	ProblemID   string `json:"problemId,omitempty"`
}

// Update is the compact outbound message pushed on every violation and
// heartbeat tick.
type Update struct {
	Type                MessageType              `json:"type"`
	Snapshot            activity.Snapshot        `json:"snapshot"`
	ViolationsSinceLast []violation.Violation    `json:"violationsSinceLast"`
	Context             *SessionContext          `json:"context,omitempty"`
	Resources           *activity.ResourceSample `json:"resources,omitempty"`
}

// Inbound is the envelope of server-to-client messages. Only pong/ack are
// expected; neither is required for correctness.
type Inbound struct {
	Type MessageType `json:"type"`
}
