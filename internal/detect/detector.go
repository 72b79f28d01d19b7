// Package detect implements the raw signal detectors. Each detector
// observes exactly one platform capability and emits untyped-severity
// signals; classification happens downstream. Detectors never decide
// severity and never block on I/O.
package detect

import (
	"context"
	"time"

	"github.com/examguard/agent/internal/violation"
)

// Signal is a raw detector observation handed to the classifier.
type Signal struct {
	Kind    violation.Kind
	At      time.Time
	Details violation.Details
}

// Emit delivers a signal into the session pipeline. Implementations must
// not block; the controller's fan-in channel is buffered and signals are
// processed in arrival order.
type Emit func(Signal)

// Detector is a single independently start/stoppable signal source.
//
// Start attaches the detector's listeners and begins watching in a
// background goroutine that exits when ctx is cancelled. A returned error
// means setup degraded (e.g. the capability denied a request); it is
// informational, never fatal to the session.
type Detector interface {
	Name() string
	Start(ctx context.Context) error
}
