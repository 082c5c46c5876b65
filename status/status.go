// Package status exposes a Run's progress to an external renderer: a
// terminal spinner, a WebSocket-backed dashboard, or a test harness that
// just wants to assert on the final state.
package status

import "encoding/json"

// State mirrors feedforward.Status as a plain string, so this package has
// no import dependency on the scheduler package and can be consumed from
// anywhere a snapshot needs to be serialized.
type State string

const (
	StateIdle      State = "idle"
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateComplete  State = "complete"
	StateCancelled State = "cancelled"
)

// StepSnapshot is one step's line in a status display. CancelReason is
// non-nil only once the step has cancelled.
type StepSnapshot struct {
	Index        int     `json:"index"`
	Name         string  `json:"name"`
	State        State   `json:"state"`
	Emoji        string  `json:"emoji"`
	CancelReason *string `json:"cancel_reason,omitempty"`
}

// Snapshot is a full Run status update, suitable for direct JSON
// marshaling onto a status channel.
type Snapshot struct {
	Steps []StepSnapshot `json:"steps"`
}

// MarshalJSON is implemented explicitly (rather than relying on the
// default struct tags) so the wire shape stays stable if internal field
// order changes.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type wire struct {
		Steps []StepSnapshot `json:"steps"`
	}
	return json.Marshal(wire{Steps: s.Steps})
}

// Sink receives status snapshots. Implementations must tolerate being
// called from any goroutine and must not block the caller for long.
type Sink interface {
	Publish(Snapshot)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Snapshot)

// Publish implements Sink.
func (f SinkFunc) Publish(s Snapshot) { f(s) }
