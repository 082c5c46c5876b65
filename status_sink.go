package feedforward

import "github.com/advice-animal/feedforward/status"

// statusState maps a Status to the wire-level status.State; status
// intentionally has no dependency on this package, so the translation
// lives here instead.
func (s Status) statusState() status.State {
	switch s {
	case StatusIdle:
		return status.StateIdle
	case StatusQueued:
		return status.StateQueued
	case StatusRunning:
		return status.StateRunning
	case StatusComplete:
		return status.StateComplete
	case StatusCancelled:
		return status.StateCancelled
	default:
		return status.StateIdle
	}
}
