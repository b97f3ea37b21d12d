// Package supervisor maps one logical run to one OS process lifecycle.
package supervisor

// State represents the lifecycle position of a run.
type State int

const (
	// StatePending is the state before the run is registered.
	StatePending State = iota

	// StateRunning indicates the run is registered and its process spawned
	// (or about to be).
	StateRunning

	// StateCompleted indicates the process exited on its own.
	StateCompleted

	// StateTimedOut indicates the watchdog terminated the process.
	StateTimedOut

	// StateCancelled indicates a caller terminated the process.
	StateCancelled

	// StateIOFailed indicates the process could not be run or its output
	// could not be delivered.
	StateIOFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	case StateIOFailed:
		return "io_failed"
	default:
		return "unknown"
	}
}

// IsActive returns true while the run owns a process.
func (s State) IsActive() bool {
	return s == StateRunning
}

// IsTerminal returns true for the four end states.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateTimedOut, StateCancelled, StateIOFailed:
		return true
	default:
		return false
	}
}
