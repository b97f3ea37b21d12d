package supervisor

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags the outcome of a run.
type Kind int

const (
	// KindSuccess: the process exited with status 0.
	KindSuccess Kind = iota

	// KindFailure: the process exited with a non-zero status.
	KindFailure

	// KindTimedOut: the process was forcibly terminated, by the watchdog
	// or by Cancel. See Result.Cancelled.
	KindTimedOut

	// KindIOError: the process could not be started or its output wired.
	KindIOError

	// KindRejected: the run was refused before anything was spawned,
	// e.g. a duplicate run ID.
	KindRejected
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindTimedOut:
		return "timed_out"
	case KindIOError:
		return "io_error"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Code is the host-facing status of a result.
type Code string

const (
	CodeSuccess    Code = "SUCCESS"
	CodeError      Code = "ERROR"
	CodeIncomplete Code = "INCOMPLETE"
)

// sigtermNotice is appended to the message of a forcibly terminated run.
const sigtermNotice = "Paragraph received a SIGTERM.\n"

// Result is the classified outcome of Execute. It is not modified after
// Execute returns.
type Result struct {
	RunID    string
	Kind     Kind
	ExitCode int

	// Output is the captured combined output, bounded by the supervisor's
	// capture limit. Truncated is set when bytes were dropped.
	Output    []byte
	Truncated bool

	// Cancelled distinguishes a caller-initiated kill from a watchdog
	// timeout within KindTimedOut.
	Cancelled bool

	// Message is empty on success; otherwise it holds the captured output
	// followed by a trailing "ExitValue: N" diagnostic line.
	Message string

	// Err holds the underlying error for KindIOError and KindRejected.
	Err error

	Duration time.Duration
}

// Code maps the result onto the host status taxonomy.
func (r Result) Code() Code {
	switch r.Kind {
	case KindSuccess:
		return CodeSuccess
	case KindTimedOut:
		return CodeIncomplete
	default:
		return CodeError
	}
}

// State returns the terminal state the run reached.
func (r Result) State() State {
	switch r.Kind {
	case KindSuccess, KindFailure:
		return StateCompleted
	case KindTimedOut:
		if r.Cancelled {
			return StateCancelled
		}
		return StateTimedOut
	case KindIOError:
		return StateIOFailed
	default:
		return StatePending
	}
}

// String returns a one-line description for logs and summaries.
func (r Result) String() string {
	switch r.Kind {
	case KindSuccess:
		return fmt.Sprintf("%s %s", r.RunID, r.Code())
	case KindIOError, KindRejected:
		return fmt.Sprintf("%s %s (%s): %v", r.RunID, r.Code(), r.Kind, r.Err)
	default:
		return fmt.Sprintf("%s %s (%s, exit %d)", r.RunID, r.Code(), r.Kind, r.ExitCode)
	}
}

// exitMessage builds the user-visible message for a non-success exit.
func exitMessage(output []byte, exitCode int, forced bool) string {
	var b strings.Builder
	b.Write(output)
	if len(output) > 0 && output[len(output)-1] != '\n' {
		b.WriteByte('\n')
	}
	if forced {
		b.WriteString(sigtermNotice)
	}
	fmt.Fprintf(&b, "ExitValue: %d", exitCode)
	return b.String()
}
