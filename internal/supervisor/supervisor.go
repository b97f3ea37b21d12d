package supervisor

import (
	"io"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-snippet-exec/internal/process"
	"github.com/randomizedcoder/go-snippet-exec/internal/registry"
)

// DefaultTimeout is the watchdog duration when none is configured.
const DefaultTimeout = 5000 * time.Millisecond

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when a run changes state.
	OnStateChange func(runID string, oldState, newState State)

	// OnStart is called when a run's process has been spawned.
	OnStart func(runID string, pid int)

	// OnExit is called with the classified result before Execute returns.
	OnExit func(runID string, res Result)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Runner     *process.Runner
	Registry   *registry.Registry
	Timeout    time.Duration
	MaxCapture int // bytes
	Logger     *slog.Logger
	Callbacks  Callbacks
}

// Supervisor executes runs one process at a time per run ID, enforces the
// watchdog, and turns process outcomes into Results. It is safe for
// concurrent use; it imposes no concurrency limit of its own.
type Supervisor struct {
	runner     *process.Runner
	registry   *registry.Registry
	timeout    time.Duration
	maxCapture int
	logger     *slog.Logger
	callbacks  Callbacks
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	runner := cfg.Runner
	if runner == nil {
		runner = process.NewRunner()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = registry.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxCapture := cfg.MaxCapture
	if maxCapture <= 0 {
		maxCapture = DefaultMaxCapture
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Supervisor{
		runner:     runner,
		registry:   reg,
		timeout:    timeout,
		maxCapture: maxCapture,
		logger:     logger,
		callbacks:  cfg.Callbacks,
	}
}

// Execute runs command under runID, writing its combined output to sink,
// and blocks until the run reaches a terminal state. A runID that is
// already executing is rejected without spawning anything.
//
// The run is unregistered on every path before Execute returns.
func (s *Supervisor) Execute(runID, command string, sink io.Writer) Result {
	start := time.Now()

	capture := newCaptureBuffer(s.maxCapture)
	var out io.Writer = capture
	if sink != nil {
		out = io.MultiWriter(sink, capture)
	}

	proc := s.runner.Prepare(command, out)
	if err := s.registry.Register(runID, proc); err != nil {
		s.logger.Warn("run_rejected",
			"run_id", runID,
			"error", err,
		)
		return Result{
			RunID:    runID,
			Kind:     KindRejected,
			ExitCode: -1,
			Message:  err.Error(),
			Err:      err,
		}
	}
	defer s.registry.Unregister(runID)

	s.setState(runID, StatePending, StateRunning)

	proc.OnStart(func(pid int) {
		s.logger.Info("run_started",
			"run_id", runID,
			"pid", pid,
			"timeout", s.timeout.String(),
		)
		if s.callbacks.OnStart != nil {
			s.callbacks.OnStart(runID, pid)
		}
	})

	exitCode, timedOut, err := proc.Run(s.timeout)

	res := classify(runID, exitCode, timedOut, proc.ForcedBy(), err, capture)
	res.Duration = time.Since(start)

	s.logResult(res)
	s.setState(runID, StateRunning, res.State())
	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(runID, res)
	}

	return res
}

// Cancel delivers a termination signal to the run registered under runID.
// It does not wait for the run to finish. Returns registry.ErrNotFound if
// no such run is executing.
func (s *Supervisor) Cancel(runID string) error {
	if err := s.registry.Cancel(runID); err != nil {
		s.logger.Debug("cancel_not_found", "run_id", runID)
		return err
	}
	s.logger.Info("run_cancel_requested", "run_id", runID)
	return nil
}

// Active returns the IDs of runs currently executing.
func (s *Supervisor) Active() []string {
	return s.registry.IDs()
}

// ActiveCount returns the number of runs currently executing.
func (s *Supervisor) ActiveCount() int {
	return s.registry.Len()
}

// Timeout returns the watchdog duration applied to every run.
func (s *Supervisor) Timeout() time.Duration {
	return s.timeout
}

// classify translates a raw process outcome into a Result.
func classify(runID string, exitCode int, timedOut bool, forcedBy process.ForceReason, err error, capture *captureBuffer) Result {
	res := Result{
		RunID:     runID,
		ExitCode:  exitCode,
		Output:    capture.Bytes(),
		Truncated: capture.Truncated(),
	}

	switch {
	case err != nil:
		res.Kind = KindIOError
		res.ExitCode = -1
		res.Err = err
		res.Message = err.Error()

	case timedOut || exitCode == process.ExitSIGTERM:
		// 143 without our own kill still means someone sent SIGTERM.
		res.Kind = KindTimedOut
		res.Cancelled = forcedBy == process.ForceCancel
		res.Message = exitMessage(res.Output, exitCode, true)

	case exitCode == 0:
		res.Kind = KindSuccess

	default:
		res.Kind = KindFailure
		res.Message = exitMessage(res.Output, exitCode, false)
	}

	return res
}

// logResult logs the terminal outcome at a level matching its severity.
func (s *Supervisor) logResult(res Result) {
	attrs := []any{
		"run_id", res.RunID,
		"outcome", res.Kind.String(),
		"code", string(res.Code()),
		"exit_code", res.ExitCode,
		"duration", res.Duration.String(),
	}

	switch res.Kind {
	case KindSuccess, KindFailure:
		s.logger.Info("run_finished", attrs...)
	case KindTimedOut:
		s.logger.Info("run_stopped", append(attrs, "cancelled", res.Cancelled)...)
	default:
		s.logger.Error("run_io_failed", append(attrs, "error", res.Err)...)
	}
}

// setState forwards a transition to the callback if registered.
func (s *Supervisor) setState(runID string, oldState, newState State) {
	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(runID, oldState, newState)
	}
}
