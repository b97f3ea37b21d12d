package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ForceReason records who forcibly terminated a process, if anyone.
type ForceReason int

const (
	// ForceNone means the process exited on its own.
	ForceNone ForceReason = iota

	// ForceTimeout means the watchdog fired.
	ForceTimeout

	// ForceCancel means Terminate was called by a caller.
	ForceCancel
)

// String returns a human-readable name for the reason.
func (f ForceReason) String() string {
	switch f {
	case ForceNone:
		return "none"
	case ForceTimeout:
		return "timeout"
	case ForceCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Process is the live handle of one shell command execution.
// It is created by Runner.Prepare and may be terminated from any goroutine.
type Process struct {
	runner  *Runner
	command string
	sink    io.Writer

	mu      sync.Mutex
	cmd     *exec.Cmd
	started bool
	exited  bool
	forced  ForceReason
	onStart func(pid int)

	done chan struct{}
}

// OnStart registers fn to be called with the pid right after spawn.
// Must be called before Run.
func (p *Process) OnStart(fn func(pid int)) {
	p.mu.Lock()
	p.onStart = fn
	p.mu.Unlock()
}

// Run spawns the process and blocks until it exits or the watchdog fires.
// A timeout <= 0 disables the watchdog.
//
// err is non-nil only when the process could not run at all or its output
// could not be delivered; a non-zero exit status is reported via exitCode.
// timedOut is true whenever the process was forcibly terminated, whether by
// the watchdog or by Terminate. ForcedBy tells the two apart.
func (p *Process) Run(timeout time.Duration) (exitCode int, timedOut bool, err error) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return -1, false, ErrAlreadyStarted
	}
	p.started = true

	// Terminated before spawn: report it exactly like a SIGTERM kill.
	if p.forced != ForceNone {
		p.exited = true
		p.mu.Unlock()
		close(p.done)
		return ExitSIGTERM, true, nil
	}

	cmd := p.runner.buildCommand(p.command)
	var out *sinkWriter
	if p.sink != nil {
		// One writer value for both streams keeps them on a single pipe.
		out = &sinkWriter{w: p.sink}
		cmd.Stdout = out
		cmd.Stderr = out
	}

	if err := cmd.Start(); err != nil {
		p.exited = true
		p.mu.Unlock()
		close(p.done)
		return -1, false, fmt.Errorf("starting %s: %w", cmd.Path, err)
	}
	p.cmd = cmd
	onStart := p.onStart
	p.mu.Unlock()

	if onStart != nil {
		onStart(cmd.Process.Pid)
	}

	var watchdog *time.Timer
	if timeout > 0 {
		watchdog = time.AfterFunc(timeout, func() {
			p.terminate(ForceTimeout)
		})
	}

	waitErr := cmd.Wait()
	if watchdog != nil {
		watchdog.Stop()
	}

	p.mu.Lock()
	p.exited = true
	forced := p.forced
	p.mu.Unlock()
	close(p.done)

	if cmd.ProcessState != nil {
		exitCode = stateExitCode(cmd.ProcessState)
	} else {
		exitCode = ExtractExitCode(waitErr)
	}
	timedOut = forced != ForceNone

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// A child that outlived the shell held the pipe open past
		// WaitDelay. The shell's own status stands; the stragglers go.
		killOrphans(cmd.Process.Pid)
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !timedOut &&
		!errors.Is(waitErr, exec.ErrWaitDelay) {
		return -1, false, fmt.Errorf("copying output: %w", waitErr)
	}

	if out != nil && !timedOut {
		if err := out.Err(); err != nil {
			return exitCode, false, fmt.Errorf("writing output: %w", err)
		}
	}

	return exitCode, timedOut, nil
}

// Terminate forcibly stops the process tree. It is idempotent: calling it
// on a finished process, or more than once, does nothing.
func (p *Process) Terminate() {
	p.terminate(ForceCancel)
}

// terminate sends SIGTERM to the process group and escalates to SIGKILL
// after KillGrace if the process is still alive.
//
// The signal is sent under p.mu and the reason is recorded only if it was
// delivered, so a process reaped just before the watchdog fired keeps its
// own exit status.
func (p *Process) terminate(reason ForceReason) {
	p.mu.Lock()
	if p.exited || p.forced != ForceNone {
		p.mu.Unlock()
		return
	}
	cmd := p.cmd
	if cmd == nil {
		// Not spawned yet; Run will see the flag.
		p.forced = reason
		p.mu.Unlock()
		return
	}
	if !terminateTree(cmd.Process) {
		p.mu.Unlock()
		return
	}
	p.forced = reason
	p.mu.Unlock()

	grace := p.runner.KillGrace
	if grace <= 0 {
		return
	}
	go func() {
		select {
		case <-p.done:
		case <-time.After(grace):
			killTree(cmd.Process)
		}
	}()
}

// ForcedBy reports who forcibly terminated the process.
func (p *Process) ForcedBy() ForceReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.forced
}

// Pid returns the OS process id, or 0 if the process has not been spawned.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once Run has returned.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Command returns the shell command line.
func (p *Process) Command() string {
	return p.command
}

// ExtractExitCode extracts the exit code from a Wait() error.
func ExtractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stateExitCode(exitErr.ProcessState)
	}

	// Unknown error, assume exit code 1
	return 1
}

// stateExitCode maps a finished process state to a shell-style exit code.
func stateExitCode(ps *os.ProcessState) int {
	if status, ok := ps.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			// Signal exit: 128 + signal number
			return 128 + int(status.Signal())
		}
		return status.ExitStatus()
	}
	return ps.ExitCode()
}

// sinkWriter forwards output to the caller's sink and remembers the first
// write error instead of returning it. Returning it would close the pipe
// and kill the child with SIGPIPE, hiding the real cause.
type sinkWriter struct {
	w io.Writer

	mu  sync.Mutex
	err error
}

func (s *sinkWriter) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		if _, err := s.w.Write(b); err != nil {
			s.err = err
		}
	}
	return len(b), nil
}

// Err returns the first error the sink reported, if any.
func (s *sinkWriter) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
