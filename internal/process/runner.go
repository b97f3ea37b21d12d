// Package process provides abstractions for running external processes.
package process

import (
	"errors"
	"io"
	"os/exec"
	"runtime"
	"time"
)

const (
	// ExitSIGTERM is the shell convention for a process killed by SIGTERM (128+15).
	ExitSIGTERM = 143

	// ExitSIGKILL is the shell convention for a process killed by SIGKILL (128+9).
	ExitSIGKILL = 137

	// DefaultKillGrace is how long a terminated process group gets before SIGKILL.
	DefaultKillGrace = 2 * time.Second

	// DefaultWaitDelay bounds how long Wait keeps reading output pipes
	// after the process itself has exited or been killed.
	DefaultWaitDelay = 1 * time.Second
)

// ErrAlreadyStarted is returned when Run is called twice on the same Process.
var ErrAlreadyStarted = errors.New("process already started")

// Runner spawns shell commands with combined output and a watchdog.
// This type allows the supervisor to stay unaware of platform shells.
type Runner struct {
	// Shell is the interpreter prefix, e.g. {"bash", "-c"}.
	Shell []string

	// KillGrace is the delay between SIGTERM and SIGKILL on forced
	// termination. Zero disables the escalation.
	KillGrace time.Duration

	// WaitDelay is passed to exec.Cmd.WaitDelay.
	WaitDelay time.Duration

	// Dir is the working directory for spawned commands (empty = inherit).
	Dir string

	// Env is appended to the inherited environment.
	Env []string
}

// NewRunner creates a Runner using the platform shell and default grace periods.
func NewRunner() *Runner {
	return &Runner{
		Shell:     DefaultShell(runtime.GOOS),
		KillGrace: DefaultKillGrace,
		WaitDelay: DefaultWaitDelay,
	}
}

// DefaultShell returns the shell prefix for the given GOOS.
func DefaultShell(goos string) []string {
	if goos == "windows" {
		return []string{"cmd", "/c"}
	}
	return []string{"bash", "-c"}
}

// Prepare returns an unstarted Process for command. Stdout and stderr of the
// process are both written to sink. The Process can be terminated before
// Run is called, which prevents it from ever being spawned.
func (r *Runner) Prepare(command string, sink io.Writer) *Process {
	return &Process{
		runner:  r,
		command: command,
		sink:    sink,
		done:    make(chan struct{}),
	}
}

// Run is shorthand for Prepare followed by Process.Run.
func (r *Runner) Run(command string, sink io.Writer, timeout time.Duration) (exitCode int, timedOut bool, err error) {
	return r.Prepare(command, sink).Run(timeout)
}

// buildCommand creates the exec.Cmd for a shell command line.
func (r *Runner) buildCommand(command string) *exec.Cmd {
	shell := r.Shell
	if len(shell) == 0 {
		shell = DefaultShell(runtime.GOOS)
	}
	args := append(append([]string{}, shell[1:]...), command)
	cmd := exec.Command(shell[0], args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	cmd.WaitDelay = r.WaitDelay
	setProcessGroup(cmd)
	return cmd
}
