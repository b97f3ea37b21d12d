//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so that forced
// termination also reaches javac/java children of the shell.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// terminateTree sends SIGTERM to the process group. It reports false when
// the shell has already been reaped.
func terminateTree(p *os.Process) bool {
	return signalTree(p, syscall.SIGTERM)
}

// killTree sends SIGKILL to the process group.
func killTree(p *os.Process) bool {
	return signalTree(p, syscall.SIGKILL)
}

// signalTree signals the group led by p. Setpgid makes the shell's pid the
// group id. os.Process refuses to signal a reaped process, which keeps a
// recycled pid out of reach.
func signalTree(p *os.Process, sig syscall.Signal) bool {
	if err := p.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	if err := syscall.Kill(-p.Pid, sig); err != nil {
		return p.Signal(sig) == nil
	}
	return true
}

// killOrphans kills whatever is left in the group of a shell that has
// already exited. The group id stays reserved while any member lives.
func killOrphans(pgid int) {
	syscall.Kill(-pgid, syscall.SIGKILL)
}
