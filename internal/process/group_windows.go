//go:build windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the child in a new process group so console
// control events aimed at the host do not reach it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminateTree kills the shell. Windows has no SIGTERM; the forced flag
// on Process carries the termination reason instead of the exit status.
func terminateTree(p *os.Process) bool {
	return p.Kill() == nil
}

func killTree(p *os.Process) bool {
	return p.Kill() == nil
}

// killOrphans is a no-op: children of cmd.exe are not tracked as a group.
func killOrphans(int) {}
