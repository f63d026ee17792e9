//go:build !windows

package platform

import (
	"os/exec"
	"syscall"
)

// SetProcessGroup places the child in its own process group so signals
// aimed at the supervisor do not reach encoders, and Terminate can
// address the whole group.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// Terminate asks the process group to exit gracefully with SIGTERM.
// Falls back to signalling the single process when the group signal
// fails (the child may not have had time to call setpgid).
func Terminate(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err == nil {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGTERM)
}

// ForceKill delivers SIGKILL to the process group, then the process.
func ForceKill(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGKILL)
}
