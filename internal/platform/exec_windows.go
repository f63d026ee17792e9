//go:build windows

package platform

import (
	"os/exec"
	"strconv"
	"syscall"
)

// SetProcessGroup gives the child its own process group so console
// control events do not propagate to it from the supervisor.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// Terminate asks the process tree to exit via taskkill without /F,
// which delivers a WM_CLOSE-style request that well-behaved encoders
// honor.
func Terminate(pid int) error {
	return exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T").Run()
}

// ForceKill terminates the process tree unconditionally.
func ForceKill(pid int) error {
	return exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T", "/F").Run()
}
