//go:build windows

package broker

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/smazurov/audionode/internal/platform"
)

const windowsServiceName = "Icecast"

// spawnBroker starts the broker on Windows. The installer ships a
// batch wrapper that sets up the working directory; prefer it when
// present, otherwise run the executable directly.
func spawnBroker(ctx context.Context, inst Installation, _ serviceHandle) (int, error) {
	installDir := filepath.Dir(filepath.Dir(inst.ExePath))
	batch := filepath.Join(installDir, "icecast.bat")

	var cmd *exec.Cmd
	if fileExists(batch) {
		cmd = exec.Command("cmd", "/C", batch)
		cmd.Dir = installDir
	} else {
		cmd = exec.Command(inst.ExePath, "-c", inst.ConfigPath)
		cmd.Dir = filepath.Dir(inst.ExePath)
	}
	platform.SetProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawning broker: %w", err)
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()

	// The batch wrapper forks the real server; track the executable,
	// not the shell.
	if fileExists(batch) {
		if real, err := waitForExePID(ctx, inst); err == nil {
			return real, nil
		}
	}
	return pid, nil
}

// stopBroker asks the process to exit, then escalates: the service
// stop command for installer-registered services, then a forced
// taskkill on whatever is left.
func stopBroker(ctx context.Context, pid int, inst Installation, _ serviceHandle) {
	_ = platform.Terminate(pid)

	deadline := time.Now().Add(stopWait)
	for time.Now().Before(deadline) {
		if !platform.IsAlive(pid) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(verifyDelay):
		}
	}

	_ = exec.Command("net", "stop", windowsServiceName).Run()
	if platform.IsAlive(pid) {
		_ = exec.Command("taskkill", "/F", "/IM", filepath.Base(inst.ExePath)).Run()
	}
}

func waitForExePID(ctx context.Context, inst Installation) (int, error) {
	deadline := time.Now().Add(startWait)
	for time.Now().Before(deadline) {
		if matches, err := platform.FindByCommandLine(filepath.Base(inst.ExePath)); err == nil && len(matches) > 0 {
			return matches[0].PID, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(verifyDelay):
		}
	}
	return 0, fmt.Errorf("broker process did not appear")
}
