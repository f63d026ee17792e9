//go:build !windows

package broker

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/smazurov/audionode/internal/platform"
)

// spawnBroker starts the broker process. When an OS service manages
// the broker the service is asked to start it and the PID is read back
// from the process table; otherwise the executable is spawned as a
// direct child.
func spawnBroker(ctx context.Context, inst Installation, svc serviceHandle) (int, error) {
	if svc != nil {
		if err := svc.Start(ctx); err != nil {
			return 0, fmt.Errorf("starting broker service: %w", err)
		}
		return waitForServicePID(ctx, inst)
	}

	cmd := exec.Command(inst.ExePath, "-c", inst.ConfigPath)
	platform.SetProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawning broker: %w", err)
	}
	pid := cmd.Process.Pid

	// Reap the child when it eventually exits.
	go func() { _ = cmd.Wait() }()

	return pid, nil
}

// stopBroker terminates the broker: graceful signal, grace period,
// then SIGKILL. Service-managed brokers go through the service layer
// first so unit state stays consistent.
func stopBroker(ctx context.Context, pid int, _ Installation, svc serviceHandle) {
	if svc != nil {
		if err := svc.Stop(ctx); err == nil {
			return
		}
	}

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
	_ = platform.ForceKill(pid)
}

func waitForServicePID(ctx context.Context, inst Installation) (int, error) {
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
	return 0, fmt.Errorf("broker service started but no process appeared")
}
