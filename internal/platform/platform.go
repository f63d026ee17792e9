// Package platform isolates OS-level process facts behind a small
// surface: liveness, command-line scans, and graceful-then-forceful
// termination. Nothing above this package inspects the process table
// directly, so no platform conditionals leak into the managers.
package platform

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// IsAlive reports whether a process with the given pid exists and is
// actually running (not a zombie awaiting reap).
func IsAlive(pid int) bool {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	running, err := p.IsRunning()
	if err != nil {
		return false
	}
	if !running {
		return false
	}
	statuses, err := p.Status()
	if err != nil {
		// Status is unsupported on some platforms; running is enough.
		return true
	}
	for _, s := range statuses {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

// Match describes one process found by FindByCommandLine.
type Match struct {
	PID     int
	Cmdline string
}

// FindByCommandLine scans the OS process table for processes whose
// command line contains every given substring. Used at startup to find
// orphan encoders left behind by a previous run.
func FindByCommandLine(substrings ...string) ([]Match, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var matches []Match
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		ok := true
		for _, sub := range substrings {
			if !strings.Contains(cmdline, sub) {
				ok = false
				break
			}
		}
		if ok {
			matches = append(matches, Match{PID: int(p.Pid), Cmdline: cmdline})
		}
	}
	return matches, nil
}

// KillTree force-kills the process and all of its descendants. Children
// are collected before the parent dies so none escape by reparenting.
func KillTree(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil // already gone
	}

	children, _ := p.Children()
	var firstErr error
	for _, child := range children {
		if err := KillTree(int(child.Pid)); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := p.Kill(); err != nil {
		running, runErr := p.IsRunning()
		if runErr == nil && !running {
			return firstErr
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("killing pid %d: %w", pid, err)
		}
	}
	return firstErr
}
