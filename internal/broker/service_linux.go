//go:build linux

package broker

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/smazurov/audionode/internal/systemd"
)

// detectService checks whether the broker is managed by a systemd
// unit. Only package-installed brokers (found at a standard system
// path) qualify; anything else runs as a direct child process.
func detectService(ctx context.Context, inst Installation) serviceHandle {
	if inst.Source != SourceSystem {
		return nil
	}

	mgr, err := systemd.NewSystemManager(ctx)
	if err != nil {
		return nil
	}

	unit := filepath.Base(inst.ExePath) + ".service"
	state, err := mgr.GetServiceStatus(ctx, unit)
	if err != nil || strings.Contains(state, "not-found") {
		mgr.Close()
		return nil
	}
	return &systemdService{mgr: mgr, unit: unit}
}

type systemdService struct {
	mgr  *systemd.Manager
	unit string
}

func (s *systemdService) Start(ctx context.Context) error {
	return s.mgr.StartService(ctx, s.unit)
}

func (s *systemdService) Stop(ctx context.Context) error {
	return s.mgr.StopService(ctx, s.unit)
}

func (s *systemdService) Running(ctx context.Context) bool {
	state, err := s.mgr.GetServiceStatus(ctx, s.unit)
	return err == nil && strings.Contains(state, "active")
}

func (s *systemdService) Close() {
	s.mgr.Close()
}
