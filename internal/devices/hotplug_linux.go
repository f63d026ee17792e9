//go:build linux

package devices

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/smazurov/audionode/internal/events"
)

// hotplugDebounce coalesces the burst of node events a single USB
// plug/unplug produces.
const hotplugDebounce = 500 * time.Millisecond

// StartHotplugWatch watches /dev/snd for device nodes appearing or
// disappearing. On a change the enumeration cache is invalidated and a
// DeviceChangeEvent is published so clients re-fetch the device list.
// Returns a stop function; a missing /dev/snd is not an error (no
// sound support on this kernel).
func (s *Service) StartHotplugWatch(ctx context.Context) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add("/dev/snd"); err != nil {
		watcher.Close()
		s.logger.Debug("Hotplug watch unavailable", "error", err)
		return func() {}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	go s.hotplugLoop(ctx, watcher)

	s.logger.Info("Audio hotplug watch started", "path", "/dev/snd")
	return func() {
		cancel()
		watcher.Close()
	}, nil
}

func (s *Service) hotplugLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	var timer *time.Timer
	var timerC <-chan time.Time
	action := "refreshed"

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			// Only control/PCM nodes matter; by-id symlink churn and
			// temp files are noise.
			base := filepath.Base(ev.Name)
			if !strings.HasPrefix(base, "pcm") && !strings.HasPrefix(base, "controlC") {
				continue
			}
			switch {
			case ev.Op&fsnotify.Create != 0:
				action = "added"
			case ev.Op&fsnotify.Remove != 0:
				action = "removed"
			default:
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(hotplugDebounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			s.ClearCache()
			s.logger.Info("Audio device change detected", "action", action)
			if s.bus != nil {
				s.bus.Publish(events.DeviceChangeEvent{
					Action:    action,
					Timestamp: time.Now().UTC().Format(time.RFC3339),
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Hotplug watch error", "error", err)
		}
	}
}
