//go:build linux

package devices

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const platformBackend = BackendALSAOrPulse

// asoundPath is a variable so tests can point it at a fixture tree.
var asoundPath = "/proc/asound"

// enumerate lists Linux capture devices: PulseAudio sources when a
// pulse server answers, merged with ALSA cards read from /proc/asound.
func enumerate(ctx context.Context, _ string) ([]Device, error) {
	var devices []Device

	if pulse, err := enumeratePulse(ctx); err == nil {
		devices = append(devices, pulse...)
	}

	alsa, err := enumerateALSA()
	if err != nil && len(devices) == 0 {
		return nil, err
	}
	devices = append(devices, alsa...)

	return devices, nil
}

// enumerateALSA reads sound cards from /proc/asound. A card counts as
// a capture device when it exposes at least one pcmC*D*c node.
func enumerateALSA() ([]Device, error) {
	cardDirs, err := filepath.Glob(filepath.Join(asoundPath, "card[0-9]*"))
	if err != nil {
		return nil, err
	}
	if len(cardDirs) == 0 {
		if _, statErr := os.Stat(asoundPath); statErr != nil {
			return nil, fmt.Errorf("no ALSA support: %w", statErr)
		}
	}

	var devices []Device
	for _, cardDir := range cardDirs {
		cardNum, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(cardDir), "card"))
		if err != nil {
			continue
		}

		name := cardDisplayName(cardDir)
		kind := KindOutput
		if hasCaptureNode(cardDir) {
			kind = KindInput
		}

		devices = append(devices, Device{
			ID:          DeriveID(name),
			BackendName: fmt.Sprintf("hw:%d", cardNum),
			Kind:        kind,
			Backend:     BackendALSAOrPulse,
			Source:      SourceFFmpeg,
		})
	}
	return devices, nil
}

// cardDisplayName prefers the card's id file; falls back to the
// directory name.
func cardDisplayName(cardDir string) string {
	if b, err := os.ReadFile(filepath.Join(cardDir, "id")); err == nil {
		if name := strings.TrimSpace(string(b)); name != "" {
			return name
		}
	}
	return filepath.Base(cardDir)
}

// hasCaptureNode reports whether the card directory contains a capture
// PCM substream (pcmNc entries).
func hasCaptureNode(cardDir string) bool {
	entries, err := os.ReadDir(cardDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "pcm") && strings.HasSuffix(name, "c") {
			return true
		}
	}
	return false
}

// enumeratePulse lists sources from a running PulseAudio/PipeWire
// server. Monitor sources mirror playback streams and are reported as
// outputs.
func enumeratePulse(ctx context.Context) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "pactl", "list", "short", "sources").Output()
	if err != nil {
		return nil, err
	}

	var devices []Device
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := fields[1]
		kind := KindInput
		if strings.HasSuffix(name, ".monitor") {
			kind = KindOutput
		}
		devices = append(devices, Device{
			ID:          DeriveID(name),
			BackendName: name,
			Kind:        kind,
			Backend:     BackendALSAOrPulse,
			Source:      SourceFFmpeg,
		})
	}
	return devices, nil
}
