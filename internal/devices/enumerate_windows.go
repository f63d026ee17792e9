//go:build windows

package devices

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

const platformBackend = BackendDirectShow

// enumerate lists Windows capture devices: DirectShow through ffmpeg
// first, then a WMI query as fallback when ffmpeg yields nothing.
func enumerate(ctx context.Context, ffmpegPath string) ([]Device, error) {
	devices, ffErr := enumerateDirectShow(ctx, ffmpegPath)
	if len(devices) > 0 {
		return devices, nil
	}

	wmiDevices, wmiErr := enumerateWMI(ctx)
	if len(wmiDevices) > 0 {
		return wmiDevices, nil
	}

	if ffErr != nil {
		return nil, ffErr
	}
	return nil, wmiErr
}

// enumerateDirectShow parses the device listing ffmpeg prints on
// stderr. The listing invocation always exits non-zero ("dummy" is not
// a real input), so the exit error is ignored when output was produced.
func enumerateDirectShow(ctx context.Context, ffmpegPath string) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stderr.Len() == 0 && err != nil {
		return nil, err
	}
	return parseDirectShowList(stderr.String()), nil
}

// enumerateWMI asks the OS sound device table via PowerShell. WMI does
// not distinguish capture from playback, so entries are reported as
// inputs with the fallback source marker.
func enumerateWMI(ctx context.Context) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command",
		"Get-CimInstance Win32_SoundDevice | Select-Object -ExpandProperty Name")
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var devices []Device
	for _, line := range strings.Split(string(out), "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		devices = append(devices, Device{
			ID:          DeriveID(name),
			BackendName: name,
			Kind:        KindInput,
			Backend:     BackendDirectShow,
			Source:      SourceWMI,
		})
	}
	return devices, nil
}
