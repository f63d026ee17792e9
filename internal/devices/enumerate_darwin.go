//go:build darwin

package devices

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

const platformBackend = BackendAVFoundation

// enumerate lists macOS capture devices through ffmpeg's AVFoundation
// device listing. The invocation exits non-zero by design; stderr
// carries the listing.
func enumerate(ctx context.Context, ffmpegPath string) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stderr.Len() == 0 && err != nil {
		return nil, err
	}
	return parseAVFoundationList(stderr.String()), nil
}
