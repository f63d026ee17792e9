package devices

import (
	"bufio"
	"regexp"
	"strings"
)

// ffmpeg prints device listings on stderr. The formats differ per
// backend and per ffmpeg generation, so the parsers below accept both
// the sectioned layout (a "DirectShow audio devices" header followed
// by quoted names) and the suffixed layout ("Name" (audio)).

var (
	quotedName = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	// [AVFoundation indev @ 0x...] [0] Built-in Microphone
	avfDevice = regexp.MustCompile(`\[(\d+)\]\s+(.+)$`)
)

// parseDirectShowList extracts audio devices from
// `ffmpeg -list_devices true -f dshow -i dummy` stderr.
func parseDirectShowList(stderr string) []Device {
	var devices []Device
	inAudio := false

	scanner := bufio.NewScanner(strings.NewReader(stderr))
	for scanner.Scan() {
		line := scanner.Text()
		lower := strings.ToLower(line)

		switch {
		case strings.Contains(lower, "directshow audio devices"):
			inAudio = true
			continue
		case strings.Contains(lower, "directshow video devices"):
			inAudio = false
			continue
		}

		// Alternative-name lines repeat the device under a moniker path.
		if strings.Contains(lower, "alternative name") {
			continue
		}

		m := quotedName.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[1]

		// Newer ffmpeg tags each line instead of using section headers.
		tagged := strings.Contains(lower, "(audio)")
		if !inAudio && !tagged {
			continue
		}

		devices = append(devices, Device{
			ID:          DeriveID(name),
			BackendName: name,
			Kind:        KindInput,
			Backend:     BackendDirectShow,
			Source:      SourceFFmpeg,
		})
	}
	return devices
}

// parseAVFoundationList extracts audio devices from
// `ffmpeg -f avfoundation -list_devices true -i ""` stderr. The
// backend name is the ffmpeg input spec ":<index>" (audio-only).
func parseAVFoundationList(stderr string) []Device {
	var devices []Device
	inAudio := false

	scanner := bufio.NewScanner(strings.NewReader(stderr))
	for scanner.Scan() {
		line := scanner.Text()
		lower := strings.ToLower(line)

		switch {
		case strings.Contains(lower, "avfoundation audio devices"):
			inAudio = true
			continue
		case strings.Contains(lower, "avfoundation video devices"):
			inAudio = false
			continue
		}

		if !inAudio {
			continue
		}
		m := avfDevice.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[2])

		devices = append(devices, Device{
			ID:          DeriveID(name),
			BackendName: ":" + m[1],
			Kind:        KindInput,
			Backend:     BackendAVFoundation,
			Source:      SourceFFmpeg,
		})
	}
	return devices
}
