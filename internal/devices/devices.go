// Package devices discovers audio capture devices across OS backends
// and maps stable device slugs to the exact names the capture backend
// requires. Discovery results are cached for a short TTL; devices are
// ephemeral values, never mutated after enumeration.
package devices

import "strings"

// Kind distinguishes capture devices from playback devices. Only
// inputs are streamable.
type Kind string

const (
	KindInput  Kind = "input"
	KindOutput Kind = "output"
)

// Backend identifies the OS capture subsystem a device belongs to.
type Backend string

const (
	BackendDirectShow   Backend = "directshow"
	BackendWASAPI       Backend = "wasapi"
	BackendAVFoundation Backend = "avfoundation"
	BackendALSAOrPulse  Backend = "alsa-or-pulse"
)

// Source records how a device was discovered.
type Source string

const (
	SourceFFmpeg   Source = "ffmpeg-enumerated"
	SourceWMI      Source = "os-wmi"
	SourceFallback Source = "fallback"
)

// Device is one discovered audio endpoint.
type Device struct {
	// ID is a stable slug derived from the backend device name. Stream
	// definitions reference devices by this id across sessions.
	ID string `json:"id" example:"hd-pro-webcam-c910" doc:"Stable device slug"`
	// BackendName is the exact string the capture backend requires,
	// passed to the encoder verbatim (quoting is the encoder's job).
	BackendName string  `json:"backend_name" example:"Microphone (HD Pro Webcam C910)" doc:"Exact backend device name"`
	Kind        Kind    `json:"kind" example:"input" doc:"Device kind: input or output"`
	Backend     Backend `json:"backend" example:"directshow" doc:"Capture backend"`
	Source      Source  `json:"source" example:"ffmpeg-enumerated" doc:"How the device was discovered"`
}

// DefaultBackend returns the capture backend for the running OS.
func DefaultBackend() Backend {
	return platformBackend
}

// Slugify derives a stable, URL-safe device id from a display name:
// lowercase, runs of non-alphanumerics collapsed to single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// DeriveID builds the device slug from a backend name. Windows device
// names usually have the shape "Microphone (Actual Device)"; the inner
// name is the distinctive part, so the slug comes from it.
func DeriveID(backendName string) string {
	if open := strings.Index(backendName, "("); open >= 0 && strings.HasSuffix(backendName, ")") {
		inner := backendName[open+1 : len(backendName)-1]
		if s := Slugify(inner); s != "" {
			return s
		}
	}
	return Slugify(backendName)
}

// dedupe removes devices that share (id, kind, backend name), keeping
// the first occurrence so primary enumeration sources win over
// fallbacks.
func dedupe(devices []Device) []Device {
	type key struct {
		id   string
		kind Kind
		name string
	}
	seen := make(map[key]bool, len(devices))
	out := devices[:0]
	for _, d := range devices {
		k := key{d.ID, d.Kind, d.BackendName}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	return out
}
