package devices

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/audionode/internal/diagnose"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/logging"
)

// cacheTTL bounds how long an enumeration result is served without
// re-probing the OS.
const cacheTTL = 30 * time.Second

// EnumerationError reports a discovery failure together with its
// presentation-ready diagnosis. An empty device list is an error by
// contract: a healthy machine exposes at least one input.
type EnumerationError struct {
	Backend   Backend
	Diagnosis diagnose.Diagnosis
	Err       error
}

func (e *EnumerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device enumeration via %s failed: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("device enumeration via %s returned no capture devices", e.Backend)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// NotMappedError reports that a slug could not be resolved to a
// backend device name.
type NotMappedError struct {
	DeviceID  string
	Backend   Backend
	Diagnosis diagnose.Diagnosis
}

func (e *NotMappedError) Error() string {
	return fmt.Sprintf("device %q has no %s backend name", e.DeviceID, e.Backend)
}

// Service discovers devices and answers slug lookups. Safe for
// concurrent use; the cache is never partially visible to readers.
type Service struct {
	ffmpegPath string
	bus        *events.Bus
	logger     logging.Logger

	mu      sync.Mutex
	cached  []Device
	fetched time.Time
}

// NewService creates a device service enumerating through the given
// ffmpeg binary.
func NewService(ffmpegPath string, bus *events.Bus) *Service {
	return &Service{
		ffmpegPath: ffmpegPath,
		bus:        bus,
		logger:     logging.GetLogger("devices"),
	}
}

// Enumerate returns the current device list, served from cache unless
// the TTL expired or refresh is set. Zero discovered devices is
// reported as an EnumerationError alongside the empty list; callers
// must not treat silence as success.
func (s *Service) Enumerate(ctx context.Context, refresh bool) ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !refresh && s.cached != nil && time.Since(s.fetched) < cacheTTL {
		return append([]Device(nil), s.cached...), nil
	}

	devices, err := enumerate(ctx, s.ffmpegPath)
	if err != nil {
		s.logger.Warn("Device enumeration failed", "backend", platformBackend, "error", err)
		return []Device{}, &EnumerationError{
			Backend:   platformBackend,
			Diagnosis: diagnose.NewEnumerationFailure(string(platformBackend), err),
			Err:       err,
		}
	}

	devices = dedupe(devices)
	inputs := 0
	for _, d := range devices {
		if d.Kind == KindInput {
			inputs++
		}
	}
	if inputs == 0 {
		return []Device{}, &EnumerationError{
			Backend:   platformBackend,
			Diagnosis: diagnose.NewEnumerationFailure(string(platformBackend), nil),
		}
	}

	s.cached = devices
	s.fetched = time.Now()
	s.logger.Debug("Devices enumerated", "count", len(devices), "inputs", inputs)
	return append([]Device(nil), devices...), nil
}

// ClearCache drops the cached enumeration so the next Enumerate
// re-probes the OS.
func (s *Service) ClearCache() {
	s.mu.Lock()
	s.cached = nil
	s.fetched = time.Time{}
	s.mu.Unlock()
}

// ResolveBackendName maps a device slug to the exact backend device
// name. The enumeration table is consulted first; when the slug is
// unknown, a DirectShow-shaped guess is attempted (other backends use
// opaque names that cannot be reconstructed from a slug).
func (s *Service) ResolveBackendName(ctx context.Context, slug string) (string, error) {
	devices, err := s.Enumerate(ctx, false)
	if err == nil {
		for _, d := range devices {
			if d.ID == slug && d.Kind == KindInput {
				return d.BackendName, nil
			}
		}
	}

	if name, ok := fallbackName(slug, platformBackend); ok {
		s.logger.Debug("Device slug resolved by fallback rule", "device_id", slug, "backend_name", name)
		return name, nil
	}

	return "", &NotMappedError{
		DeviceID:  slug,
		Backend:   platformBackend,
		Diagnosis: diagnose.NewDeviceNotMapped(slug, string(platformBackend)),
	}
}

// fallbackName guesses a backend name for a slug missing from the
// table. A slug that already looks like a parenthesized backend name
// passes through verbatim; otherwise only DirectShow names are
// guessable (title-cased and wrapped in the conventional prefix).
func fallbackName(slug string, backend Backend) (string, bool) {
	if strings.Contains(slug, "(") && strings.HasSuffix(slug, ")") {
		return slug, true
	}
	if backend != BackendDirectShow {
		return "", false
	}
	return "Microphone (" + titleCase(slug) + ")", true
}

// titleCase turns a hyphenated slug into spaced words with initial
// capitals: "hd-pro-webcam-c910" -> "Hd Pro Webcam C910".
func titleCase(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
