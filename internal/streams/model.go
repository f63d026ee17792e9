package streams

import (
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/audionode/internal/codecs"
	"github.com/smazurov/audionode/internal/streams/store"
)

// Status is a stream's runtime lifecycle state. Only the four public
// states exist; transitional encoder states are internal to the
// encoder package.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
)

const (
	maxIDLength       = 64
	minBitrateKbps    = 32
	maxBitrateKbps    = 320
	defaultBitrate    = 192
	defaultSampleRate = 44100
	defaultChannels   = 2
)

// Stream is the persisted definition of one broadcast channel. The
// record itself lives in the store package, which owns serialization;
// the alias keeps this package the front door for the model.
type Stream = store.Stream

// CreateParams is the input for creating a stream.
type CreateParams struct {
	ID            string
	Name          string
	DeviceID      string
	InputFilePath string
	BitrateKbps   int
	Format        string
	SampleRate    int
	Channels      int
}

// UpdateParams is a partial update; nil fields keep their values.
type UpdateParams struct {
	Name          *string
	DeviceID      *string
	InputFilePath *string
	BitrateKbps   *int
	Format        *string
	SampleRate    *int
	Channels      *int
}

// NormalizedName is the case-insensitive, trimmed form used for the
// uniqueness check.
func NormalizedName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// validID accepts URL-path-safe identifiers: the id doubles as the
// broker mount name.
func validID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

// newStream validates CreateParams and builds a Stream with defaults
// applied. Position is assigned by the caller.
func newStream(p CreateParams) (Stream, error) {
	if !validID(p.ID) {
		return Stream{}, NewStreamError(ErrCodeInvalidParams,
			fmt.Sprintf("stream id %q must be 1-%d URL-safe characters", p.ID, maxIDLength), nil)
	}
	if strings.TrimSpace(p.Name) == "" {
		return Stream{}, NewStreamError(ErrCodeInvalidParams, "stream name is required", nil)
	}

	hasDevice := p.DeviceID != ""
	hasFile := p.InputFilePath != ""
	if hasDevice == hasFile {
		return Stream{}, NewStreamError(ErrCodeInvalidParams,
			"exactly one of deviceId or inputFilePath is required", nil)
	}

	s := Stream{
		ID:            p.ID,
		Name:          strings.TrimSpace(p.Name),
		DeviceID:      p.DeviceID,
		InputFilePath: p.InputFilePath,
		BitrateKbps:   p.BitrateKbps,
		SampleRate:    p.SampleRate,
		Channels:      p.Channels,
		CreatedAt:     time.Now().UTC(),
	}

	if s.BitrateKbps == 0 {
		s.BitrateKbps = defaultBitrate
	}
	if s.SampleRate == 0 {
		s.SampleRate = defaultSampleRate
	}
	if s.Channels == 0 {
		s.Channels = defaultChannels
	}

	format, err := codecs.ParseFormat(p.Format)
	if err != nil {
		return Stream{}, NewStreamError(ErrCodeInvalidParams, err.Error(), nil)
	}
	s.Format = format

	if err := validateEncoding(s); err != nil {
		return Stream{}, err
	}
	return s, nil
}

// applyUpdate folds UpdateParams into a copy of the stream and
// re-validates.
func applyUpdate(s Stream, p UpdateParams) (Stream, error) {
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return Stream{}, NewStreamError(ErrCodeInvalidParams, "stream name is required", nil)
		}
		s.Name = strings.TrimSpace(*p.Name)
	}
	if p.DeviceID != nil {
		s.DeviceID = *p.DeviceID
		if s.DeviceID != "" {
			s.InputFilePath = ""
		}
	}
	if p.InputFilePath != nil {
		s.InputFilePath = *p.InputFilePath
		if s.InputFilePath != "" {
			s.DeviceID = ""
		}
	}
	if p.BitrateKbps != nil {
		s.BitrateKbps = *p.BitrateKbps
	}
	if p.Format != nil {
		format, err := codecs.ParseFormat(*p.Format)
		if err != nil {
			return Stream{}, NewStreamError(ErrCodeInvalidParams, err.Error(), nil)
		}
		s.Format = format
	}
	if p.SampleRate != nil {
		s.SampleRate = *p.SampleRate
	}
	if p.Channels != nil {
		s.Channels = *p.Channels
	}

	if (s.DeviceID != "") == (s.InputFilePath != "") {
		return Stream{}, NewStreamError(ErrCodeInvalidParams,
			"exactly one of deviceId or inputFilePath is required", nil)
	}
	if err := validateEncoding(s); err != nil {
		return Stream{}, err
	}
	s.UpdatedAt = time.Now().UTC()
	return s, nil
}

func validateEncoding(s Stream) error {
	if s.BitrateKbps < minBitrateKbps || s.BitrateKbps > maxBitrateKbps {
		return NewStreamError(ErrCodeInvalidParams,
			fmt.Sprintf("bitrate %d outside %d-%d kbps", s.BitrateKbps, minBitrateKbps, maxBitrateKbps), nil)
	}
	if s.Channels != 1 && s.Channels != 2 {
		return NewStreamError(ErrCodeInvalidParams, "channels must be 1 or 2", nil)
	}
	if s.SampleRate <= 0 {
		return NewStreamError(ErrCodeInvalidParams, "sample rate must be positive", nil)
	}
	return nil
}
