package store

import (
	"time"

	"github.com/smazurov/audionode/internal/codecs"
)

// Stream is the persisted definition of one broadcast channel. Runtime
// state (status, uptime, last error) lives in the stream manager, not
// here. The streams package aliases this type, so the manager and the
// HTTP layers see it as streams.Stream.
type Stream struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	DeviceID      string        `json:"deviceId,omitempty"`
	InputFilePath string        `json:"inputFilePath,omitempty"`
	BitrateKbps   int           `json:"bitrateKbps"`
	Format        codecs.Format `json:"format"`
	SampleRate    int           `json:"sampleRate"`
	Channels      int           `json:"channels"`
	Position      int           `json:"position"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt,omitempty"`
}
