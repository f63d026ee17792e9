package encoder

import (
	"fmt"

	"github.com/smazurov/audionode/internal/codecs"
	"github.com/smazurov/audionode/internal/devices"
)

// BrokerParams carries the broker facts an encoder invocation needs.
// The port always comes from the parsed broker config at spawn time.
type BrokerParams struct {
	Port           int
	SourcePassword string
}

// SourceURL is the broker source-protocol target for a mount. Encoders
// always push to localhost: the broker is co-located by contract, and
// listener-facing hostnames do not apply to the source side.
func (b BrokerParams) SourceURL(streamID string) string {
	return fmt.Sprintf("icecast://source:%s@localhost:%d/%s", b.SourcePassword, b.Port, streamID)
}

// Spec describes one encoder invocation.
type Spec struct {
	StreamID string
	// Exactly one of BackendName/InputFile is set. BackendName is the
	// resolved backend device string, passed verbatim (quoting is the
	// encoder's concern per backend).
	BackendName string
	Backend     devices.Backend
	InputFile   string

	Format      codecs.Format
	BitrateKbps int
	SampleRate  int
	Channels    int
}

// buildArgs assembles the ffmpeg argv for a spec and the codec chosen
// by the cascade.
func buildArgs(spec Spec, codec codecs.Codec, broker BrokerParams) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "level+info",
	}

	args = append(args, inputArgs(spec)...)

	args = append(args,
		"-vn",
		"-c:a", codec.Encoder,
		"-b:a", fmt.Sprintf("%dk", spec.BitrateKbps),
		"-ar", fmt.Sprintf("%d", spec.SampleRate),
		"-ac", fmt.Sprintf("%d", spec.Channels),
		"-content_type", codec.ContentType,
		"-ice_name", spec.StreamID,
		"-f", codec.Container,
		broker.SourceURL(spec.StreamID),
	)
	return args
}

// inputArgs selects the capture flags for the spec's source. File
// input reads at native rate so a file behaves like a live source.
func inputArgs(spec Spec) []string {
	if spec.InputFile != "" {
		return []string{"-re", "-i", spec.InputFile}
	}

	switch spec.Backend {
	case devices.BackendDirectShow, devices.BackendWASAPI:
		return []string{
			"-f", "dshow",
			"-audio_buffer_size", "50",
			"-i", "audio=" + spec.BackendName,
		}
	case devices.BackendAVFoundation:
		return []string{"-f", "avfoundation", "-i", spec.BackendName}
	default:
		// ALSA names look like hw:N; anything else is a pulse source.
		if len(spec.BackendName) >= 3 && spec.BackendName[:3] == "hw:" {
			return []string{"-f", "alsa", "-i", spec.BackendName}
		}
		return []string{"-f", "pulse", "-i", spec.BackendName}
	}
}
