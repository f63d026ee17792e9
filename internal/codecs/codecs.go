// Package codecs holds the audio codec registry: which ffmpeg encoder,
// container and content type each stream format maps to, and the
// cascade order tried when an encoder build lacks a codec.
package codecs

import (
	"fmt"
	"strings"
)

// Format is a stream's requested audio format.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatAAC Format = "aac"
	FormatOGG Format = "ogg"
)

// Codec describes how one format is produced by ffmpeg and served to
// listeners.
type Codec struct {
	Format      Format `json:"format" example:"mp3" doc:"Stream format"`
	Encoder     string `json:"encoder" example:"libmp3lame" doc:"ffmpeg encoder name"`
	Container   string `json:"container" example:"mp3" doc:"ffmpeg output container flag"`
	ContentType string `json:"content_type" example:"audio/mpeg" doc:"HTTP content type served to listeners"`
}

// registry is in cascade order: MP3 first (widest listener support),
// then AAC, then OGG.
var registry = []Codec{
	{FormatMP3, "libmp3lame", "mp3", "audio/mpeg"},
	{FormatAAC, "aac", "adts", "audio/aac"},
	{FormatOGG, "libvorbis", "ogg", "audio/ogg"},
}

// All returns the registry in cascade order.
func All() []Codec {
	return append([]Codec(nil), registry...)
}

// Lookup returns the codec for a format.
func Lookup(f Format) (Codec, bool) {
	for _, c := range registry {
		if c.Format == f {
			return c, true
		}
	}
	return Codec{}, false
}

// CascadeFrom returns the registry rotated so the preferred format
// comes first. An unknown format yields the default cascade.
func CascadeFrom(preferred Format) []Codec {
	start := 0
	for i, c := range registry {
		if c.Format == preferred {
			start = i
			break
		}
	}
	out := make([]Codec, 0, len(registry))
	for i := range registry {
		out = append(out, registry[(start+i)%len(registry)])
	}
	return out
}

// ParseFormat validates a user-supplied format string. Empty means
// the default (MP3).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return FormatMP3, nil
	case "mp3":
		return FormatMP3, nil
	case "aac":
		return FormatAAC, nil
	case "ogg", "vorbis":
		return FormatOGG, nil
	default:
		return "", fmt.Errorf("unknown format %q (supported: mp3, aac, ogg)", s)
	}
}
