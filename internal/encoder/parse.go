package encoder

import (
	"regexp"
	"strconv"
	"strings"
)

// ParseLogLevel extracts the log level from ffmpeg output.
// FFmpeg with -loglevel level+info outputs lines like "[info] message"
// or "[component @ 0x...] [level] message" for component-specific logs.
// Returns the level and the message with level stripped but component preserved.
func ParseLogLevel(line string) (level, msg string) {
	if len(line) < 3 || line[0] != '[' {
		return "info", line
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return "info", line
	}

	bracket := line[1:end]

	if isLogLevel(bracket) {
		return bracket, line[end+2:]
	}

	// Check for component prefix: [component @ 0x...] [level] message
	// Keep the component, strip only the [level]
	component := line[:end+2]
	rest := line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if nextEnd := strings.Index(rest, "] "); nextEnd != -1 {
			nextBracket := rest[1:nextEnd]
			if isLogLevel(nextBracket) {
				return nextBracket, component + rest[nextEnd+2:]
			}
		}
	}

	return "info", line
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

// Progress is one decoded ffmpeg stats line.
type Progress struct {
	BytesWritten int64
	BitrateKbps  float64
	Speed        float64
	Seconds      float64
}

var statsPair = regexp.MustCompile(`(\w+)=\s*(\S+)`)

// parseProgress decodes ffmpeg's periodic stderr stats lines, e.g.
// "size=     512KiB time=00:00:21.86 bitrate= 192.0kbits/s speed=1.01x".
// Returns false for lines that are not stats output.
func parseProgress(line string) (Progress, bool) {
	if !strings.Contains(line, "size=") || !strings.Contains(line, "bitrate=") {
		return Progress{}, false
	}

	var p Progress
	for _, m := range statsPair.FindAllStringSubmatch(line, -1) {
		key, val := m[1], m[2]
		switch key {
		case "size", "Lsize":
			p.BytesWritten = parseSize(val)
		case "bitrate":
			v := strings.TrimSuffix(val, "kbits/s")
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				p.BitrateKbps = f
			}
		case "speed":
			v := strings.TrimSuffix(val, "x")
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				p.Speed = f
			}
		case "time":
			p.Seconds = parseClock(val)
		}
	}
	return p, true
}

// parseSize converts ffmpeg size tokens (512KiB, 1024kB, 3MiB) to bytes.
func parseSize(s string) int64 {
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "KiB"), strings.HasSuffix(s, "kB"):
		mult = 1024
		s = strings.TrimSuffix(strings.TrimSuffix(s, "KiB"), "kB")
	case strings.HasSuffix(s, "MiB"), strings.HasSuffix(s, "MB"):
		mult = 1024 * 1024
		s = strings.TrimSuffix(strings.TrimSuffix(s, "MiB"), "MB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n * mult
}

// parseClock converts "HH:MM:SS.cc" to seconds.
func parseClock(s string) float64 {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	return h*3600 + m*60 + sec
}
