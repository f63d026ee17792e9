package codecs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"
)

// ValidationFile is where codec probe results are persisted, next to
// the other data files.
const ValidationFile = "validated_codecs.toml"

// ValidationResults records which audio encoders the installed ffmpeg
// build actually produces output with.
type ValidationResults struct {
	Timestamp     string   `toml:"timestamp"`
	FFmpegVersion string   `toml:"ffmpeg_version"`
	Working       []string `toml:"working"`
	Failed        []string `toml:"failed"`
}

// IsWorking reports whether an encoder passed validation. An empty
// result set (never validated) treats every encoder as usable.
func (r *ValidationResults) IsWorking(encoder string) bool {
	if r == nil || (len(r.Working) == 0 && len(r.Failed) == 0) {
		return true
	}
	for _, w := range r.Working {
		if w == encoder {
			return true
		}
	}
	return false
}

// ValidationLogger receives progress output during validation.
type ValidationLogger interface {
	Printf(format string, v ...any)
}

// SilentLogger discards all validation output.
type SilentLogger struct{}

// Printf implements ValidationLogger.
func (SilentLogger) Printf(string, ...any) {}

// Validator probes the installed ffmpeg for working audio encoders.
type Validator struct {
	ffmpegPath string
	logger     ValidationLogger
}

// NewValidator creates a validator for the given ffmpeg binary.
func NewValidator(ffmpegPath string) *Validator {
	return &Validator{ffmpegPath: ffmpegPath, logger: SilentLogger{}}
}

// SetLogger sets the progress logger.
func (v *Validator) SetLogger(logger ValidationLogger) {
	v.logger = logger
}

// Validate checks every registry codec: first that the encoder is
// compiled in (`ffmpeg -encoders`), then that a short silent encode
// actually succeeds.
func (v *Validator) Validate(ctx context.Context) (*ValidationResults, error) {
	compiled, err := v.compiledEncoders(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing encoders: %w", err)
	}

	results := &ValidationResults{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		FFmpegVersion: v.ffmpegVersion(ctx),
		Working:       []string{},
		Failed:        []string{},
	}

	for _, codec := range registry {
		v.logger.Printf("Testing %s (%s)...", codec.Format, codec.Encoder)

		if !compiled[codec.Encoder] {
			v.logger.Printf("%s: ✗ not compiled in", codec.Encoder)
			results.Failed = append(results.Failed, codec.Encoder)
			continue
		}

		if err := v.testEncode(ctx, codec); err != nil {
			v.logger.Printf("%s: ✗ FAILED (%v)", codec.Encoder, err)
			results.Failed = append(results.Failed, codec.Encoder)
			continue
		}

		v.logger.Printf("%s: ✓ WORKING", codec.Encoder)
		results.Working = append(results.Working, codec.Encoder)
	}

	return results, nil
}

// compiledEncoders parses `ffmpeg -encoders` output into a lookup set.
func (v *Validator) compiledEncoders(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, v.ffmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, err
	}

	// Lines look like " A..... libmp3lame  MP3 (MPEG audio layer 3)".
	// Only audio encoders (capability column starts with A) matter.
	encoders := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "A") {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders, nil
}

// testEncode runs a one-second silent encode through the codec.
func (v *Validator) testEncode(ctx context.Context, codec Codec) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, v.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "anullsrc=r=44100:cl=stereo",
		"-t", "1",
		"-c:a", codec.Encoder,
		"-f", codec.Container,
		"-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		return err
	}
	return nil
}

// ffmpegVersion extracts the version token from `ffmpeg -version`.
func (v *Validator) ffmpegVersion(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, v.ffmpegPath, "-version").Output()
	if err != nil {
		return "unknown"
	}
	// First line: "ffmpeg version 7.1.1 Copyright ..."
	fields := strings.Fields(strings.SplitN(string(out), "\n", 2)[0])
	if len(fields) >= 3 {
		return fields[2]
	}
	return "unknown"
}

// SaveResults persists validation results atomically.
func SaveResults(path string, results *ValidationResults) error {
	data, err := toml.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding validation results: %w", err)
	}
	return renameio.WriteFile(path, data, 0o644)
}

// LoadResults reads previously persisted validation results. A missing
// file returns (nil, nil): validation is optional.
func LoadResults(path string) (*ValidationResults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var results ValidationResults
	if err := toml.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decoding validation results: %w", err)
	}
	return &results, nil
}
