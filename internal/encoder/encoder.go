// Package encoder runs exactly one supervised ffmpeg subprocess per
// stream: spawn with a codec cascade during the startup window, stderr
// capture into a bounded ring, precise success/failure detection, and
// SIGTERM-then-SIGKILL teardown.
package encoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/audionode/internal/codecs"
	"github.com/smazurov/audionode/internal/diagnose"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/platform"
)

// State tracks an encoder through its lifecycle.
type State string

const (
	StateNotSpawned State = "not-spawned"
	StateSpawning   State = "spawning"
	StateUp         State = "up"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
	StateFailed     State = "failed"
)

const (
	// startupWindow is how long stderr is observed before a spawn
	// counts as successful.
	startupWindow = 5 * time.Second
	// termGrace is how long a terminated encoder gets to exit before
	// the kill escalates.
	termGrace = 5 * time.Second
	// killWait bounds the wait after SIGKILL; with termGrace it keeps
	// the whole teardown inside 10 s.
	killWait = 5 * time.Second
	// logThrottle limits structured log output per encoder to one line
	// per interval so a flooding process cannot drown the log.
	logThrottle = 200 * time.Millisecond
)

// fatalStartupPatterns end the startup window immediately when they
// appear on stderr. Codec-missing phrases are handled separately by
// the cascade.
var fatalStartupPatterns = []string{
	"unknown encoder",
	"encoder not found",
	"could not find audio only device",
	"could not find audio device",
	"no such device",
	"cannot find card",
	"device or resource busy",
	"could not run filter graph",
	"connection refused",
	"failed to connect",
	"could not connect",
	"401 unauthorized",
	"403 forbidden",
	"invalid password",
	"address already in use",
	"error opening input",
	"error opening output",
	"permission denied",
}

// isCodecMissing reports whether stderr indicates the encoder build
// lacks the requested codec, which triggers the format cascade.
func isCodecMissing(stderr string) bool {
	lowered := strings.ToLower(stderr)
	return strings.Contains(lowered, "unknown encoder") ||
		strings.Contains(lowered, "encoder not found")
}

// hasFatalPattern returns the first fatal pattern present in stderr.
func hasFatalPattern(stderr string) string {
	lowered := strings.ToLower(stderr)
	for _, p := range fatalStartupPatterns {
		if strings.Contains(lowered, p) {
			return p
		}
	}
	return ""
}

// StartError carries the diagnosis for a failed spawn.
type StartError struct {
	Diagnosis diagnose.Diagnosis
}

func (e *StartError) Error() string {
	return fmt.Sprintf("encoder start failed: %s", e.Diagnosis.Category)
}

// ExitInfo describes how an encoder ended.
type ExitInfo struct {
	Code        int
	Intentional bool
	Diagnosis   *diagnose.Diagnosis
}

// ProgressFunc receives decoded stats lines for metrics.
type ProgressFunc func(streamID string, p Progress)

// Process supervises one ffmpeg subprocess. Not restartable: a new
// Process is created per start.
type Process struct {
	ffmpegPath string
	spec       Spec
	deviceID   string
	broker     BrokerParams
	selector   *codecs.Selector
	onProgress ProgressFunc

	logger       *slog.Logger
	ffmpegLogger *slog.Logger

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	codec     codecs.Codec
	startedAt time.Time

	ring        *Ring
	intentional atomic.Bool
	waitCh      chan error
	done        chan ExitInfo
	exited      chan struct{}
}

// New creates an encoder process supervisor. selector may be nil, in
// which case the full codec cascade is used. deviceID is the stream's
// device slug, carried only for diagnosis context.
func New(ffmpegPath string, spec Spec, deviceID string, broker BrokerParams, selector *codecs.Selector, onProgress ProgressFunc) *Process {
	if selector == nil {
		selector = codecs.NewSelector(nil)
	}
	return &Process{
		ffmpegPath:   ffmpegPath,
		spec:         spec,
		deviceID:     deviceID,
		broker:       broker,
		selector:     selector,
		onProgress:   onProgress,
		logger:       logging.GetLogger("encoder").With("stream_id", spec.StreamID),
		ffmpegLogger: logging.GetLogger("ffmpeg").With("stream_id", spec.StreamID),
		state:        StateNotSpawned,
		ring:         NewRing(stderrRingSize),
		done:         make(chan ExitInfo, 1),
		exited:       make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// PID returns the subprocess pid, or 0 before spawn.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Uptime returns how long the encoder has been up, zero before spawn.
func (p *Process) Uptime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		return 0
	}
	return time.Since(p.startedAt)
}

// Codec returns the codec the cascade settled on. Valid after a
// successful Start.
func (p *Process) Codec() codecs.Codec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codec
}

// StderrTail returns the retained stderr output.
func (p *Process) StderrTail() string {
	return p.ring.String()
}

// Done delivers the exit info once, after the process ends.
func (p *Process) Done() <-chan ExitInfo {
	return p.done
}

// Start spawns ffmpeg and observes it through the startup window. The
// codec cascade applies only here: a codec-missing failure rotates to
// the next format, anything else fails with a diagnosis. On return
// with nil error the process is in StateRunning.
func (p *Process) Start(ctx context.Context) error {
	cascade := p.selector.Cascade(p.spec.Format)

	var lastErr error
	for i, codec := range cascade {
		if i > 0 {
			p.logger.Warn("Codec unavailable, cascading to next format",
				"format", codec.Format, "encoder", codec.Encoder)
		}

		retry, err := p.tryStart(ctx, codec)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

// tryStart runs one spawn attempt with the given codec. The bool
// result requests a cascade retry (codec missing).
func (p *Process) tryStart(ctx context.Context, codec codecs.Codec) (bool, error) {
	p.ring.Reset()

	args := buildArgs(p.spec, codec, p.broker)
	cmd := exec.Command(p.ffmpegPath, args...)
	platform.SetProcessGroup(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return false, fmt.Errorf("creating stderr pipe: %w", err)
	}

	p.setState(StateSpawning)
	if err := cmd.Start(); err != nil {
		p.setState(StateFailed)
		d := diagnose.Classify(err.Error(), 1, p.diagCtx())
		return false, &StartError{Diagnosis: d}
	}

	p.mu.Lock()
	p.cmd = cmd
	p.codec = codec
	p.startedAt = time.Now()
	p.state = StateUp
	p.mu.Unlock()

	p.logger.Info("Encoder spawned", "pid", cmd.Process.Pid,
		"encoder", codec.Encoder, "mount", p.spec.StreamID, "broker_port", p.broker.Port)

	go p.pumpStderr(stderr)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	p.waitCh = waitCh

	return p.observeStartup(ctx, waitCh)
}

// observeStartup watches the first seconds of the encoder's life.
// Success requires surviving the window with no fatal stderr pattern.
func (p *Process) observeStartup(ctx context.Context, waitCh chan error) (bool, error) {
	deadline := time.NewTimer(startupWindow)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.killCurrent(waitCh)
			p.setState(StateStopped)
			return false, ctx.Err()

		case err := <-waitCh:
			return p.startupExit(err)

		case <-ticker.C:
			tail := p.ring.String()
			if pattern := hasFatalPattern(tail); pattern != "" {
				p.logger.Warn("Fatal pattern during startup window", "pattern", pattern)
				err := p.killCurrent(waitCh)
				return p.startupExit(err)
			}

		case <-deadline.C:
			p.setState(StateRunning)
			p.logger.Info("Encoder running", "encoder", p.codec.Encoder)
			go p.watch(waitCh)
			return false, nil
		}
	}
}

// startupExit turns an in-window exit into a cascade retry or a
// diagnosed failure.
func (p *Process) startupExit(waitErr error) (bool, error) {
	code := exitCodeFromError(waitErr)
	tail := p.ring.String()

	if isCodecMissing(tail) {
		return true, &StartError{Diagnosis: diagnose.Classify(tail, code, p.diagCtx())}
	}

	p.setState(StateFailed)
	d := diagnose.Classify(tail, code, p.diagCtx())
	p.logger.Error("Encoder failed during startup",
		"exit_code", code, "category", d.Category)
	return false, &StartError{Diagnosis: d}
}

// killCurrent force-kills the subprocess and reaps it, returning the
// wait error. Used on fatal startup patterns and context cancellation.
func (p *Process) killCurrent(waitCh chan error) error {
	pid := p.PID()
	if pid != 0 {
		_ = platform.ForceKill(pid)
	}
	select {
	case err := <-waitCh:
		return err
	case <-time.After(killWait):
		return errors.New("process did not exit after kill")
	}
}

// watch waits for a running encoder to exit and publishes the result.
func (p *Process) watch(waitCh chan error) {
	err := <-waitCh
	code := exitCodeFromError(err)
	intentional := p.intentional.Load()

	info := ExitInfo{Code: code, Intentional: intentional}
	if intentional {
		p.setState(StateStopped)
		p.logger.Info("Encoder stopped", "exit_code", code)
	} else {
		p.setState(StateFailed)
		d := diagnose.Classify(p.ring.String(), code, p.diagCtx())
		info.Diagnosis = &d
		p.logger.Error("Encoder exited unexpectedly",
			"exit_code", code, "category", d.Category)
	}

	close(p.exited)
	p.done <- info
}

// Stop terminates the encoder: graceful signal, then SIGKILL after
// termGrace, bounded overall by termGrace+killWait. Idempotent.
func (p *Process) Stop() error {
	p.intentional.Store(true)

	p.mu.Lock()
	switch p.state {
	case StateUp, StateRunning:
		p.state = StateStopping
	default:
		p.mu.Unlock()
		return nil
	}
	pid := 0
	if p.cmd != nil && p.cmd.Process != nil {
		pid = p.cmd.Process.Pid
	}
	p.mu.Unlock()

	if pid == 0 {
		return nil
	}

	p.logger.Info("Terminating encoder", "pid", pid)
	if err := platform.Terminate(pid); err != nil {
		p.logger.Debug("Graceful terminate failed, escalating", "error", err)
	}

	select {
	case <-p.exited:
		return nil
	case <-time.After(termGrace):
	}

	p.logger.Warn("Encoder ignored terminate, force killing", "pid", pid)
	_ = platform.ForceKill(pid)
	_ = platform.KillTree(pid)

	select {
	case <-p.exited:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("encoder pid %d did not exit after kill", pid)
	}
}

// pumpStderr drains the stderr pipe: every line lands in the ring,
// stats lines feed the progress callback, and the rest is logged with
// ffmpeg's own level, throttled to one line per interval.
func (p *Process) pumpStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	var lastLog time.Time
	for scanner.Scan() {
		line := scanner.Text()
		p.ring.AppendLine(line)

		if progress, ok := parseProgress(line); ok {
			if p.onProgress != nil {
				p.onProgress(p.spec.StreamID, progress)
			}
			continue
		}

		if time.Since(lastLog) < logThrottle {
			continue
		}
		lastLog = time.Now()

		level, msg := ParseLogLevel(line)
		switch level {
		case "fatal", "panic", "error":
			p.ffmpegLogger.Error(msg)
		case "warning":
			p.ffmpegLogger.Warn(msg)
		case "debug", "verbose", "trace":
			p.ffmpegLogger.Debug(msg)
		default:
			p.ffmpegLogger.Info(msg)
		}
	}
}

// diagCtx assembles the diagnosis context for this encoder.
func (p *Process) diagCtx() diagnose.Context {
	return diagnose.Context{
		StreamID:   p.spec.StreamID,
		DeviceID:   p.deviceID,
		DeviceName: p.spec.BackendName,
		Backend:    string(p.spec.Backend),
		BrokerPort: p.broker.Port,
	}
}

// exitCodeFromError extracts the exit code from a Wait error: 0 for
// nil, the code for ExitError, 1 otherwise.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
