package broker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smazurov/audionode/internal/config"
	"github.com/smazurov/audionode/internal/diagnose"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/platform"
)

// State is the supervisor's view of the broker process.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateStopped       State = "stopped"
	StateStarting      State = "starting"
	StateRunning       State = "running"
	StateStopping      State = "stopping"
)

const (
	startWait     = 8 * time.Second
	stopWait      = 10 * time.Second
	verifyRetries = 10
	verifyDelay   = 500 * time.Millisecond
	xmlDebounce   = 500 * time.Millisecond
)

// StartError carries a Diagnosis for a failed broker start.
type StartError struct {
	Diagnosis diagnose.Diagnosis
	Err       error
}

func (e *StartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker start failed: %v", e.Err)
	}
	return "broker start failed"
}

func (e *StartError) Unwrap() error { return e.Err }

// Status is the observable broker state for the admin API.
type Status struct {
	State        State  `json:"state"`
	Port         int    `json:"port"`
	Hostname     string `json:"hostname"`
	MaxListeners int    `json:"maxListeners"`
	MaxSources   int    `json:"maxSources"`
	PID          int    `json:"pid,omitempty"`
	ConfigPath   string `json:"configPath"`
	ExePath      string `json:"exePath"`
	Stats        *Stats `json:"stats,omitempty"`
}

// Supervisor owns the broker executable's lifecycle: detection, config
// parsing and watching, start/stop/restart, and status queries.
//
// The opMu mutex serializes start/stop/restart so a restart always
// observes its own stop. Config reads take the lighter cfgMu and see
// snapshot values only.
type Supervisor struct {
	dataDir string
	bus     *events.Bus
	logger  *slog.Logger
	stats   *StatsClient

	opMu            sync.Mutex
	initialized     bool
	inst            Installation
	pid             int
	manuallyStopped bool
	service         serviceHandle

	cfgMu sync.RWMutex
	cfg   Config

	watcher *config.Watcher[Config]
}

// NewSupervisor creates an uninitialized supervisor. Call Initialize
// before anything else.
func NewSupervisor(dataDir string, bus *events.Bus) *Supervisor {
	return &Supervisor{
		dataDir: dataDir,
		bus:     bus,
		logger:  logging.GetLogger("broker"),
		stats:   NewStatsClient(),
	}
}

// Snapshot returns the most recently parsed broker config. Safe to
// call from any goroutine; encoder spawns and the listener proxy read
// the port and source password through this.
func (s *Supervisor) Snapshot() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Initialize detects the broker installation, parses its config,
// starts the XML watcher, and reconciles an already-running broker.
// Idempotent: a second call is a no-op.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.initialized {
		return nil
	}

	cached, err := LoadDeviceConfig(s.dataDir)
	if err != nil {
		s.logger.Warn("Ignoring unreadable device config cache", "error", err)
	}

	inst, err := Detect(s.dataDir, cached)
	if err != nil {
		return err
	}
	s.inst = inst
	s.logger.Info("Broker installation detected",
		"exe", inst.ExePath, "config", inst.ConfigPath, "source", inst.Source)

	if cfg, err := ParseConfigFile(inst.ConfigPath); err == nil {
		s.setConfig(cfg)
	} else if os.IsNotExist(err) {
		// Config generated lazily on first start.
		s.setConfig(Config{Port: defaultBrokerPort, Hostname: "localhost", AdminUser: "admin"})
	} else {
		return fmt.Errorf("broker config at %s: %w", inst.ConfigPath, err)
	}

	s.service = detectService(ctx, inst)

	// Adopt a broker that is already running, e.g. after our own
	// restart or one managed by the OS service layer.
	if pid := s.findRunningBroker(); pid > 0 {
		s.pid = pid
		s.logger.Info("Adopted running broker process", "pid", pid)
	}

	s.startWatcher()
	s.saveCacheLocked()
	s.initialized = true
	s.publishState(ctx)
	return nil
}

// Close releases the config watcher. The broker itself is left
// running; it is an independent service that outlives this process.
func (s *Supervisor) Close() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.watcher != nil {
		_ = s.watcher.Stop()
		s.watcher = nil
	}
	if s.service != nil {
		s.service.Close()
	}
}

func (s *Supervisor) setConfig(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

// startWatcher re-parses the XML whenever it changes on disk. The
// watch is read-only: an edit never restarts the broker, only
// Configure does.
func (s *Supervisor) startWatcher() {
	w := config.NewConfigWatcher(
		s.inst.ConfigPath,
		func(path string) (Config, error) { return ParseConfigFile(path) },
		s.logger,
		config.WithDebounce[Config](xmlDebounce),
	)
	w.OnReload(func(cfg Config) {
		s.setConfig(cfg)
		s.logger.Info("Broker config re-parsed", "port", cfg.Port, "hostname", cfg.Hostname)
		s.publishState(context.Background())
	})
	if err := w.Start(); err != nil {
		s.logger.Warn("Broker config watch unavailable", "error", err)
		return
	}
	s.watcher = w
}

// saveCacheLocked persists non-secret paths and the parsed port.
func (s *Supervisor) saveCacheLocked() {
	cfg := s.Snapshot()
	logDir := filepath.Dir(s.inst.ConfigPath)
	cache := DeviceConfig{
		BrokerExePath:    s.inst.ExePath,
		BrokerConfigPath: s.inst.ConfigPath,
		Port:             cfg.Port,
		LastValidatedIso: time.Now().UTC().Format(time.RFC3339),
		Source:           string(s.inst.Source),
	}
	if cfg.AccessLog != "" {
		cache.AccessLogPath = filepath.Join(logDir, "log", cfg.AccessLog)
	}
	if cfg.ErrorLog != "" {
		cache.ErrorLogPath = filepath.Join(logDir, "log", cfg.ErrorLog)
	}
	if err := SaveDeviceConfig(s.dataDir, cache); err != nil {
		s.logger.Warn("Failed to save device config cache", "error", err)
	}
}

// findRunningBroker scans the OS process table for the detected
// executable.
func (s *Supervisor) findRunningBroker() int {
	matches, err := platform.FindByCommandLine(filepath.Base(s.inst.ExePath))
	if err != nil || len(matches) == 0 {
		return 0
	}
	return matches[0].PID
}

// processAlive reports OS-level liveness of the tracked broker,
// falling back to a process-table scan when no PID is tracked.
func (s *Supervisor) processAlive() bool {
	if s.pid > 0 && platform.IsAlive(s.pid) {
		return true
	}
	if pid := s.findRunningBroker(); pid > 0 {
		s.pid = pid
		return true
	}
	return false
}

// Start launches the broker. No-op when already running. When manual
// is false and the operator previously stopped the broker by hand, the
// sticky flag wins and Start refuses.
func (s *Supervisor) Start(ctx context.Context, manual bool) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startLocked(ctx, manual)
}

func (s *Supervisor) startLocked(ctx context.Context, manual bool) error {
	if !s.initialized {
		return fmt.Errorf("broker supervisor not initialized")
	}
	if s.processAlive() {
		return nil
	}
	if !manual && s.manuallyStopped {
		s.logger.Info("Broker start skipped: operator stopped it manually")
		return fmt.Errorf("broker was manually stopped; start it explicitly")
	}

	if !fileExists(s.inst.ConfigPath) {
		s.logger.Info("Generating broker config from template", "path", s.inst.ConfigPath)
		installDir := filepath.Dir(filepath.Dir(s.inst.ExePath))
		if err := WriteConfigTemplate(s.inst.ConfigPath, s.Snapshot().Port, installDir); err != nil {
			return &StartError{Diagnosis: diagnose.NewBrokerUnavailable(), Err: err}
		}
		cfg, err := ParseConfigFile(s.inst.ConfigPath)
		if err != nil {
			return &StartError{Diagnosis: diagnose.NewBrokerUnavailable(), Err: err}
		}
		s.setConfig(cfg)
	}

	s.publishStateValue(ctx, StateStarting)

	pid, err := spawnBroker(ctx, s.inst, s.service)
	if err != nil {
		s.publishState(ctx)
		return &StartError{Diagnosis: classifyStartFailure(err, s.Snapshot().Port), Err: err}
	}
	s.pid = pid
	if manual {
		s.manuallyStopped = false
	}

	// Wait for the admin interface. A broker that is alive but not
	// yet answering counts as started in the "starting" sense.
	port := s.Snapshot().Port
	deadline := time.Now().Add(startWait)
	for time.Now().Before(deadline) {
		if s.stats.Ping(ctx, port) {
			s.logger.Info("Broker is up", "pid", s.pid, "port", port)
			s.publishStateValue(ctx, StateRunning)
			return nil
		}
		if !s.processAlive() {
			s.pid = 0
			s.publishStateValue(ctx, StateStopped)
			return &StartError{
				Diagnosis: classifyStartFailure(fmt.Errorf("broker exited during startup"), port),
				Err:       fmt.Errorf("broker exited during startup"),
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(verifyDelay):
		}
	}

	s.logger.Warn("Broker spawned but admin interface not answering yet", "pid", s.pid)
	s.publishStateValue(ctx, StateStarting)
	return nil
}

// Stop terminates the broker: graceful signal, grace period, then a
// hard kill, with liveness verified before returning. A manual stop
// sets the sticky flag so automatic restarts leave the broker alone.
func (s *Supervisor) Stop(ctx context.Context, manual bool) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked(ctx, manual)
}

func (s *Supervisor) stopLocked(ctx context.Context, manual bool) error {
	if !s.initialized {
		return fmt.Errorf("broker supervisor not initialized")
	}
	if manual {
		s.manuallyStopped = true
	}
	if !s.processAlive() {
		s.pid = 0
		s.publishStateValue(ctx, StateStopped)
		return nil
	}

	s.publishStateValue(ctx, StateStopping)
	stopBroker(ctx, s.pid, s.inst, s.service)

	for i := 0; i < verifyRetries; i++ {
		if !platform.IsAlive(s.pid) {
			s.pid = 0
			s.publishStateValue(ctx, StateStopped)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(verifyDelay):
		}
	}

	s.logger.Error("Broker did not exit after kill", "pid", s.pid)
	return fmt.Errorf("broker process %d still alive after stop", s.pid)
}

// Restart stops the broker, waits for observable termination, then
// starts it again under the same lock so no other operation can
// interleave.
func (s *Supervisor) Restart(ctx context.Context, manual bool) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.stopLocked(ctx, false); err != nil {
		return err
	}

	deadline := time.Now().Add(stopWait)
	for s.pid > 0 && platform.IsAlive(s.pid) && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(verifyDelay):
		}
	}

	return s.startLocked(ctx, manual)
}

// GetStatus reports broker state with OS process liveness as the
// authority: dead process means stopped no matter what HTTP said
// moments ago, alive-but-unreachable means still starting.
func (s *Supervisor) GetStatus(ctx context.Context) Status {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	cfg := s.Snapshot()
	st := Status{
		Port:         cfg.Port,
		Hostname:     cfg.Hostname,
		MaxListeners: cfg.MaxListeners,
		MaxSources:   cfg.MaxSources,
		ConfigPath:   s.inst.ConfigPath,
		ExePath:      s.inst.ExePath,
	}

	if !s.initialized {
		st.State = StateUninitialized
		return st
	}
	if !s.processAlive() {
		s.pid = 0
		st.State = StateStopped
		return st
	}

	st.PID = s.pid
	stats, err := s.stats.GetStats(ctx, cfg)
	if err != nil {
		st.State = StateStarting
		return st
	}
	st.State = StateRunning
	st.Stats = &stats
	return st
}

// Configure edits the broker XML in place and re-parses it. The
// broker restarts only when it is currently running and the operator
// has not manually stopped it.
func (s *Supervisor) Configure(ctx context.Context, changes ConfigChanges) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.initialized {
		return fmt.Errorf("broker supervisor not initialized")
	}
	if changes.empty() {
		return nil
	}

	data, err := os.ReadFile(s.inst.ConfigPath)
	if err != nil {
		return fmt.Errorf("reading broker config: %w", err)
	}
	edited := EditConfig(data, changes)
	if err := os.WriteFile(s.inst.ConfigPath, edited, 0o600); err != nil {
		return fmt.Errorf("writing broker config: %w", err)
	}

	cfg, err := ParseConfig(edited)
	if err != nil {
		return err
	}
	s.setConfig(cfg)
	s.saveCacheLocked()

	wasRunning := s.processAlive()
	if wasRunning && !s.manuallyStopped {
		s.logger.Info("Broker config changed, restarting broker")
		if err := s.stopLocked(ctx, false); err != nil {
			return err
		}
		return s.startLocked(ctx, false)
	}
	s.publishState(ctx)
	return nil
}

// ManuallyStopped reports the sticky operator-stop flag. Internal use
// only; the API never surfaces it.
func (s *Supervisor) ManuallyStopped() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.manuallyStopped
}

func (s *Supervisor) publishState(ctx context.Context) {
	state := StateStopped
	if s.pid > 0 && platform.IsAlive(s.pid) {
		state = StateRunning
	}
	s.publishStateValue(ctx, state)
}

func (s *Supervisor) publishStateValue(_ context.Context, state State) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.BrokerStateEvent{
		State:     string(state),
		Port:      s.Snapshot().Port,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// classifyStartFailure turns a spawn failure into a Diagnosis. A port
// already being bound is the common case worth naming.
func classifyStartFailure(err error, port int) diagnose.Diagnosis {
	d := diagnose.Classify(err.Error(), 0, diagnose.Context{BrokerPort: port})
	return d
}
