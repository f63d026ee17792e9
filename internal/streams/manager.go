// Package streams enforces the stream data model's invariants and
// drives encoder lifecycles: one supervised encoder per stream, at
// most one stream per capture device, definitions persisted atomically.
package streams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/smazurov/audionode/internal/codecs"
	"github.com/smazurov/audionode/internal/devices"
	"github.com/smazurov/audionode/internal/diagnose"
	"github.com/smazurov/audionode/internal/encoder"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/platform"
	"github.com/smazurov/audionode/internal/streams/store"
)

// batchDelay spaces out bulk start/stop operations so the broker is
// not hit by every encoder at once.
const batchDelay = 150 * time.Millisecond

// EncoderHandle is the manager's view of one supervised encoder.
type EncoderHandle interface {
	Start(ctx context.Context) error
	Stop() error
	State() encoder.State
	PID() int
	Uptime() time.Duration
	Codec() codecs.Codec
	StderrTail() string
	Done() <-chan encoder.ExitInfo
}

// SpawnFunc builds an encoder handle for a stream. Injectable for
// tests; the default wraps encoder.New.
type SpawnFunc func(spec encoder.Spec, deviceID string, broker encoder.BrokerParams) EncoderHandle

// BrokerGateway is the slice of the broker supervisor the manager
// needs: is it up, and how do encoders reach it.
type BrokerGateway interface {
	Running(ctx context.Context) bool
	SourceParams() encoder.BrokerParams
}

// DeviceResolver maps a device slug to its backend-specific name.
type DeviceResolver interface {
	ResolveBackendName(ctx context.Context, slug string) (string, error)
}

// StreamStats is the per-stream status row for the admin API.
type StreamStats struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Status    Status              `json:"status"`
	DeviceID  string              `json:"deviceId,omitempty"`
	Position  int                 `json:"position"`
	Uptime    float64             `json:"uptimeSeconds"`
	Encoder   string              `json:"encoder,omitempty"`
	LastError *diagnose.Diagnosis `json:"lastError,omitempty"`

	// NeedsRestart marks a stream that was defined before this process
	// started and has not been (re)started since. Cleared on start.
	NeedsRestart bool `json:"needsRestart,omitempty"`
}

// BatchResult is one stream's outcome in a stop-all/start-all sweep.
type BatchResult struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// runtime holds the non-persisted half of a stream.
type runtime struct {
	status       Status
	proc         EncoderHandle
	lastError    *diagnose.Diagnosis
	needsRestart bool
	gen          int
}

// Manager owns all stream state. A single mutex serializes state
// transitions, which is what makes the one-stream-per-device invariant
// race-free: the conflict check and the starting transition happen
// under the same lock. Encoder I/O (spawn, terminate) runs outside the
// lock; the per-stream generation counter decides whose outcome wins.
type Manager struct {
	store      *store.Store
	bus        *events.Bus
	logger     *slog.Logger
	ffmpegPath string
	broker     BrokerGateway
	resolver   DeviceResolver
	spawn      SpawnFunc
	onProgress encoder.ProgressFunc

	mu      sync.Mutex
	runtime map[string]*runtime
}

// NewManager wires a stream manager. onProgress may be nil.
func NewManager(st *store.Store, bus *events.Bus, ffmpegPath string, broker BrokerGateway, resolver DeviceResolver, onProgress encoder.ProgressFunc) *Manager {
	m := &Manager{
		store:      st,
		bus:        bus,
		logger:     logging.GetLogger("streams"),
		ffmpegPath: ffmpegPath,
		broker:     broker,
		resolver:   resolver,
		onProgress: onProgress,
		runtime:    make(map[string]*runtime),
	}
	m.spawn = func(spec encoder.Spec, deviceID string, broker encoder.BrokerParams) EncoderHandle {
		return encoder.New(m.ffmpegPath, spec, deviceID, broker, nil, m.onProgress)
	}
	return m
}

// SetSpawnFunc overrides encoder construction. Test hook.
func (m *Manager) SetSpawnFunc(fn SpawnFunc) {
	m.spawn = fn
}

// SetSelectorSource rewires the default spawn to consult validated
// codec results when building the cascade.
func (m *Manager) SetSelectorSource(selector *codecs.Selector) {
	m.spawn = func(spec encoder.Spec, deviceID string, broker encoder.BrokerParams) EncoderHandle {
		return encoder.New(m.ffmpegPath, spec, deviceID, broker, selector, m.onProgress)
	}
}

// Initialize loads persisted streams (all enter stopped, flagged for
// restart) and kills orphan encoders left over from a previous run so
// the process table matches the loaded state.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.store.Load(); err != nil {
		return NewStreamError(ErrCodeStoreError, "loading streams", err)
	}

	m.mu.Lock()
	for _, st := range m.store.List() {
		m.runtime[st.ID] = &runtime{status: StatusStopped, needsRestart: true}
	}
	m.mu.Unlock()

	m.killOrphans()
	m.logger.Info("Streams loaded", "count", m.store.Count())
	return nil
}

// killOrphans scans the process table for encoders pushing to our
// mount URLs and kills them. Adoption would mean trusting a process we
// did not configure; a clean ground state is worth the restart.
func (m *Manager) killOrphans() {
	for _, st := range m.store.List() {
		matches, err := platform.FindByCommandLine("icecast://source:", "/"+st.ID)
		if err != nil {
			m.logger.Warn("Orphan scan failed", "error", err)
			return
		}
		for _, match := range matches {
			m.logger.Warn("Killing orphan encoder", "pid", match.PID, "stream_id", st.ID)
			if err := platform.KillTree(match.PID); err != nil {
				m.logger.Error("Failed to kill orphan", "pid", match.PID, "error", err)
			}
		}
	}
}

// Create validates and persists a new stream. The encoder is not
// started.
func (m *Manager) Create(_ context.Context, params CreateParams) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := newStream(params)
	if err != nil {
		return Stream{}, err
	}

	if _, exists := m.store.Get(st.ID); exists {
		return Stream{}, NewDiagnosedError(ErrCodeStreamExists,
			fmt.Sprintf("stream %q already exists", st.ID), diagnose.NewDuplicateID(st.ID))
	}
	if other, taken := m.nameTaken(st.Name, st.ID); taken {
		return Stream{}, NewDiagnosedError(ErrCodeDuplicateName,
			fmt.Sprintf("name already used by stream %q", other), diagnose.NewDuplicateName(st.Name))
	}

	if err := m.store.Put(st); err != nil {
		return Stream{}, NewStreamError(ErrCodeStoreError, "saving stream", err)
	}
	st, _ = m.store.Get(st.ID)
	m.runtime[st.ID] = &runtime{status: StatusStopped}

	m.publish(events.StreamCreatedEvent{Stream: m.infoLocked(st), Timestamp: now()})
	m.logger.Info("Stream created", "stream_id", st.ID, "name", st.Name)
	return st, nil
}

// nameTaken reports whether another stream already uses the name,
// compared case-insensitively on the trimmed form.
func (m *Manager) nameTaken(name, excludeID string) (string, bool) {
	want := NormalizedName(name)
	for _, st := range m.store.List() {
		if st.ID != excludeID && NormalizedName(st.Name) == want {
			return st.ID, true
		}
	}
	return "", false
}

// launch is what a start captures under the lock: the encoder spec,
// built while the device reservation was made, plus the generation
// that must still be current for the outcome to count.
type launch struct {
	spec     encoder.Spec
	deviceID string
	broker   encoder.BrokerParams
	gen      int
}

// Start runs the pre-flight checks, reserves the device by committing
// the starting state, then spawns the encoder with the lock released.
// Encoder startup can take seconds; holding the lock across it would
// stall every other stream operation.
func (m *Manager) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	plan, err := m.prepareStartLocked(ctx, id)
	m.mu.Unlock()
	if err != nil || plan == nil {
		return err
	}

	handle := m.spawn(plan.spec, plan.deviceID, plan.broker)
	startErr := handle.Start(ctx)

	m.mu.Lock()
	rt, ok := m.runtime[id]
	if !ok || rt.gen != plan.gen {
		// A stop or delete superseded this start mid-spawn. It owns
		// the state now; our encoder must not keep the device.
		m.mu.Unlock()
		if startErr == nil {
			if err := handle.Stop(); err != nil {
				m.logger.Warn("Superseded encoder stop was not clean", "stream_id", id, "error", err)
			}
		}
		return nil
	}

	if startErr != nil {
		rt.status = StatusError
		var se *encoder.StartError
		if errors.As(startErr, &se) {
			rt.lastError = &se.Diagnosis
			m.publish(events.DiagnosisEvent{StreamID: id, Diagnosis: se.Diagnosis, Timestamp: now()})
		}
		diag := rt.lastError
		m.publishState(id, StatusError)
		m.mu.Unlock()
		m.logger.Error("Stream start failed", "stream_id", id, "error", startErr)
		if diag != nil {
			return NewDiagnosedError(ErrCodeEncoderFailed, "encoder failed to start", *diag)
		}
		return NewStreamError(ErrCodeEncoderFailed, "encoder failed to start", startErr)
	}

	rt.proc = handle
	rt.status = StatusRunning
	m.publishState(id, StatusRunning)
	m.mu.Unlock()
	m.logger.Info("Stream running", "stream_id", id,
		"encoder", handle.Codec().Encoder, "pid", handle.PID())

	go m.monitor(id, plan.gen, handle)
	return nil
}

// prepareStartLocked validates the start and commits the starting
// state. A nil plan with a nil error means the stream is already
// starting or running.
func (m *Manager) prepareStartLocked(ctx context.Context, id string) (*launch, error) {
	st, ok := m.store.Get(id)
	if !ok {
		return nil, NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream %q not found", id), nil)
	}
	rt := m.runtimeFor(id)
	if rt.status == StatusStarting || rt.status == StatusRunning {
		return nil, nil
	}

	// One stream per device.
	if st.DeviceID != "" {
		for otherID, other := range m.runtime {
			if otherID == id {
				continue
			}
			if other.status != StatusStarting && other.status != StatusRunning {
				continue
			}
			if def, ok := m.store.Get(otherID); ok && def.DeviceID == st.DeviceID {
				return nil, NewDiagnosedError(ErrCodeDeviceConflict,
					fmt.Sprintf("device %q in use by stream %q", st.DeviceID, otherID),
					diagnose.NewDeviceConflict(st.DeviceID, otherID))
			}
		}
	}

	if !m.broker.Running(ctx) {
		return nil, NewDiagnosedError(ErrCodeBrokerUnavailable,
			"broker is not running", diagnose.NewBrokerUnavailable())
	}

	if _, err := exec.LookPath(m.ffmpegPath); err != nil {
		return nil, NewDiagnosedError(ErrCodeEncoderMissing,
			"encoder binary not found", diagnose.NewInstallationNotFound([]string{m.ffmpegPath}))
	}

	spec := encoder.Spec{
		StreamID:    st.ID,
		InputFile:   st.InputFilePath,
		Format:      st.Format,
		BitrateKbps: st.BitrateKbps,
		SampleRate:  st.SampleRate,
		Channels:    st.Channels,
	}
	if st.DeviceID != "" {
		backendName, err := m.resolver.ResolveBackendName(ctx, st.DeviceID)
		if err != nil {
			var notMapped *devices.NotMappedError
			if errors.As(err, &notMapped) {
				return nil, NewDiagnosedError(ErrCodeDeviceNotMapped, err.Error(), notMapped.Diagnosis)
			}
			var enumErr *devices.EnumerationError
			if errors.As(err, &enumErr) {
				return nil, NewDiagnosedError(ErrCodeDeviceNotMapped, err.Error(), enumErr.Diagnosis)
			}
			return nil, NewStreamError(ErrCodeDeviceNotMapped, err.Error(), err)
		}
		spec.BackendName = backendName
		spec.Backend = devices.DefaultBackend()
	}

	rt.gen++
	rt.status = StatusStarting
	rt.lastError = nil
	rt.needsRestart = false
	m.publishState(id, StatusStarting)

	return &launch{
		spec:     spec,
		deviceID: st.DeviceID,
		broker:   m.broker.SourceParams(),
		gen:      rt.gen,
	}, nil
}

// monitor reacts to the encoder's eventual exit. The generation guard
// drops stale notifications after a restart replaced the handle.
func (m *Manager) monitor(id string, gen int, handle EncoderHandle) {
	info := <-handle.Done()

	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.runtime[id]
	if !ok || rt.gen != gen {
		return
	}
	rt.proc = nil

	if info.Intentional {
		rt.status = StatusStopped
		m.publishState(id, StatusStopped)
		return
	}

	rt.status = StatusError
	rt.lastError = info.Diagnosis
	m.publishState(id, StatusError)
	if info.Diagnosis != nil {
		m.publish(events.DiagnosisEvent{StreamID: id, Diagnosis: *info.Diagnosis, Timestamp: now()})
		m.logger.Error("Stream crashed", "stream_id", id,
			"exit_code", info.Code, "category", info.Diagnosis.Category)
	}
}

// Stop terminates a stream's encoder. Success no-op when already
// stopped.
func (m *Manager) Stop(_ context.Context, id string) error {
	m.mu.Lock()
	proc, err := m.detachLocked(id)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.terminate(id, proc)
	return nil
}

// detachLocked moves a starting or running stream to stopped and hands
// back its encoder handle. Bumping the generation stands down the
// monitor goroutine and any in-flight start. Terminating the handle is
// the caller's job, outside the lock: SIGTERM escalation can take
// seconds.
func (m *Manager) detachLocked(id string) (EncoderHandle, error) {
	if _, ok := m.store.Get(id); !ok {
		return nil, NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream %q not found", id), nil)
	}
	rt := m.runtimeFor(id)
	if rt.status != StatusStarting && rt.status != StatusRunning {
		return nil, nil
	}

	rt.gen++
	proc := rt.proc
	rt.proc = nil
	rt.status = StatusStopped
	rt.lastError = nil

	m.publishState(id, StatusStopped)
	m.logger.Info("Stream stopped", "stream_id", id)
	return proc, nil
}

// terminate stops a detached encoder. Safe with a nil handle.
func (m *Manager) terminate(id string, proc EncoderHandle) {
	if proc == nil {
		return
	}
	if err := proc.Stop(); err != nil {
		m.logger.Warn("Encoder stop was not clean", "stream_id", id, "error", err)
	}
}

// Restart is stop then start, re-running every pre-flight check.
func (m *Manager) Restart(ctx context.Context, id string) error {
	m.mu.Lock()
	proc, err := m.detachLocked(id)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.terminate(id, proc)
	return m.Start(ctx, id)
}

// Update patches a stream definition. A changed device or a stream in
// error drops back to a clean stopped state.
func (m *Manager) Update(_ context.Context, id string, patch UpdateParams) (Stream, error) {
	var detached EncoderHandle
	defer func() { m.terminate(id, detached) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.store.Get(id)
	if !ok {
		return Stream{}, NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream %q not found", id), nil)
	}

	updated, err := applyUpdate(st, patch)
	if err != nil {
		return Stream{}, err
	}
	if other, taken := m.nameTaken(updated.Name, id); taken {
		return Stream{}, NewDiagnosedError(ErrCodeDuplicateName,
			fmt.Sprintf("name already used by stream %q", other), diagnose.NewDuplicateName(updated.Name))
	}

	rt := m.runtimeFor(id)
	deviceChanged := updated.DeviceID != st.DeviceID || updated.InputFilePath != st.InputFilePath
	if deviceChanged || rt.status == StatusError {
		if rt.status == StatusStarting || rt.status == StatusRunning {
			proc, err := m.detachLocked(id)
			if err != nil {
				return Stream{}, err
			}
			detached = proc
		} else {
			rt.status = StatusStopped
			rt.lastError = nil
			m.publishState(id, StatusStopped)
		}
	}

	if err := m.store.Put(updated); err != nil {
		return Stream{}, NewStreamError(ErrCodeStoreError, "saving stream", err)
	}
	updated, _ = m.store.Get(id)

	m.publish(events.StreamUpdatedEvent{Stream: m.infoLocked(updated), Timestamp: now()})
	m.logger.Info("Stream updated", "stream_id", id)
	return updated, nil
}

// Delete stops a running stream, then removes it. The broker mount is
// not touched: it is released when the encoder disconnects.
func (m *Manager) Delete(_ context.Context, id string) error {
	var detached EncoderHandle
	defer func() { m.terminate(id, detached) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.store.Get(id); !ok {
		return NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream %q not found", id), nil)
	}
	proc, err := m.detachLocked(id)
	if err != nil {
		return err
	}
	detached = proc
	if err := m.store.Remove(id); err != nil {
		return NewStreamError(ErrCodeStoreError, "removing stream", err)
	}
	delete(m.runtime, id)

	m.publish(events.StreamDeletedEvent{StreamID: id, Timestamp: now()})
	m.logger.Info("Stream deleted", "stream_id", id)
	return nil
}

// StopAll stops every starting or running stream, spaced out to avoid
// a thundering herd against the broker.
func (m *Manager) StopAll(ctx context.Context) []BatchResult {
	var results []BatchResult
	for i, st := range m.snapshotIDs(StatusStarting, StatusRunning) {
		if i > 0 {
			sleepCtx(ctx, batchDelay)
		}
		results = append(results, BatchResult{ID: st, Err: m.Stop(ctx, st)})
	}
	return results
}

// StartAllStopped starts every stopped stream, spaced out like StopAll.
func (m *Manager) StartAllStopped(ctx context.Context) []BatchResult {
	var results []BatchResult
	for i, st := range m.snapshotIDs(StatusStopped) {
		if i > 0 {
			sleepCtx(ctx, batchDelay)
		}
		results = append(results, BatchResult{ID: st, Err: m.Start(ctx, st)})
	}
	return results
}

// snapshotIDs returns ids of streams currently in one of the given
// states, in display order.
func (m *Manager) snapshotIDs(states ...Status) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, st := range m.store.List() {
		rt := m.runtimeFor(st.ID)
		for _, want := range states {
			if rt.status == want {
				ids = append(ids, st.ID)
				break
			}
		}
	}
	return ids
}

// Reorder reassigns positions by list index and persists.
func (m *Manager) Reorder(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetOrder(ids); err != nil {
		return NewStreamError(ErrCodeInvalidParams, err.Error(), err)
	}
	m.publish(events.StreamsReorderedEvent{Order: ids, Timestamp: now()})
	return nil
}

// Get returns one stream definition plus its runtime status.
func (m *Manager) Get(id string) (Stream, StreamStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.store.Get(id)
	if !ok {
		return Stream{}, StreamStats{}, NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream %q not found", id), nil)
	}
	return st, m.statsLocked(st), nil
}

// List returns all stream definitions in display order.
func (m *Manager) List() []Stream {
	return m.store.List()
}

// Stats returns the per-stream status table.
func (m *Manager) Stats() []StreamStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.store.List()
	out := make([]StreamStats, 0, len(list))
	for _, st := range list {
		out = append(out, m.statsLocked(st))
	}
	return out
}

func (m *Manager) statsLocked(st Stream) StreamStats {
	rt := m.runtimeFor(st.ID)
	stats := StreamStats{
		ID:           st.ID,
		Name:         st.Name,
		Status:       rt.status,
		DeviceID:     st.DeviceID,
		Position:     st.Position,
		LastError:    rt.lastError,
		NeedsRestart: rt.needsRestart,
	}
	if rt.proc != nil {
		stats.Uptime = rt.proc.Uptime().Seconds()
		stats.Encoder = rt.proc.Codec().Encoder
	}
	return stats
}

// Shutdown stops all encoders. Called on process exit; the broker is
// left alone.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, result := range m.StopAll(ctx) {
		if result.Err != nil {
			m.logger.Warn("Stream did not stop cleanly on shutdown",
				"stream_id", result.ID, "error", result.Err)
		}
	}
}

func (m *Manager) runtimeFor(id string) *runtime {
	rt, ok := m.runtime[id]
	if !ok {
		rt = &runtime{status: StatusStopped}
		m.runtime[id] = rt
	}
	return rt
}

func (m *Manager) infoLocked(st Stream) events.StreamInfo {
	rt := m.runtimeFor(st.ID)
	return events.StreamInfo{
		ID:       st.ID,
		Name:     st.Name,
		Status:   string(rt.status),
		Position: st.Position,
		DeviceID: st.DeviceID,
	}
}

func (m *Manager) publish(e events.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}

func (m *Manager) publishState(id string, status Status) {
	m.publish(events.StreamStateEvent{StreamID: id, Status: string(status), Timestamp: now()})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
