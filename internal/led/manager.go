package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/audionode/internal/events"
)

// Manager drives the on-air LED from stream state events: solid when
// every defined stream is running, heartbeat otherwise.
type Manager struct {
	controller    Controller
	eventBus      *events.Bus
	unsubscribers []func()
	logger        *slog.Logger

	mu           sync.RWMutex
	streamStates map[string]string // streamID -> status
}

// NewManager creates an LED manager that reacts to stream state changes.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller:   controller,
		eventBus:     eventBus,
		logger:       logger,
		streamStates: make(map[string]string),
	}
}

// Start begins listening for stream lifecycle events.
func (m *Manager) Start() {
	m.unsubscribers = []func(){
		m.eventBus.Subscribe(func(e events.StreamStateEvent) {
			m.handleState(e)
		}),
		m.eventBus.Subscribe(func(e events.StreamDeletedEvent) {
			m.handleDeleted(e)
		}),
	}
	m.logger.Info("LED manager started")
}

// Stop unsubscribes from events.
func (m *Manager) Stop() {
	for _, unsub := range m.unsubscribers {
		unsub()
	}
	m.unsubscribers = nil
	m.logger.Info("LED manager stopped")
}

func (m *Manager) handleState(event events.StreamStateEvent) {
	m.mu.Lock()
	m.streamStates[event.StreamID] = event.Status
	m.mu.Unlock()

	m.logger.Debug("Stream state changed",
		"stream_id", event.StreamID,
		"status", event.Status)

	m.updateOnAirLED()
}

func (m *Manager) handleDeleted(event events.StreamDeletedEvent) {
	m.mu.Lock()
	delete(m.streamStates, event.StreamID)
	m.mu.Unlock()

	m.updateOnAirLED()
}

// updateOnAirLED sets the system LED pattern from the aggregate state.
func (m *Manager) updateOnAirLED() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pattern := "heartbeat"
	if len(m.streamStates) > 0 {
		allRunning := true
		for _, status := range m.streamStates {
			if status != "running" {
				allRunning = false
				break
			}
		}
		if allRunning {
			pattern = "solid"
		}
	}

	if err := m.controller.Set("system", true, pattern); err != nil {
		m.logger.Warn("Failed to set system LED", "pattern", pattern, "error", err)
	}
}

// GetController returns the underlying LED controller for direct API access.
func (m *Manager) GetController() Controller {
	return m.controller
}
