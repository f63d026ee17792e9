package events

import "github.com/smazurov/audionode/internal/diagnose"

// Event type constants for kelindar/event.
const (
	TypeStreamCreated uint32 = iota + 1
	TypeStreamUpdated
	TypeStreamDeleted
	TypeStreamState
	TypeStreamsReordered
	TypeBrokerState
	TypeDeviceChange
	TypeDiagnosis
	TypeLogEntry
	TypeHealth
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamInfo is the event-facing view of a stream. Events carry this
// small value instead of the manager's internal state so subscribers
// never see runtime-only fields.
type StreamInfo struct {
	ID       string `json:"id" example:"english" doc:"Stream identifier (also the broker mount name)"`
	Name     string `json:"name" example:"English" doc:"Display name"`
	Status   string `json:"status" example:"running" doc:"Current status"`
	Position int    `json:"position" example:"0" doc:"Display order"`
	DeviceID string `json:"device_id,omitempty" example:"usb-microphone" doc:"Capture device slug, if device-sourced"`
}

// StreamCreatedEvent is published after a stream definition is persisted.
type StreamCreatedEvent struct {
	Stream    StreamInfo `json:"stream" doc:"Created stream"`
	Timestamp string     `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamCreatedEvent.
func (e StreamCreatedEvent) Type() uint32 { return TypeStreamCreated }

// StreamUpdatedEvent is published after a stream definition changes.
type StreamUpdatedEvent struct {
	Stream    StreamInfo `json:"stream" doc:"Updated stream"`
	Timestamp string     `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamUpdatedEvent.
func (e StreamUpdatedEvent) Type() uint32 { return TypeStreamUpdated }

// StreamDeletedEvent is published after a stream is removed from the store.
type StreamDeletedEvent struct {
	StreamID  string `json:"stream_id" example:"english" doc:"Deleted stream identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamDeletedEvent.
func (e StreamDeletedEvent) Type() uint32 { return TypeStreamDeleted }

// StreamStateEvent is published on every stream status transition.
// The LED manager and SSE clients react to these.
type StreamStateEvent struct {
	StreamID  string `json:"stream_id" example:"english" doc:"Stream identifier"`
	Status    string `json:"status" example:"running" doc:"New status"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStateEvent.
func (e StreamStateEvent) Type() uint32 { return TypeStreamState }

// StreamsReorderedEvent is published after display order changes.
type StreamsReorderedEvent struct {
	Order     []string `json:"order" doc:"Stream identifiers in the new display order"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamsReorderedEvent.
func (e StreamsReorderedEvent) Type() uint32 { return TypeStreamsReordered }

// BrokerStateEvent is published when the broadcast server's observed
// state changes (stopped, starting, running) or its config is re-parsed.
type BrokerStateEvent struct {
	State     string `json:"state" example:"running" doc:"Broker state"`
	Port      int    `json:"port" example:"8000" doc:"Broker listen port from the parsed config"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for BrokerStateEvent.
func (e BrokerStateEvent) Type() uint32 { return TypeBrokerState }

// DeviceChangeEvent is published when the set of audio devices changes
// (hotplug on Linux, explicit refresh elsewhere).
type DeviceChangeEvent struct {
	Action    string `json:"action" example:"added" doc:"Action type: added, removed, refreshed"`
	DeviceID  string `json:"device_id,omitempty" example:"usb-microphone" doc:"Affected device, when known"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceChangeEvent.
func (e DeviceChangeEvent) Type() uint32 { return TypeDeviceChange }

// DiagnosisEvent carries a structured failure diagnosis to SSE clients.
type DiagnosisEvent struct {
	StreamID  string             `json:"stream_id,omitempty" example:"english" doc:"Stream the diagnosis belongs to, if any"`
	Diagnosis diagnose.Diagnosis `json:"diagnosis" doc:"Structured diagnosis"`
	Timestamp string             `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DiagnosisEvent.
func (e DiagnosisEvent) Type() uint32 { return TypeDiagnosis }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// HealthEvent is published when the periodic health probe's overall
// verdict changes.
type HealthEvent struct {
	Overall   string `json:"overall" example:"healthy" doc:"Overall health: healthy, degraded, unhealthy"`
	Message   string `json:"message,omitempty" doc:"Human summary of the transition"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for HealthEvent.
func (e HealthEvent) Type() uint32 { return TypeHealth }
