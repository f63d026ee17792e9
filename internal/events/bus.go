package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(StreamStateEvent{...})
func (b *Bus) Publish(ev Event) {
	// Use type switch to call the generic Publish with the correct type
	switch e := ev.(type) {
	case StreamCreatedEvent:
		event.Publish(b.dispatcher, e)
	case StreamUpdatedEvent:
		event.Publish(b.dispatcher, e)
	case StreamDeletedEvent:
		event.Publish(b.dispatcher, e)
	case StreamStateEvent:
		event.Publish(b.dispatcher, e)
	case StreamsReorderedEvent:
		event.Publish(b.dispatcher, e)
	case BrokerStateEvent:
		event.Publish(b.dispatcher, e)
	case DeviceChangeEvent:
		event.Publish(b.dispatcher, e)
	case DiagnosisEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	case HealthEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives (type inference)
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e StreamStateEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StreamCreatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamUpdatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamDeletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamsReorderedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BrokerStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceChangeEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DiagnosisEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(HealthEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
