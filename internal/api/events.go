package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/audionode/internal/events"
)

// registerSSERoutes registers the admin event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of stream lifecycle, broker state, device, diagnosis and health events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"stream-created":    events.StreamCreatedEvent{},
		"stream-updated":    events.StreamUpdatedEvent{},
		"stream-deleted":    events.StreamDeletedEvent{},
		"stream-state":      events.StreamStateEvent{},
		"streams-reordered": events.StreamsReorderedEvent{},
		"broker-state":      events.BrokerStateEvent{},
		"device-change":     events.DeviceChangeEvent{},
		"diagnosis":         events.DiagnosisEvent{},
		"health":            events.HealthEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.StreamCreatedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.StreamUpdatedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.StreamDeletedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.StreamStateEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.StreamsReorderedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.BrokerStateEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.DeviceChangeEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.DiagnosisEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.HealthEvent](s.options.EventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Connection confirmation so clients know the stream is live.
		if err := send.Data(events.HealthEvent{
			Overall:   "connected",
			Message:   "SSE connection established",
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
