package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// LEDCapabilitiesData lists what the detected board supports.
type LEDCapabilitiesData struct {
	AvailableTypes    []string `json:"available_types" doc:"LED types available on this board"`
	AvailablePatterns []string `json:"available_patterns" doc:"Patterns available on this board"`
}

// registerLEDRoutes registers LED control endpoints. Boards without
// controllable LEDs get a no-op controller, so the routes always exist
// and simply do nothing there.
func (s *Server) registerLEDRoutes() {
	if s.options.LEDController == nil {
		s.logger.Debug("LED controller not available, skipping LED routes")
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "control-led",
		Method:      http.MethodPost,
		Path:        "/api/leds",
		Summary:     "Control LED",
		Description: "Set an LED's state and optional pattern. Types and patterns are board-specific.",
		Tags:        []string{"leds"},
		Errors:      []int{400, 401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		Body struct {
			Type    string  `json:"type" example:"system" doc:"Board-specific LED identifier"`
			Enabled bool    `json:"enabled" example:"true" doc:"Whether the LED should be on"`
			Pattern *string `json:"pattern,omitempty" example:"solid" doc:"Optional pattern (solid, blink, heartbeat)"`
		}
	}) (*Response[struct{}], error) {
		pattern := ""
		if input.Body.Pattern != nil {
			pattern = *input.Body.Pattern
		}
		if err := s.options.LEDController.Set(input.Body.Type, input.Body.Enabled, pattern); err != nil {
			return nil, newErrorEnvelope(http.StatusBadRequest, "validation",
				"LED control failed", err.Error())
		}
		return respond(struct{}{}), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-led-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/leds/capabilities",
		Summary:     "Get LED Capabilities",
		Description: "List the LED types and patterns this board supports",
		Tags:        []string{"leds"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[LEDCapabilitiesData], error) {
		return respond(LEDCapabilitiesData{
			AvailableTypes:    s.options.LEDController.Available(),
			AvailablePatterns: s.options.LEDController.Patterns(),
		}), nil
	})
}
