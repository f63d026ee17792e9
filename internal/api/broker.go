package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/broker"
	"github.com/smazurov/audionode/internal/health"
)

// BrokerStatusData is the broker status payload.
type BrokerStatusData struct {
	State        string        `json:"state" example:"running" doc:"Broker lifecycle state"`
	Port         int           `json:"port" example:"8000" doc:"Listen port from the parsed config"`
	Hostname     string        `json:"hostname" example:"localhost" doc:"Configured hostname"`
	MaxListeners int           `json:"maxListeners" example:"100" doc:"Configured client limit"`
	MaxSources   int           `json:"maxSources" example:"10" doc:"Configured source limit"`
	PID          int           `json:"pid,omitempty" doc:"Broker process id when running"`
	ConfigPath   string        `json:"configPath" doc:"Path to the XML configuration"`
	ExePath      string        `json:"exePath" doc:"Path to the broker executable"`
	Stats        *broker.Stats `json:"stats,omitempty" doc:"Live server statistics when reachable"`
}

func (s *Server) registerBrokerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-broker-status",
		Method:      http.MethodGet,
		Path:        "/api/broker/status",
		Summary:     "Broker Status",
		Description: "Get the broadcast server's state, parsed configuration and live statistics",
		Tags:        []string{"broker"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[BrokerStatusData], error) {
		return respond(brokerStatusData(s.options.Broker.GetStatus(ctx))), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-broker-health",
		Method:      http.MethodGet,
		Path:        "/api/broker/health",
		Summary:     "Broker Health",
		Description: "Get the latest periodic health probe report",
		Tags:        []string{"broker"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[health.Report], error) {
		return respond(s.options.Health.Last()), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-broker",
		Method:      http.MethodPost,
		Path:        "/api/broker/start",
		Summary:     "Start Broker",
		Description: "Start the broadcast server and clear the manual-stop latch",
		Tags:        []string{"broker"},
		Errors:      []int{401, 500, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[BrokerStatusData], error) {
		if err := s.options.Broker.Start(ctx, true); err != nil {
			return nil, mapBrokerError(err)
		}
		st := s.options.Broker.GetStatus(ctx)
		return respond(brokerStatusData(st)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-broker",
		Method:      http.MethodPost,
		Path:        "/api/broker/stop",
		Summary:     "Stop Broker",
		Description: "Stop the broadcast server. It stays down until explicitly started again.",
		Tags:        []string{"broker"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[BrokerStatusData], error) {
		if err := s.options.Broker.Stop(ctx, true); err != nil {
			return nil, mapBrokerError(err)
		}
		st := s.options.Broker.GetStatus(ctx)
		return respond(brokerStatusData(st)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-broker",
		Method:      http.MethodPost,
		Path:        "/api/broker/restart",
		Summary:     "Restart Broker",
		Description: "Stop then start the broadcast server",
		Tags:        []string{"broker"},
		Errors:      []int{401, 500, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[BrokerStatusData], error) {
		if err := s.options.Broker.Restart(ctx, true); err != nil {
			return nil, mapBrokerError(err)
		}
		st := s.options.Broker.GetStatus(ctx)
		return respond(brokerStatusData(st)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "configure-broker",
		Method:      http.MethodPost,
		Path:        "/api/broker/configure",
		Summary:     "Configure Broker",
		Description: "Edit fields of the broker XML configuration in place. Restarts the broker only when it is running and was not manually stopped.",
		Tags:        []string{"broker"},
		Errors:      []int{400, 401, 500, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		Body struct {
			Port           *int    `json:"port,omitempty" example:"8000" doc:"New listen port"`
			Hostname       *string `json:"hostname,omitempty" doc:"New hostname"`
			SourcePassword *string `json:"sourcePassword,omitempty" doc:"New source password"`
			AdminPassword  *string `json:"adminPassword,omitempty" doc:"New admin password"`
			MaxListeners   *int    `json:"maxListeners,omitempty" doc:"New client limit"`
			MaxSources     *int    `json:"maxSources,omitempty" doc:"New source limit"`
		}
	}) (*Response[BrokerStatusData], error) {
		changes := broker.ConfigChanges{
			Port:           input.Body.Port,
			Hostname:       input.Body.Hostname,
			SourcePassword: input.Body.SourcePassword,
			AdminPassword:  input.Body.AdminPassword,
			MaxListeners:   input.Body.MaxListeners,
			MaxSources:     input.Body.MaxSources,
		}
		if err := s.options.Broker.Configure(ctx, changes); err != nil {
			return nil, mapBrokerError(err)
		}
		st := s.options.Broker.GetStatus(ctx)
		return respond(brokerStatusData(st)), nil
	})
}

func brokerStatusData(st broker.Status) BrokerStatusData {
	return BrokerStatusData{
		State:        string(st.State),
		Port:         st.Port,
		Hostname:     st.Hostname,
		MaxListeners: st.MaxListeners,
		MaxSources:   st.MaxSources,
		PID:          st.PID,
		ConfigPath:   st.ConfigPath,
		ExePath:      st.ExePath,
		Stats:        st.Stats,
	}
}

// mapBrokerError maps supervisor errors to the envelope. Start
// failures carry a diagnosis; everything else is generic.
func mapBrokerError(err error) error {
	var startErr *broker.StartError
	if errors.As(err, &startErr) {
		return diagnosisError(http.StatusBadGateway, startErr.Diagnosis, startErr.Error())
	}
	var notFound *broker.NotFoundError
	if errors.As(err, &notFound) {
		return diagnosisError(http.StatusBadGateway, notFound.Diagnosis, notFound.Error())
	}
	return newErrorEnvelope(http.StatusInternalServerError, "generic",
		"Broker operation failed", err.Error())
}
