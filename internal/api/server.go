// Package api is the admin-facing HTTP surface: a huma v2 API with
// OpenAPI docs, SSE event and log streams, and the network-origin
// guard that keeps mutating operations on loopback.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/audionode/internal/auth"
	"github.com/smazurov/audionode/internal/broker"
	"github.com/smazurov/audionode/internal/codecs"
	"github.com/smazurov/audionode/internal/devices"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/health"
	"github.com/smazurov/audionode/internal/led"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/streams"
	"github.com/smazurov/audionode/internal/updater"
)

// StreamService is the slice of the stream manager the API consumes.
type StreamService interface {
	Create(ctx context.Context, params streams.CreateParams) (streams.Stream, error)
	Get(id string) (streams.Stream, streams.StreamStats, error)
	List() []streams.Stream
	Stats() []streams.StreamStats
	Update(ctx context.Context, id string, patch streams.UpdateParams) (streams.Stream, error)
	Delete(ctx context.Context, id string) error
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	StartAllStopped(ctx context.Context) []streams.BatchResult
	StopAll(ctx context.Context) []streams.BatchResult
	Reorder(ctx context.Context, ids []string) error
}

// BrokerService is the slice of the broker supervisor the API consumes.
type BrokerService interface {
	GetStatus(ctx context.Context) broker.Status
	Start(ctx context.Context, manual bool) error
	Stop(ctx context.Context, manual bool) error
	Restart(ctx context.Context, manual bool) error
	Configure(ctx context.Context, changes broker.ConfigChanges) error
}

// DeviceLister enumerates capture devices.
type DeviceLister interface {
	Enumerate(ctx context.Context, refresh bool) ([]devices.Device, error)
}

// HealthSource exposes the latest probe report.
type HealthSource interface {
	Last() health.Report
}

// Options wires the API server's collaborators.
type Options struct {
	Streams         StreamService
	Broker          BrokerService
	Devices         DeviceLister
	Health          HealthSource
	Auth            *auth.Service
	UpdateService   updater.Service
	LEDController   led.Controller
	EventBus        *events.Bus
	CodecValidation *codecs.ValidationResults

	// PrometheusHandler serves GET /metrics when set.
	PrometheusHandler http.Handler

	// Listener handles the public LAN surface (player pages, the audio
	// relay). Mounted under the same mux so one port serves everything.
	Listener http.Handler

	// Port is the HTTP port the server binds, used by the guard when
	// redirecting same-host requests to localhost.
	Port int
}

// Server is the admin API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	logger     *slog.Logger
}

// NewServer builds the huma API, registers every route, and mounts the
// public listener surface and metrics handler on the shared mux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("Audionode API", "1.0.0")
	config.Info.Description = "Multi-channel audio broadcasting control API"
	// Relative paths in the OpenAPI doc work from any host.
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth":  {Type: "http", Scheme: "basic"},
		"bearerAuth": {Type: "http", Scheme: "bearer"},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		logger:  logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.Auth != nil && opts.Auth.Enabled() {
		api.UseMiddleware(server.authMiddleware())
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()

	// Everything outside /api and /metrics is the public listener
	// surface: player pages, static assets, /listen/{id}.
	if opts.Listener != nil {
		mux.Handle("/", opts.Listener)
	}

	return server
}

// Handler returns the full HTTP handler, wrapped by the admin guard.
func (s *Server) Handler() http.Handler {
	return NewAdminGuard(s.mux, s.options.Port)
}

// GetAPI returns the huma API instance, used by tests.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves HTTP on addr until Stop or a listener error.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the HTTP server without draining: admin connections are
// short-lived and listener relays end when the encoders stop.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes sets up all admin endpoints.
func (s *Server) registerRoutes() {
	s.registerStreamRoutes()
	s.registerBrokerRoutes()
	s.registerDeviceRoutes()
	s.registerCodecRoutes()
	s.registerAuthRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
	s.registerUpdateRoutes()
	s.registerLEDRoutes()
}

// withAuth marks an operation as requiring credentials when auth is
// configured.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
		{"bearerAuth": {}},
	}
}
