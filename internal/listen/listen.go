// Package listen is the listener-facing HTTP surface: the public
// stream directory, the audio relay, and the small status API the
// player page polls. Everything here is reachable from the LAN; no
// admin operations live in this package.
package listen

import (
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/smazurov/audionode/internal/broker"
	"github.com/smazurov/audionode/internal/health"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/streams"
)

// StreamSource is the slice of the stream manager the listener
// surface reads.
type StreamSource interface {
	Stats() []streams.StreamStats
}

// BrokerSource exposes the parsed broker parameters.
type BrokerSource interface {
	Snapshot() broker.Config
}

// HealthSource exposes the latest probe report.
type HealthSource interface {
	Last() health.Report
}

// Handler serves the listener routes.
type Handler struct {
	streams StreamSource
	broker  BrokerSource
	health  HealthSource
	assets  http.Handler
	port    int
	logger  *slog.Logger
}

// New creates the listener surface. assets serves the static player
// pages; pass nil to disable them. port is the HTTP port this service
// itself listens on, reported to clients via /api/system/config.
func New(streamSource StreamSource, brokerSource BrokerSource, healthSource HealthSource, assets http.Handler, port int) *Handler {
	return &Handler{
		streams: streamSource,
		broker:  brokerSource,
		health:  healthSource,
		assets:  assets,
		port:    port,
		logger:  logging.GetLogger("listen"),
	}
}

// Routes builds the chi router for the listener surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Range"},
		MaxAge:         300,
	}))

	r.Get("/listen/{streamId}", h.proxyStream)
	r.Get("/api/streams/status", h.streamStatus)
	r.Get("/api/system/config", h.systemConfig)
	r.Get("/api/health", h.healthReport)

	if h.assets != nil {
		r.Get("/", h.redirectToStreams)
		r.Get("/streams", h.servePage("streams.html"))
		r.Get("/contact", h.servePage("contact.html"))
		// The admin panel page; the guard keeps it loopback-only.
		r.Get("/admin", h.servePage("admin.html"))
		r.Handle("/assets/*", h.assets)
	}
	return r
}

func (h *Handler) redirectToStreams(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/streams", http.StatusFound)
}

func (h *Handler) servePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/" + name
		h.assets.ServeHTTP(w, r2)
	}
}

// publicStream is the listener-visible subset of a stream's state.
type publicStream struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Position int    `json:"position"`
}

func (h *Handler) streamStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.streams.Stats()
	out := make([]publicStream, 0, len(stats))
	for _, s := range stats {
		out = append(out, publicStream{
			ID:       s.ID,
			Name:     s.Name,
			Status:   string(s.Status),
			Position: s.Position,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": out})
}

// systemConfig tells the player page how to reach this host from the
// LAN. The advertised address prefers a private IPv4 so phones on the
// same network get a dialable URL, not a loopback one.
func (h *Handler) systemConfig(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	writeJSON(w, http.StatusOK, map[string]any{
		"hostname": hostname,
		"address":  preferredLANAddress(),
		"port":     h.port,
	})
}

func (h *Handler) healthReport(w http.ResponseWriter, r *http.Request) {
	report := h.health.Last()
	status := http.StatusOK
	if report.Overall == health.VerdictUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// preferredLANAddress returns the first private IPv4 on an up,
// non-loopback interface, or empty when the host has none.
func preferredLANAddress() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip != nil && ip.IsPrivate() {
				return ip.String()
			}
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonEncode(w, v)
}

// keepalive values for the relay.
const (
	dialTimeout   = 5 * time.Second
	headerTimeout = 5 * time.Second
)
