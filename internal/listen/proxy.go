package listen

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// chunkSize is the relay copy unit. Paired with writeDeadline it
// bounds how long a stalled listener can hold a connection: a client
// that cannot take one chunk per deadline window is dropped.
const (
	chunkSize     = 32 * 1024
	writeDeadline = 30 * time.Second
)

// mediaHeaders are forwarded from the broker to the listener.
var mediaHeaders = []string{
	"Content-Type",
	"Cache-Control",
	"icy-name",
	"icy-description",
	"icy-genre",
	"icy-br",
	"icy-sr",
	"icy-pub",
	"icy-metaint",
}

var relayClient = &http.Client{
	Transport: &http.Transport{
		DialContext:           (&net.Dialer{Timeout: dialTimeout}).DialContext,
		ResponseHeaderTimeout: headerTimeout,
		// One long-lived connection per listener; pooling idle relay
		// connections to the broker buys nothing.
		DisableKeepAlives: true,
	},
}

// proxyStream relays one mount from the co-located broker to a
// listener. The relay always dials loopback: the broker and this
// process share a host by design.
func (h *Handler) proxyStream(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamId")
	cfg := h.broker.Snapshot()

	upstreamURL := fmt.Sprintf("http://127.0.0.1:%d/%s", cfg.Port, streamID)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstreamURL, nil)
	if err != nil {
		h.unavailable(w, streamID, err)
		return
	}
	// Pass through ICY metadata negotiation from players that ask.
	if v := r.Header.Get("Icy-MetaData"); v != "" {
		req.Header.Set("Icy-MetaData", v)
	}

	resp, err := relayClient.Do(req)
	if err != nil {
		h.unavailable(w, streamID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.unavailable(w, streamID, fmt.Errorf("broker returned %d", resp.StatusCode))
		return
	}

	for _, name := range mediaHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "audio/mpeg")
	}
	w.WriteHeader(http.StatusOK)

	h.logger.Info("Listener connected", "stream_id", streamID, "remote", remoteHost(r))
	n := h.relay(w, resp.Body)
	h.logger.Info("Listener disconnected", "stream_id", streamID,
		"remote", remoteHost(r), "bytes", n)
}

// relay copies the broker's byte stream to the listener one chunk at a
// time, arming a fresh write deadline per chunk.
func (h *Handler) relay(w http.ResponseWriter, src io.Reader) int64 {
	rc := http.NewResponseController(w)
	buf := make([]byte, chunkSize)
	var total int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			_ = rc.SetWriteDeadline(time.Now().Add(writeDeadline))
			written, writeErr := w.Write(buf[:n])
			total += int64(written)
			if writeErr != nil {
				return total
			}
			_ = rc.Flush()
		}
		if readErr != nil {
			return total
		}
	}
}

// unavailable is the single listener-facing failure shape: the mount
// has no live source, the broker is down, or the id is unknown. The
// player treats them all the same way.
func (h *Handler) unavailable(w http.ResponseWriter, streamID string, err error) {
	h.logger.Debug("Stream unavailable", "stream_id", streamID, "error", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": "stream-unavailable"})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func jsonEncode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
