package listen

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/smazurov/audionode/internal/broker"
	"github.com/smazurov/audionode/internal/health"
	"github.com/smazurov/audionode/internal/streams"
)

type fakeStreams struct {
	stats []streams.StreamStats
}

func (f *fakeStreams) Stats() []streams.StreamStats { return f.stats }

type fakeBroker struct {
	port int
}

func (f *fakeBroker) Snapshot() broker.Config { return broker.Config{Port: f.port} }

type fakeHealth struct {
	report health.Report
}

func (f *fakeHealth) Last() health.Report { return f.report }

func newTestHandler(t *testing.T, brokerPort int) *Handler {
	t.Helper()
	src := &fakeStreams{stats: []streams.StreamStats{
		{ID: "english", Name: "English", Status: streams.StatusRunning, Position: 0},
		{ID: "spanish", Name: "Spanish", Status: streams.StatusStopped, Position: 1},
	}}
	hp := &fakeHealth{report: health.Report{Overall: health.VerdictHealthy}}
	return New(src, &fakeBroker{port: brokerPort}, hp, nil, 3001)
}

// fakeBrokerServer runs a loopback HTTP server standing in for the
// broker and returns its port.
func fakeBrokerServer(t *testing.T, handler http.Handler) int {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return port
}

func TestStreamStatus(t *testing.T) {
	h := newTestHandler(t, 8000)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/streams/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Streams []publicStream `json:"streams"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Streams) != 2 {
		t.Fatalf("Got %d streams", len(body.Streams))
	}
	if body.Streams[0].ID != "english" || body.Streams[0].Status != "running" {
		t.Errorf("First stream = %+v", body.Streams[0])
	}
}

func TestSystemConfig(t *testing.T) {
	h := newTestHandler(t, 8000)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/system/config")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["port"] != float64(3001) {
		t.Errorf("port = %v, want 3001", body["port"])
	}
	if _, ok := body["address"]; !ok {
		t.Error("address field missing")
	}
}

func TestProxy_RelaysAudio(t *testing.T) {
	payload := []byte("fake-mp3-bytes-fake-mp3-bytes")
	port := fakeBrokerServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/english" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("icy-name", "English")
		w.Write(payload)
	}))

	h := newTestHandler(t, port)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/listen/english")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if icy := resp.Header.Get("icy-name"); icy != "English" {
		t.Errorf("icy-name = %q", icy)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != string(payload) {
		t.Errorf("Body = %q, want %q", body, payload)
	}
}

func TestProxy_UpstreamNotFound(t *testing.T) {
	port := fakeBrokerServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	h := newTestHandler(t, port)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/listen/ghost")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("Status = %d, want 502", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "stream-unavailable" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestProxy_BrokerDown(t *testing.T) {
	// Port 1 is never listening.
	h := newTestHandler(t, 1)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(srv.URL + "/listen/english")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(t, 8000)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d", resp.StatusCode)
	}
}
