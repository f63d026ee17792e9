package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smazurov/audionode/internal/broker"
	"github.com/smazurov/audionode/internal/diagnose"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/health"
	"github.com/smazurov/audionode/internal/streams"
)

// stubStreams is an in-memory StreamService.
type stubStreams struct {
	defs      map[string]streams.Stream
	order     []string
	statuses  map[string]streams.Status
	createErr error
	startErr  error
}

func newStubStreams() *stubStreams {
	return &stubStreams{
		defs:     make(map[string]streams.Stream),
		statuses: make(map[string]streams.Status),
	}
}

func (s *stubStreams) Create(_ context.Context, params streams.CreateParams) (streams.Stream, error) {
	if s.createErr != nil {
		return streams.Stream{}, s.createErr
	}
	st := streams.Stream{ID: params.ID, Name: params.Name, DeviceID: params.DeviceID,
		BitrateKbps: params.BitrateKbps, Position: len(s.order)}
	s.defs[st.ID] = st
	s.order = append(s.order, st.ID)
	s.statuses[st.ID] = streams.StatusStopped
	return st, nil
}

func (s *stubStreams) Get(id string) (streams.Stream, streams.StreamStats, error) {
	st, ok := s.defs[id]
	if !ok {
		return streams.Stream{}, streams.StreamStats{},
			streams.NewStreamError(streams.ErrCodeStreamNotFound, "stream not found", nil)
	}
	return st, streams.StreamStats{ID: id, Name: st.Name, Status: s.statuses[id]}, nil
}

func (s *stubStreams) List() []streams.Stream {
	out := make([]streams.Stream, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.defs[id])
	}
	return out
}

func (s *stubStreams) Stats() []streams.StreamStats {
	out := make([]streams.StreamStats, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, streams.StreamStats{ID: id, Name: s.defs[id].Name, Status: s.statuses[id]})
	}
	return out
}

func (s *stubStreams) Update(_ context.Context, id string, patch streams.UpdateParams) (streams.Stream, error) {
	st, ok := s.defs[id]
	if !ok {
		return streams.Stream{}, streams.NewStreamError(streams.ErrCodeStreamNotFound, "stream not found", nil)
	}
	if patch.Name != nil {
		st.Name = *patch.Name
	}
	s.defs[id] = st
	return st, nil
}

func (s *stubStreams) Delete(_ context.Context, id string) error {
	if _, ok := s.defs[id]; !ok {
		return streams.NewStreamError(streams.ErrCodeStreamNotFound, "stream not found", nil)
	}
	delete(s.defs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *stubStreams) Start(_ context.Context, id string) error {
	if s.startErr != nil {
		return s.startErr
	}
	if _, ok := s.defs[id]; !ok {
		return streams.NewStreamError(streams.ErrCodeStreamNotFound, "stream not found", nil)
	}
	s.statuses[id] = streams.StatusRunning
	return nil
}

func (s *stubStreams) Stop(_ context.Context, id string) error {
	if _, ok := s.defs[id]; !ok {
		return streams.NewStreamError(streams.ErrCodeStreamNotFound, "stream not found", nil)
	}
	s.statuses[id] = streams.StatusStopped
	return nil
}

func (s *stubStreams) Restart(ctx context.Context, id string) error {
	if err := s.Stop(ctx, id); err != nil {
		return err
	}
	return s.Start(ctx, id)
}

func (s *stubStreams) StartAllStopped(ctx context.Context) []streams.BatchResult {
	var out []streams.BatchResult
	for _, id := range s.order {
		out = append(out, streams.BatchResult{ID: id, Err: s.Start(ctx, id)})
	}
	return out
}

func (s *stubStreams) StopAll(ctx context.Context) []streams.BatchResult {
	var out []streams.BatchResult
	for _, id := range s.order {
		out = append(out, streams.BatchResult{ID: id, Err: s.Stop(ctx, id)})
	}
	return out
}

func (s *stubStreams) Reorder(_ context.Context, ids []string) error {
	if len(ids) != len(s.order) {
		return streams.NewStreamError(streams.ErrCodeInvalidParams, "order must name every stream", nil)
	}
	s.order = append([]string(nil), ids...)
	return nil
}

type stubBrokerSvc struct {
	status   broker.Status
	startErr error
}

func (b *stubBrokerSvc) GetStatus(context.Context) broker.Status { return b.status }
func (b *stubBrokerSvc) Start(context.Context, bool) error       { return b.startErr }
func (b *stubBrokerSvc) Stop(context.Context, bool) error        { return nil }
func (b *stubBrokerSvc) Restart(context.Context, bool) error     { return b.startErr }
func (b *stubBrokerSvc) Configure(context.Context, broker.ConfigChanges) error {
	return nil
}

type stubHealthSvc struct{}

func (stubHealthSvc) Last() health.Report { return health.Report{Overall: health.VerdictHealthy} }

func newTestServer(t *testing.T, st *stubStreams) *httptest.Server {
	t.Helper()
	srv := NewServer(&Options{
		Streams:  st,
		Broker:   &stubBrokerSvc{status: broker.Status{State: broker.StateRunning, Port: 8000}},
		Health:   stubHealthSvc{},
		EventBus: events.New(),
		Port:     3001,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type envelopeBody struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *ErrorDetail    `json:"error"`
}

func doJSON(t *testing.T, method, url string, body any) (int, envelopeBody) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env envelopeBody
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp.StatusCode, env
}

func TestCreateAndListStreams(t *testing.T) {
	ts := newTestServer(t, newStubStreams())

	status, env := doJSON(t, http.MethodPost, ts.URL+"/api/streams", map[string]any{
		"id": "english", "name": "English", "deviceId": "usb-microphone",
	})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", status)
	}
	if !env.OK {
		t.Fatal("create envelope not ok")
	}

	status, env = doJSON(t, http.MethodGet, ts.URL+"/api/streams", nil)
	if status != http.StatusOK || !env.OK {
		t.Fatalf("list = %d ok=%v", status, env.OK)
	}
	var data StreamListData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Count != 1 || data.Streams[0].ID != "english" {
		t.Errorf("list data = %+v", data)
	}
}

func TestCreateDuplicateNameEnvelope(t *testing.T) {
	st := newStubStreams()
	st.createErr = streams.NewDiagnosedError(streams.ErrCodeDuplicateName,
		"a stream named \"English\" already exists", diagnose.NewDuplicateName("English"))
	ts := newTestServer(t, st)

	status, env := doJSON(t, http.MethodPost, ts.URL+"/api/streams", map[string]any{
		"id": "english2", "name": "english ",
	})
	if status != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", status)
	}
	if env.OK {
		t.Fatal("duplicate envelope claims ok")
	}
	if env.Error == nil || env.Error.Category != "duplicate" {
		t.Fatalf("duplicate error = %+v, want category duplicate", env.Error)
	}
	if len(env.Error.Solutions) != 0 {
		t.Errorf("duplicate error carries solutions: %v", env.Error.Solutions)
	}
}

func TestGetUnknownStreamIs404(t *testing.T) {
	ts := newTestServer(t, newStubStreams())

	status, env := doJSON(t, http.MethodGet, ts.URL+"/api/streams/ghost", nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if env.OK || env.Error == nil {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestStartBrokerUnavailableIs502(t *testing.T) {
	st := newStubStreams()
	_, err := st.Create(context.Background(), streams.CreateParams{ID: "english", Name: "English"})
	if err != nil {
		t.Fatal(err)
	}
	st.startErr = streams.NewDiagnosedError(streams.ErrCodeBrokerUnavailable,
		"broadcast server is not running", diagnose.NewBrokerUnavailable())
	ts := newTestServer(t, st)

	status, env := doJSON(t, http.MethodPost, ts.URL+"/api/streams/english/start", nil)
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", status)
	}
	if env.Error == nil || env.Error.Category != "broker-unavailable" {
		t.Fatalf("error = %+v, want broker-unavailable", env.Error)
	}
	if len(env.Error.Solutions) == 0 {
		t.Error("broker-unavailable should suggest solutions")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	st := newStubStreams()
	_, _ = st.Create(context.Background(), streams.CreateParams{ID: "english", Name: "English"})
	ts := newTestServer(t, st)

	status, env := doJSON(t, http.MethodPost, ts.URL+"/api/streams/english/start", nil)
	if status != http.StatusOK {
		t.Fatalf("start = %d", status)
	}
	var view StreamView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Status != "running" {
		t.Errorf("status after start = %q", view.Status)
	}

	status, env = doJSON(t, http.MethodPost, ts.URL+"/api/streams/english/stop", nil)
	if status != http.StatusOK {
		t.Fatalf("stop = %d", status)
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Status != "stopped" {
		t.Errorf("status after stop = %q", view.Status)
	}
}

func TestReorderValidation(t *testing.T) {
	st := newStubStreams()
	_, _ = st.Create(context.Background(), streams.CreateParams{ID: "a", Name: "A"})
	_, _ = st.Create(context.Background(), streams.CreateParams{ID: "b", Name: "B"})
	ts := newTestServer(t, st)

	status, _ := doJSON(t, http.MethodPost, ts.URL+"/api/streams/reorder", map[string]any{
		"order": []string{"b"},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("short order = %d, want 400", status)
	}

	status, env := doJSON(t, http.MethodPost, ts.URL+"/api/streams/reorder", map[string]any{
		"order": []string{"b", "a"},
	})
	if status != http.StatusOK {
		t.Fatalf("reorder = %d", status)
	}
	var data StreamListData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Streams[0].ID != "b" {
		t.Errorf("first after reorder = %q", data.Streams[0].ID)
	}
}

func TestBrokerStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, newStubStreams())

	status, env := doJSON(t, http.MethodGet, ts.URL+"/api/broker/status", nil)
	if status != http.StatusOK || !env.OK {
		t.Fatalf("broker status = %d ok=%v", status, env.OK)
	}
	var data BrokerStatusData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.State != "running" || data.Port != 8000 {
		t.Errorf("broker data = %+v", data)
	}
}
