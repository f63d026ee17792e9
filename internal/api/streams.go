package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/diagnose"
	"github.com/smazurov/audionode/internal/streams"
)

// StreamView merges a stream's persisted definition with its runtime
// state for the admin UI.
type StreamView struct {
	ID            string              `json:"id" example:"english" doc:"Stream identifier (also the broker mount name)"`
	Name          string              `json:"name" example:"English" doc:"Display name"`
	DeviceID      string              `json:"deviceId,omitempty" example:"usb-microphone" doc:"Capture device slug"`
	InputFilePath string              `json:"inputFilePath,omitempty" doc:"Audio file path for file-sourced streams"`
	BitrateKbps   int                 `json:"bitrateKbps" example:"192" doc:"Output bitrate"`
	Format        string              `json:"format" example:"mp3" doc:"Output format"`
	SampleRate    int                 `json:"sampleRate" example:"44100" doc:"Output sample rate"`
	Channels      int                 `json:"channels" example:"2" doc:"Output channel count"`
	Position      int                 `json:"position" example:"0" doc:"Display order"`
	Status        string              `json:"status" example:"running" doc:"Runtime status"`
	UptimeSeconds float64             `json:"uptimeSeconds,omitempty" doc:"Seconds since the encoder started"`
	Encoder       string              `json:"encoder,omitempty" example:"libmp3lame" doc:"Active ffmpeg encoder"`
	LastError     *diagnose.Diagnosis `json:"lastError,omitempty" doc:"Diagnosis of the most recent failure"`
	NeedsRestart  bool                `json:"needsRestart,omitempty" doc:"Stream predates this process and has not been restarted yet"`
}

// StreamListData is the list payload.
type StreamListData struct {
	Streams []StreamView `json:"streams" doc:"Streams in display order"`
	Count   int          `json:"count" example:"2" doc:"Number of streams"`
}

// BatchData reports per-stream outcomes of a start-all/stop-all sweep.
type BatchData struct {
	Results []BatchItem `json:"results" doc:"Per-stream outcomes"`
}

// BatchItem is one stream's outcome in a batch operation.
type BatchItem struct {
	ID    string       `json:"id" example:"english" doc:"Stream identifier"`
	OK    bool         `json:"ok" doc:"Whether the operation succeeded"`
	Error *ErrorDetail `json:"error,omitempty" doc:"Failure detail when ok is false"`
}

// streamIDPath is the shared path parameter input.
type streamIDPath struct {
	StreamID string `path:"stream_id" example:"english" doc:"Stream identifier"`
}

func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "List Streams",
		Description: "Get all defined streams with runtime state, in display order",
		Tags:        []string{"streams"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[StreamListData], error) {
		views := s.streamViews()
		return respond(StreamListData{Streams: views, Count: len(views)}), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-stream",
		Method:        http.MethodPost,
		Path:          "/api/streams",
		Summary:       "Create Stream",
		Description:   "Define a new broadcast stream from a capture device or an audio file",
		Tags:          []string{"streams"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 409, 500},
		Security:      withAuth(),
	}, func(ctx context.Context, input *struct {
		Body struct {
			ID            string `json:"id" example:"english" doc:"Stream identifier, URL-safe, max 64 chars"`
			Name          string `json:"name" example:"English" doc:"Display name, unique case-insensitively"`
			DeviceID      string `json:"deviceId,omitempty" example:"usb-microphone" doc:"Capture device slug (exclusive with inputFilePath)"`
			InputFilePath string `json:"inputFilePath,omitempty" doc:"Audio file path (exclusive with deviceId)"`
			BitrateKbps   int    `json:"bitrateKbps,omitempty" example:"192" doc:"Output bitrate, 32-320"`
			Format        string `json:"format,omitempty" example:"mp3" doc:"Output format: mp3, aac or ogg"`
			SampleRate    int    `json:"sampleRate,omitempty" example:"44100" doc:"Output sample rate"`
			Channels      int    `json:"channels,omitempty" example:"2" doc:"Channel count: 1 or 2"`
		}
	}) (*Response[StreamView], error) {
		created, err := s.options.Streams.Create(ctx, streams.CreateParams{
			ID:            input.Body.ID,
			Name:          input.Body.Name,
			DeviceID:      input.Body.DeviceID,
			InputFilePath: input.Body.InputFilePath,
			BitrateKbps:   input.Body.BitrateKbps,
			Format:        input.Body.Format,
			SampleRate:    input.Body.SampleRate,
			Channels:      input.Body.Channels,
		})
		if err != nil {
			return nil, mapStreamError(err)
		}
		return respond(s.viewOf(created.ID)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/api/streams/{stream_id}",
		Summary:     "Get Stream",
		Description: "Get one stream's definition and runtime state",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *streamIDPath) (*Response[StreamView], error) {
		st, stats, err := s.options.Streams.Get(input.StreamID)
		if err != nil {
			return nil, mapStreamError(err)
		}
		return respond(mergeView(st, stats)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-stream",
		Method:      http.MethodPatch,
		Path:        "/api/streams/{stream_id}",
		Summary:     "Update Stream",
		Description: "Update a stream's name, source or encoding parameters. Changing the source stops a running stream.",
		Tags:        []string{"streams"},
		Errors:      []int{400, 401, 404, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		streamIDPath
		Body struct {
			Name          *string `json:"name,omitempty" doc:"New display name"`
			DeviceID      *string `json:"deviceId,omitempty" doc:"New capture device slug"`
			InputFilePath *string `json:"inputFilePath,omitempty" doc:"New audio file path"`
			BitrateKbps   *int    `json:"bitrateKbps,omitempty" doc:"New output bitrate"`
			Format        *string `json:"format,omitempty" doc:"New output format"`
			SampleRate    *int    `json:"sampleRate,omitempty" doc:"New sample rate"`
			Channels      *int    `json:"channels,omitempty" doc:"New channel count"`
		}
	}) (*Response[StreamView], error) {
		updated, err := s.options.Streams.Update(ctx, input.StreamID, streams.UpdateParams{
			Name:          input.Body.Name,
			DeviceID:      input.Body.DeviceID,
			InputFilePath: input.Body.InputFilePath,
			BitrateKbps:   input.Body.BitrateKbps,
			Format:        input.Body.Format,
			SampleRate:    input.Body.SampleRate,
			Channels:      input.Body.Channels,
		})
		if err != nil {
			return nil, mapStreamError(err)
		}
		return respond(s.viewOf(updated.ID)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-stream",
		Method:      http.MethodDelete,
		Path:        "/api/streams/{stream_id}",
		Summary:     "Delete Stream",
		Description: "Stop and remove a stream definition",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *streamIDPath) (*Response[struct{}], error) {
		if err := s.options.Streams.Delete(ctx, input.StreamID); err != nil {
			return nil, mapStreamError(err)
		}
		return respond(struct{}{}), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-stream",
		Method:      http.MethodPost,
		Path:        "/api/streams/{stream_id}/start",
		Summary:     "Start Stream",
		Description: "Start the stream's encoder. No-op when already running.",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404, 409, 500, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *streamIDPath) (*Response[StreamView], error) {
		if err := s.options.Streams.Start(ctx, input.StreamID); err != nil {
			return nil, mapStreamError(err)
		}
		return respond(s.viewOf(input.StreamID)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-stream",
		Method:      http.MethodPost,
		Path:        "/api/streams/{stream_id}/stop",
		Summary:     "Stop Stream",
		Description: "Stop the stream's encoder. No-op when already stopped.",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *streamIDPath) (*Response[StreamView], error) {
		if err := s.options.Streams.Stop(ctx, input.StreamID); err != nil {
			return nil, mapStreamError(err)
		}
		return respond(s.viewOf(input.StreamID)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-stream",
		Method:      http.MethodPost,
		Path:        "/api/streams/{stream_id}/restart",
		Summary:     "Restart Stream",
		Description: "Stop then start the stream's encoder",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404, 409, 500, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *streamIDPath) (*Response[StreamView], error) {
		if err := s.options.Streams.Restart(ctx, input.StreamID); err != nil {
			return nil, mapStreamError(err)
		}
		return respond(s.viewOf(input.StreamID)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-all-streams",
		Method:      http.MethodPost,
		Path:        "/api/streams/start-all",
		Summary:     "Start All Streams",
		Description: "Start every stopped stream, spacing the launches out",
		Tags:        []string{"streams"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[BatchData], error) {
		return respond(batchData(s.options.Streams.StartAllStopped(ctx))), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-all-streams",
		Method:      http.MethodPost,
		Path:        "/api/streams/stop-all",
		Summary:     "Stop All Streams",
		Description: "Stop every running stream, spacing the stops out",
		Tags:        []string{"streams"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[BatchData], error) {
		return respond(batchData(s.options.Streams.StopAll(ctx))), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reorder-streams",
		Method:      http.MethodPost,
		Path:        "/api/streams/reorder",
		Summary:     "Reorder Streams",
		Description: "Set the display order. The list must name every stream exactly once.",
		Tags:        []string{"streams"},
		Errors:      []int{400, 401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		Body struct {
			Order []string `json:"order" doc:"Stream identifiers in the new display order"`
		}
	}) (*Response[StreamListData], error) {
		if err := s.options.Streams.Reorder(ctx, input.Body.Order); err != nil {
			return nil, mapStreamError(err)
		}
		views := s.streamViews()
		return respond(StreamListData{Streams: views, Count: len(views)}), nil
	})
}

// streamViews joins definitions and runtime stats in display order.
func (s *Server) streamViews() []StreamView {
	defs := s.options.Streams.List()
	stats := s.options.Streams.Stats()
	byID := make(map[string]streams.StreamStats, len(stats))
	for _, st := range stats {
		byID[st.ID] = st
	}

	views := make([]StreamView, 0, len(defs))
	for _, def := range defs {
		views = append(views, mergeView(def, byID[def.ID]))
	}
	return views
}

// viewOf returns the fresh view of one stream, falling back to a bare
// id when it vanished between the operation and the read.
func (s *Server) viewOf(id string) StreamView {
	st, stats, err := s.options.Streams.Get(id)
	if err != nil {
		return StreamView{ID: id}
	}
	return mergeView(st, stats)
}

func mergeView(def streams.Stream, stats streams.StreamStats) StreamView {
	status := stats.Status
	if status == "" {
		status = streams.StatusStopped
	}
	return StreamView{
		ID:            def.ID,
		Name:          def.Name,
		DeviceID:      def.DeviceID,
		InputFilePath: def.InputFilePath,
		BitrateKbps:   def.BitrateKbps,
		Format:        string(def.Format),
		SampleRate:    def.SampleRate,
		Channels:      def.Channels,
		Position:      def.Position,
		Status:        string(status),
		UptimeSeconds: stats.Uptime,
		Encoder:       stats.Encoder,
		LastError:     stats.LastError,
		NeedsRestart:  stats.NeedsRestart,
	}
}

func batchData(results []streams.BatchResult) BatchData {
	items := make([]BatchItem, 0, len(results))
	for _, r := range results {
		item := BatchItem{ID: r.ID, OK: r.Err == nil}
		if r.Err != nil {
			if env, ok := mapStreamError(r.Err).(*ErrorEnvelope); ok {
				item.Error = &env.Detail
			}
		}
		items = append(items, item)
	}
	return BatchData{Results: items}
}
