package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/audionode/internal/broker"
	"github.com/smazurov/audionode/internal/codecs"
	"github.com/smazurov/audionode/internal/config"
	"github.com/smazurov/audionode/internal/devices"
	"github.com/smazurov/audionode/internal/encoder"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/streams"
	"github.com/smazurov/audionode/internal/streams/store"
)

// restartDelay spaces encoder respawns after a crash or failed start.
const restartDelay = 3 * time.Second

// CreateStreamCmd creates the stream command: one stream's encoder in
// the foreground, restarted after crashes, reloaded when its definition
// in streams.json changes. Meant for running streams as individual
// systemd units and for debugging encoder behavior without the daemon.
func CreateStreamCmd() *cobra.Command {
	var dataDir string
	var ffmpegPath string
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "stream [stream-id]",
		Short: "Run a single stream's encoder in the foreground",
		Long: `Spawns the ffmpeg encoder for one stream and pushes it into the local broker. ` +
			`The encoder restarts after a crash; edits to streams.json restart it with fresh ` +
			`settings, and removing the stream shuts it down.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			os.Exit(runStream(args[0], dataDir, ffmpegPath, logJSON))
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", ".", "Directory holding streams.json and the broker cache")
	cmd.Flags().StringVar(&ffmpegPath, "ffmpeg-path", "ffmpeg", "Path to the ffmpeg binary")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}

func runStream(streamID, dataDir, ffmpegPath string, logJSON bool) int {
	loggingConfig := logging.Config{Level: "info", Format: "text"}
	if logJSON {
		loggingConfig.Format = "json"
	}
	logging.Initialize(loggingConfig)
	logger := logging.GetLogger("stream").With("stream_id", streamID)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	storePath := filepath.Join(dataDir, "streams.json")
	st := store.New(storePath)
	if err := st.Load(); err != nil {
		logger.Error("Failed to load stream definitions", "error", err, "path", storePath)
		return 1
	}
	def, ok := st.Get(streamID)
	if !ok {
		logger.Error("Stream not found")
		return 1
	}

	bus := events.New()
	supervisor := broker.NewSupervisor(dataDir, bus)
	if err := supervisor.Initialize(ctx); err != nil {
		logger.Error("Broker detection failed", "error", err)
		return 1
	}
	defer supervisor.Close()

	var selector *codecs.Selector
	if results, err := codecs.LoadResults(filepath.Join(dataDir, "validated_codecs.toml")); err == nil {
		selector = codecs.NewSelector(results)
	} else {
		logger.Warn("No codec validation results, trying every encoder", "error", err)
		selector = codecs.NewSelector(nil)
	}

	r := &streamRunner{
		id:         streamID,
		def:        def,
		ffmpegPath: ffmpegPath,
		supervisor: supervisor,
		selector:   selector,
		resolver:   devices.NewService(ffmpegPath, bus),
		logger:     logger,
		reload:     make(chan streamReload, 1),
	}

	// Watch the definitions file: an edit restarts the encoder with
	// fresh settings, removal shuts it down.
	loader := func(path string) ([]streams.Stream, error) {
		fresh := store.New(path)
		if err := fresh.Load(); err != nil {
			return nil, err
		}
		return fresh.List(), nil
	}
	watcher := config.NewConfigWatcher(storePath, loader, logger)
	watcher.OnReload(r.onDefinitions)
	if err := watcher.Start(); err != nil {
		logger.Warn("Failed to watch stream definitions, hot-reload disabled", "error", err)
	} else {
		defer func() { _ = watcher.Stop() }()
	}

	exitCode := r.run(ctx)
	logger.Info("Stream command exiting", "exit_code", exitCode)
	return exitCode
}

// streamReload is a pending definition change.
type streamReload struct {
	def     streams.Stream
	removed bool
}

type streamRunner struct {
	id         string
	def        streams.Stream
	ffmpegPath string
	supervisor *broker.Supervisor
	selector   *codecs.Selector
	resolver   *devices.Service
	logger     *slog.Logger
	reload     chan streamReload
}

// onDefinitions runs on every streams.json reload.
func (r *streamRunner) onDefinitions(defs []streams.Stream) {
	for _, d := range defs {
		if d.ID != r.id {
			continue
		}
		if d == r.def {
			return
		}
		r.push(streamReload{def: d})
		return
	}
	r.push(streamReload{removed: true})
}

// push replaces any pending reload with the newer one.
func (r *streamRunner) push(ev streamReload) {
	select {
	case <-r.reload:
	default:
	}
	r.reload <- ev
}

func (r *streamRunner) run(ctx context.Context) int {
	for {
		proc, err := r.spawn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			r.logger.Error("Encoder start failed", "error", err)
			if !r.pause(ctx) {
				return 0
			}
			continue
		}
		r.logger.Info("Encoder running",
			"encoder", proc.Codec().Encoder, "pid", proc.PID())

		select {
		case <-ctx.Done():
			_ = proc.Stop()
			<-proc.Done()
			return 0

		case ev := <-r.reload:
			if ev.removed {
				r.logger.Warn("Stream removed from definitions, shutting down")
				_ = proc.Stop()
				<-proc.Done()
				return 0
			}
			r.logger.Info("Definition changed, restarting encoder")
			r.def = ev.def
			_ = proc.Stop()
			<-proc.Done()

		case info := <-proc.Done():
			r.logger.Warn("Encoder exited, restarting", "exit_code", info.Code)
			if !r.pause(ctx) {
				return 0
			}
		}
	}
}

func (r *streamRunner) spawn(ctx context.Context) (*encoder.Process, error) {
	spec := encoder.Spec{
		StreamID:    r.def.ID,
		InputFile:   r.def.InputFilePath,
		Format:      r.def.Format,
		BitrateKbps: r.def.BitrateKbps,
		SampleRate:  r.def.SampleRate,
		Channels:    r.def.Channels,
	}
	if r.def.DeviceID != "" {
		backendName, err := r.resolver.ResolveBackendName(ctx, r.def.DeviceID)
		if err != nil {
			return nil, err
		}
		spec.BackendName = backendName
		spec.Backend = devices.DefaultBackend()
	}

	// The broker port always comes from the parsed config at spawn
	// time, never from a cached constant.
	cfg := r.supervisor.Snapshot()
	params := encoder.BrokerParams{Port: cfg.Port, SourcePassword: cfg.SourcePassword}

	proc := encoder.New(r.ffmpegPath, spec, r.def.DeviceID, params, r.selector, nil)
	if err := proc.Start(ctx); err != nil {
		return nil, err
	}
	return proc, nil
}

func (r *streamRunner) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(restartDelay):
		return true
	}
}
