package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/audionode/cmd"
	"github.com/smazurov/audionode/internal/api"
	"github.com/smazurov/audionode/internal/auth"
	"github.com/smazurov/audionode/internal/broker"
	"github.com/smazurov/audionode/internal/codecs"
	"github.com/smazurov/audionode/internal/config"
	"github.com/smazurov/audionode/internal/devices"
	"github.com/smazurov/audionode/internal/encoder"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/health"
	"github.com/smazurov/audionode/internal/led"
	"github.com/smazurov/audionode/internal/listen"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/metrics"
	"github.com/smazurov/audionode/internal/metrics/exporters"
	"github.com/smazurov/audionode/internal/streams"
	"github.com/smazurov/audionode/internal/streams/store"
	"github.com/smazurov/audionode/internal/updater"
	"github.com/smazurov/audionode/ui"
)

// Options for the CLI - flat structure with toml mapping. Env names
// are the unprefixed variables operators already export for the broker
// tooling.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"audionode.toml"`

	// Server settings
	Port    int    `help:"HTTP port to listen on" short:"p" default:"3001" toml:"server.port" env:"PORT"`
	DataDir string `help:"Directory for stream definitions and the broker cache" default:"." toml:"server.data_dir" env:"DATA_DIR"`

	// Encoder settings
	FFmpegPath string `help:"Path to the ffmpeg binary" default:"ffmpeg" toml:"encoder.ffmpeg_path" env:"FFMPEG_PATH"`

	// Auth settings; empty username disables admin authentication.
	AdminUsername string `help:"Admin username" toml:"auth.username" env:"ADMIN_USERNAME"`
	AdminPassword string `help:"Admin password" toml:"auth.password" env:"ADMIN_PASSWORD"`

	// Features settings
	FeaturesLEDControl bool   `help:"Enable on-air LED control" default:"false" toml:"features.led_control" env:"FEATURES_LED_CONTROL"`
	UpdateRepository   string `help:"GitHub repository for self-update" default:"smazurov/audionode" toml:"update.repository" env:"UPDATE_REPOSITORY"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOG_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOG_FORMAT"`
	LoggingStreams string `help:"Streams logging level" default:"info" toml:"logging.streams" env:"LOG_STREAMS"`
	LoggingBroker  string `help:"Broker logging level" default:"info" toml:"logging.broker" env:"LOG_BROKER"`
	LoggingEncoder string `help:"Encoder logging level" default:"info" toml:"logging.encoder" env:"LOG_ENCODER"`
	LoggingDevices string `help:"Devices logging level" default:"info" toml:"logging.devices" env:"LOG_DEVICES"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOG_API"`
	LoggingListen  string `help:"Listener surface logging level" default:"info" toml:"logging.listen" env:"LOG_LISTEN"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"streams": opts.LoggingStreams,
				"broker":  opts.LoggingBroker,
				"encoder": opts.LoggingEncoder,
				"devices": opts.LoggingDevices,
				"api":     opts.LoggingAPI,
				"listen":  opts.LoggingListen,
			},
		})
		logger := logging.GetLogger("main")

		ctx := context.Background()
		eventBus := events.New()

		// Broker first: encoders and the listener proxy read its
		// parsed config, so nothing useful runs without detection.
		supervisor := broker.NewSupervisor(opts.DataDir, eventBus)
		if err := supervisor.Initialize(ctx); err != nil {
			logger.Error("Broker detection failed", "error", err)
			os.Exit(1)
		}

		deviceService := devices.NewService(opts.FFmpegPath, eventBus)

		var validation *codecs.ValidationResults
		if results, err := codecs.LoadResults(filepath.Join(opts.DataDir, "validated_codecs.toml")); err == nil {
			validation = results
		} else if !os.IsNotExist(err) {
			logger.Warn("Ignoring unreadable codec validation results", "error", err)
		}

		streamStore := store.New(filepath.Join(opts.DataDir, "streams.json"))
		manager := streams.NewManager(streamStore, eventBus, opts.FFmpegPath,
			brokerGateway{supervisor}, deviceService, encoderProgress)
		manager.SetSelectorSource(codecs.NewSelector(validation))
		if err := manager.Initialize(ctx); err != nil {
			logger.Error("Failed to load stream definitions", "error", err)
			os.Exit(1)
		}
		eventBus.Subscribe(func(e events.StreamDeletedEvent) {
			metrics.DeleteEncoderMetrics(e.StreamID)
		})

		prober := health.NewProber(supervisor, eventBus)

		var ledManager *led.Manager
		var ledController led.Controller
		if opts.FeaturesLEDControl {
			logger.Info("LED control enabled, initializing")
			ledController = led.New(logger)
			ledManager = led.NewManager(ledController, eventBus, logger)
		}

		updateService, err := updater.NewService(&updater.Options{Repository: opts.UpdateRepository})
		if err != nil {
			logger.Warn("Update service unavailable", "error", err)
		}

		listenHandler := listen.New(manager, supervisor, prober, ui.Assets(), opts.Port)

		server := api.NewServer(&api.Options{
			Streams:           manager,
			Broker:            supervisor,
			Devices:           deviceService,
			Health:            prober,
			Auth:              auth.NewService(opts.AdminUsername, opts.AdminPassword),
			UpdateService:     updateService,
			LEDController:     ledController,
			EventBus:          eventBus,
			CodecValidation:   validation,
			PrometheusHandler: exporters.HTTPHandler(),
			Listener:          listenHandler.Routes(),
			Port:              opts.Port,
		})

		var stopHotplug func()
		var stopSampler context.CancelFunc

		hooks.OnStart(func() {
			prober.Start(ctx)

			if ledManager != nil {
				ledManager.Start()
			}

			if unwatch, watchErr := deviceService.StartHotplugWatch(ctx); watchErr != nil {
				logger.Debug("Hotplug watch unavailable", "error", watchErr)
			} else {
				stopHotplug = unwatch
			}

			var samplerCtx context.Context
			samplerCtx, stopSampler = context.WithCancel(ctx)
			go sampleMetrics(samplerCtx, supervisor, manager)

			addr := fmt.Sprintf(":%d", opts.Port)
			logger.Info("Starting HTTP server", "addr", addr)
			if startErr := server.Start(addr); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				// Exit 1 is reserved for failures before the node is up;
				// a serve error is a runtime failure, exit 2.
				logger.Error("HTTP server failed", "error", startErr)
				os.Exit(2)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Encoders stop; the broker is an independent service and
			// stays up for the next daemon start.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			manager.Shutdown(shutdownCtx)
			cancel()

			if stopSampler != nil {
				stopSampler()
			}
			if stopHotplug != nil {
				stopHotplug()
			}
			prober.Stop()
			if ledManager != nil {
				ledManager.Stop()
			}
			supervisor.Close()
		})
	})

	root := cli.Root()
	root.Use = "audionode"
	root.AddCommand(cmd.ValidateCodecsCmd)
	root.AddCommand(cmd.CreateStreamCmd())
	root.AddCommand(cmd.DoctorCmd)

	cli.Run()
}

// brokerGateway adapts the supervisor to the stream manager's slice of
// it.
type brokerGateway struct {
	supervisor *broker.Supervisor
}

func (g brokerGateway) Running(ctx context.Context) bool {
	return g.supervisor.GetStatus(ctx).State == broker.StateRunning
}

func (g brokerGateway) SourceParams() encoder.BrokerParams {
	cfg := g.supervisor.Snapshot()
	return encoder.BrokerParams{Port: cfg.Port, SourcePassword: cfg.SourcePassword}
}

// encoderProgress feeds decoded ffmpeg stats lines into the gauges.
func encoderProgress(streamID string, p encoder.Progress) {
	metrics.SetEncoderBitrate(streamID, p.BitrateKbps)
	metrics.SetEncoderBytes(streamID, float64(p.BytesWritten))
	metrics.SetEncoderSpeed(streamID, p.Speed)
}

// sampleMetrics keeps the slow-moving gauges current: broker liveness
// and totals, per-stream encoder uptime.
func sampleMetrics(ctx context.Context, supervisor *broker.Supervisor, manager *streams.Manager) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := supervisor.GetStatus(ctx)
			metrics.SetBrokerUp(status.State == broker.StateRunning)
			if status.Stats != nil {
				metrics.SetBrokerTotals(status.Stats.Listeners, status.Stats.Sources)
			}
			for _, st := range manager.Stats() {
				if st.Status == streams.StatusRunning {
					metrics.SetEncoderUptime(st.ID, st.Uptime)
				}
			}
		}
	}
}
