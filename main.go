package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/camunit/cmd"
	"github.com/smazurov/camunit/internal/api"
	"github.com/smazurov/camunit/internal/config"
	"github.com/smazurov/camunit/internal/events"
	"github.com/smazurov/camunit/internal/logging"
	"github.com/smazurov/camunit/internal/metrics/collectors"
	"github.com/smazurov/camunit/internal/metrics/exporters"
	"github.com/smazurov/camunit/internal/scheduler"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8091" toml:"server.port" env:"SERVER_PORT"`

	// Capture settings
	PresetsFile       string `help:"Control presets file" default:"presets.toml" toml:"capture.presets_file" env:"CAPTURE_PRESETS_FILE"`
	PollInterval      string `help:"Longest scheduler poll wait" default:"100ms" toml:"capture.poll_interval" env:"CAPTURE_POLL_INTERVAL"`
	FormatInterval    string `help:"How often to check inputs for format changes" default:"1s" toml:"capture.format_check_interval" env:"CAPTURE_FORMAT_CHECK_INTERVAL"`
	HotplugEnabled    bool   `help:"Watch for device hotplug" default:"true" toml:"capture.hotplug" env:"CAPTURE_HOTPLUG"`
	MetricsPrometheus bool   `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsSSE        bool   `help:"Publish unit metrics to /api/metrics" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture   string `help:"Capture unit logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingV4L2      string `help:"V4L2 backend logging level" default:"info" toml:"logging.v4l2" env:"LOGGING_V4L2"`
	LoggingIIDC      string `help:"IIDC backend logging level" default:"info" toml:"logging.iidc" env:"LOGGING_IIDC"`
	LoggingDevices   string `help:"Devices logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingScheduler string `help:"Scheduler logging level" default:"info" toml:"logging.scheduler" env:"LOGGING_SCHEDULER"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingConfig    string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"capture":   opts.LoggingCapture,
				"v4l2":      opts.LoggingV4L2,
				"iidc":      opts.LoggingIIDC,
				"devices":   opts.LoggingDevices,
				"scheduler": opts.LoggingScheduler,
				"api":       opts.LoggingAPI,
				"config":    opts.LoggingConfig,
			},
		})
		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()

		var logSeq atomic.Uint64
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        logSeq.Add(1),
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		registry := cmd.NewRegistry()
		units := scheduler.New(registry,
			scheduler.WithLogger(logging.GetLogger("scheduler")),
			scheduler.WithUnitLogger(logging.GetLogger("capture")),
			scheduler.WithPublisher(eventBus),
			scheduler.WithPollInterval(parseDuration(opts.PollInterval, scheduler.DefaultPollInterval)),
			scheduler.WithFormatCheckInterval(parseDuration(opts.FormatInterval, scheduler.DefaultFormatCheckInterval)),
		)

		presetsWatcher := config.NewConfigWatcher(opts.PresetsFile, config.LoadPresets, logging.GetLogger("config"),
			config.WithErrorHandler[config.Presets](func(err error) {
				logger.Warn("Failed to reload presets", "file", opts.PresetsFile, "error", err)
			}))
		presetsWatcher.OnReload(units.SetPresets)

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Scheduler:    units,
			Devices:      registry,
			EventBus:     eventBus,
		}
		if opts.MetricsPrometheus {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)
		registry.SetBroadcaster(server)

		unitCollector := collectors.NewUnitCollector(units)
		var sseExporter *exporters.SSEExporter
		if opts.MetricsSSE {
			sseExporter = exporters.NewSSEExporter(eventBus)
		}

		ctx, cancel := context.WithCancel(context.Background())
		schedulerDone := make(chan struct{})

		hooks.OnStart(func() {
			if _, err := registry.Refresh(ctx); err != nil {
				logger.Warn("Initial device discovery incomplete", "error", err)
			}
			logger.Info("Devices discovered", "count", len(registry.Devices()), "drivers", registry.Drivers())

			if err := presetsWatcher.Reload(); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warn("Failed to load presets", "file", opts.PresetsFile, "error", err)
			}
			if err := presetsWatcher.Start(); err != nil {
				logger.Warn("Presets hot reload disabled", "file", opts.PresetsFile, "error", err)
			}

			go func() {
				defer close(schedulerDone)
				if err := units.Run(ctx); err != nil {
					logger.Error("Scheduler stopped", "error", err)
				}
			}()

			if opts.HotplugEnabled {
				go func() {
					if err := registry.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Warn("Hotplug monitoring stopped", "error", err)
					}
				}()
			}

			if err := unitCollector.Start(ctx); err != nil {
				logger.Warn("Failed to start unit metrics collector", "error", err)
			}
			if sseExporter != nil {
				sseExporter.Start(ctx)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Units are closed by the scheduler on its way out.
			cancel()
			select {
			case <-schedulerDone:
			case <-time.After(5 * time.Second):
				logger.Warn("Scheduler did not stop in time")
			}

			if sseExporter != nil {
				sseExporter.Stop()
			}
			if err := unitCollector.Stop(); err != nil {
				logger.Warn("Error stopping unit metrics collector", "error", err)
			}
			if err := presetsWatcher.Stop(); err != nil {
				logger.Warn("Error stopping presets watcher", "error", err)
			}
		})
	})

	root := cli.Root()
	root.Use = "camunit"
	root.Short = "Camera capture service for V4L2 and IIDC devices"
	root.AddCommand(
		cmd.CreateDevicesCmd(),
		cmd.CreateProbeCmd(),
		cmd.CreateCaptureCmd(),
		cmd.CreateControlCmd(),
		cmd.CreateVersionCmd(),
	)

	// Run the CLI
	cli.Run()
}
