package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/uvcnode/cmd"
	"github.com/smazurov/uvcnode/internal/api"
	"github.com/smazurov/uvcnode/internal/cameras"
	"github.com/smazurov/uvcnode/internal/config"
	"github.com/smazurov/uvcnode/internal/driver"
	"github.com/smazurov/uvcnode/internal/events"
	"github.com/smazurov/uvcnode/internal/led"
	"github.com/smazurov/uvcnode/internal/logging"
	"github.com/smazurov/uvcnode/internal/metrics/collectors"
	"github.com/smazurov/uvcnode/internal/metrics/exporters"
	"github.com/smazurov/uvcnode/internal/systemd"
	"github.com/smazurov/uvcnode/internal/version"

	_ "github.com/smazurov/uvcnode/internal/driver/simdriver"
	_ "github.com/smazurov/uvcnode/internal/driver/v4l2uvc"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Camera settings
	CamerasFile      string `help:"Camera definitions file" default:"cameras.toml" toml:"cameras.config_file" env:"CAMERAS_CONFIG_FILE"`
	Driver           string `help:"Capture backend (v4l2, sim)" default:"v4l2" toml:"cameras.driver" env:"CAMERAS_DRIVER"`
	LivenessWindow   string `help:"How long a camera stays available without frames" default:"3s" toml:"cameras.liveness_window" env:"CAMERAS_LIVENESS_WINDOW"`
	WatchdogInterval string `help:"How often stalled cameras are checked" default:"5s" toml:"cameras.watchdog_interval" env:"CAMERAS_WATCHDOG_INTERVAL"`
	MaxRetryDelay    string `help:"Upper bound of the reopen backoff" default:"30s" toml:"cameras.max_retry_delay" env:"CAMERAS_MAX_RETRY_DELAY"`

	// Feature settings
	HotplugEnabled bool `help:"Reopen cameras on USB hotplug events" default:"true" toml:"features.hotplug" env:"FEATURES_HOTPLUG"`
	MetricsEnabled bool `help:"Serve Prometheus metrics and the metrics stream" default:"true" toml:"features.metrics" env:"FEATURES_METRICS"`
	StatusLED      bool `help:"Show camera health on the board status LED" default:"false" toml:"features.status_led" env:"FEATURES_STATUS_LED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings; per-module levels live in the [logging] table.
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

func durationOr(logger *slog.Logger, name, value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		logger.Warn("Invalid duration, using default", "option", name, "value", value, "default", def)
		return def
	}
	return d
}

func main() {
	var root *cobra.Command

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		loadErr := config.LoadConfig(opts, root)

		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")
		if loadErr != nil {
			logger.Warn("Failed to load config", "error", loadErr)
		}
		logger.Info("Starting uvcnode", "version", version.String(), "driver", opts.Driver)

		eventBus := events.New()

		var logSeq atomic.Uint64
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        logSeq.Add(1),
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				CameraID:   entry.CameraID,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		drv, err := driver.Open(opts.Driver)
		if err != nil {
			logger.Error("Failed to open capture driver", "driver", opts.Driver, "available", driver.Names(), "error", err)
			os.Exit(1)
		}

		svc := cameras.New(cameras.Options{
			Driver:         drv,
			EventBus:       eventBus,
			LivenessWindow: durationOr(logger, "liveness-window", opts.LivenessWindow, 3*time.Second),
			CheckInterval:  durationOr(logger, "watchdog-interval", opts.WatchdogInterval, cameras.DefaultCheckInterval),
			MaxRetryDelay:  durationOr(logger, "max-retry-delay", opts.MaxRetryDelay, cameras.DefaultMaxRetryDelay),
		})

		// The store serves API edits; the watcher picks up edits made to
		// the file directly, including the ones the store writes.
		store := config.NewCameraStore(opts.CamerasFile)

		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))

		watcher := config.NewConfigWatcher(opts.CamerasFile, config.LoadCameras, logging.GetLogger("config"),
			config.WithErrorHandler[[]config.CameraSpec](func(err error) {
				notifier.Status(fmt.Sprintf("%s rejected, keeping previous cameras: %v", opts.CamerasFile, err))
			}))
		watcher.OnReload(func(specs []config.CameraSpec) {
			if err := store.Load(); err != nil {
				logger.Warn("Failed to reload camera store", "error", err)
			}
			if err := svc.Apply(specs); err != nil {
				logger.Warn("Some cameras failed to apply", "error", err)
			}
			notifier.Status(fmt.Sprintf("%d cameras configured", len(specs)))
		})

		unsubscribeHotplug := eventBus.Subscribe(svc.HandleHotplug)

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Cameras:      svc,
			Store:        store,
			EventBus:     eventBus,
			DriverName:   opts.Driver,
		}

		var collector *collectors.CameraCollector
		var sseExporter *exporters.SSEExporter
		if opts.MetricsEnabled {
			collector = collectors.NewCameraCollector(svc, collectors.DefaultInterval)
			sseExporter = exporters.NewSSEExporter(eventBus)
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}

		var ledManager *led.Manager
		if opts.StatusLED {
			ledLogger := logging.GetLogger("led")
			ledManager = led.NewManager(led.New(ledLogger), eventBus, ledLogger)
		}

		server := api.NewServer(apiOpts)
		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if ledManager != nil {
				ledManager.Start()
			}
			if err := store.Load(); err != nil {
				logger.Warn("Failed to load cameras", "file", opts.CamerasFile, "error", err)
			}
			if err := svc.Apply(store.List()); err != nil {
				logger.Warn("Some cameras failed to open", "error", err)
			}

			if err := watcher.Start(); err != nil {
				logger.Warn("Failed to watch cameras file", "file", opts.CamerasFile, "error", err)
			}
			go func() {
				if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Camera watchdog stopped", "error", err)
				}
			}()
			if opts.HotplugEnabled {
				startHotplug(ctx, eventBus, logging.GetLogger("hotplug"))
			}
			if collector != nil {
				collector.Start(ctx)
				sseExporter.Start(ctx)
			}

			// Taking the service lock proves the watchdog and API are not wedged.
			go notifier.RunWatchdog(ctx, func() bool {
				_ = svc.List()
				return true
			})
			notifier.Status(fmt.Sprintf("%d cameras configured", len(svc.List())))
			notifier.Ready()

			if err := server.Start(opts.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			if err := server.Stop(); err != nil {
				logger.Error("Error stopping HTTP server", "error", err)
			}

			unsubscribeHotplug()
			cancel()
			if err := watcher.Stop(); err != nil {
				logger.Warn("Error stopping cameras watcher", "error", err)
			}
			if collector != nil {
				collector.Stop()
				sseExporter.Stop()
			}
			if ledManager != nil {
				ledManager.Stop()
			}

			// Release the devices after the HTTP server stops handing out frames.
			svc.CloseAll()
		})
	})

	root = cli.Root()
	root.Use = "uvcnode"
	root.Version = version.String()
	root.AddCommand(cmd.CreateScanCmd())
	root.AddCommand(cmd.CreateCaptureCmd())

	cli.Run()
}
