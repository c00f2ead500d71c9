package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vr2osc/internal/actions"
	"vr2osc/internal/bridge"
	"vr2osc/internal/input"
	"vr2osc/internal/monitor"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bridge",
	Long: `Loads the action sets, writes the action manifest, then polls the input
source at poll_rate and sends one OSC bundle per tick that produced messages.
Samples arrive over the IPC socket and from configured evdev devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFromFlags(cmd)
		if err != nil {
			return err
		}
		logger := loggerFor(os.Stdout, cfg.Logging)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runBridge(ctx, cfg, logger)
	},
}

func init() {
	f := runCmd.Flags()
	f.String("action-sets", "", "Directory of action-set documents")
	f.Int("poll-rate", 0, "Ticks per second")
	f.String("host", "", "Destination host")
	f.Int("port", 0, "Destination UDP port")
	f.String("manifest-path", "", "Where to write the action manifest")
	f.String("ipc-socket", "", "Unix domain socket path for IPC")
	f.Bool("no-ipc", false, "Disable the IPC socket")
	f.StringSlice("evdev-device", nil, "Linux input device (repeatable)")
	f.String("http-listen", "", "Listen address for metrics and monitor (e.g. 127.0.0.1:9101)")

	rootCmd.AddCommand(runCmd)
}

// runBridge wires every component for cfg and blocks until ctx is canceled
// or one of them fails.
func runBridge(ctx context.Context, cfg Config, logger *slog.Logger) error {
	groups, err := actions.LoadDir(cfg.ActionSetsDir())
	if err != nil {
		return err
	}
	logger.Info("action sets loaded", "dir", cfg.ActionSetsDir(), "groups", len(groups))

	var manifest bytes.Buffer
	if err := actions.WriteManifest(&manifest, groups); err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	manifestPath := cfg.ManifestFile()
	if err := os.WriteFile(manifestPath, manifest.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	logger.Info("action manifest written", "path", manifestPath)

	store := input.NewStore(groups)

	var binder *input.Binder
	if len(cfg.Evdev.Devices) > 0 {
		if binder, err = input.NewBinder(store, cfg.Evdev.Bindings); err != nil {
			return err
		}
	}

	sink, err := bridge.NewUDPSink(cfg.DestinationHost, cfg.DestinationPort)
	if err != nil {
		return err
	}
	defer sink.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := bridge.NewMetrics(reg)

	driverCfg := bridge.DriverConfig{
		Logger:  logger,
		Metrics: metrics,
		Addr:    sink.Addr(),
	}

	var mon *monitor.Server
	if cfg.HTTP.Listen != "" {
		if mon, err = monitor.NewServer(logger, groups, monitor.HubConfig{}); err != nil {
			return err
		}
		driverCfg.OnSend = mon.Publish
	}

	driver, err := bridge.NewDriver(store, sink, groups, driverCfg)
	if err != nil {
		return err
	}

	logger.Info("starting vr2osc",
		"version", version,
		"destination", sink.Addr(),
		"poll_rate", cfg.PollRate,
		"actions", len(driver.States()),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return driver.Run(ctx, cfg.Interval())
	})

	if cfg.IPC.Enabled {
		g.Go(func() error {
			return input.ServeIPC(ctx, ExpandPath(cfg.IPC.SocketPath), store, logger)
		})
	}

	if binder != nil {
		g.Go(func() error {
			return input.ReadDevices(ctx, cfg.Evdev.Devices, binder, logger)
		})
	}

	if mon != nil {
		g.Go(func() error {
			mon.Hub().Run(ctx)
			return nil
		})
		var ws http.Handler = mon
		g.Go(func() error {
			return runHTTPServer(ctx, cfg.HTTP.Listen, newRouter(reg, ws, manifest.Bytes()), logger)
		})
	}

	err = g.Wait()
	logger.Info("vr2osc stopped")
	return err
}
