package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/keyglow/internal/config"
	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/events"
	"github.com/alexisbeaulieu97/keyglow/internal/instrument"
	"github.com/alexisbeaulieu97/keyglow/internal/ipc"
	"github.com/alexisbeaulieu97/keyglow/internal/logger"
	"github.com/alexisbeaulieu97/keyglow/internal/manager"
	"github.com/alexisbeaulieu97/keyglow/internal/scheduler"
)

// stopGrace bounds device shutdown once the daemon was asked to exit.
const stopGrace = 10 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the device manager daemon",
		Long: `Discover every lighting backend, initialize the enabled devices and serve
the control and interface sockets until interrupted or asked to shut down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd, flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, app, device.Default(), nil)
		},
	}

	return cmd
}

// runServe blocks until ctx is done or a client requests shutdown. ready,
// when non-nil, is closed once the sockets accept connections.
func runServe(ctx context.Context, app *AppContext, catalog *device.Catalog, ready chan<- struct{}) error {
	cfg := app.Config
	log := app.Logger.WithFields(map[string]any{"component": "daemon"})

	recorder, closeRecorder := buildRecorder(ctx, cfg, app.Logger)
	defer closeRecorder()

	store, err := config.OpenStore(cfg.DeviceConfig)
	if err != nil {
		return newCommandError("start the daemon", "loading "+cfg.DeviceConfig, err, "Fix or remove the device config file.")
	}

	mgr, err := manager.New(manager.Options{
		Catalog: catalog,
		Store:   store,
		Scheduler: scheduler.Options{
			UpdateTimeout:        cfg.UpdateTimeout,
			InitTimeout:          cfg.InitTimeout,
			ShutdownTimeout:      cfg.ShutdownTimeout,
			MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
			Recorder:             recorder,
			Logger:               app.Logger,
		},
		Publisher: events.NewLoggingPublisher(app.Logger),
		Logger:    app.Logger,
	})
	if err != nil {
		return err
	}

	srv, err := ipc.NewServer(ipc.Options{
		Dir:     cfg.SocketDir,
		Version: version,
		Backend: mgr,
		Logger:  app.Logger,
	})
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return newCommandError("start the daemon", "binding sockets in "+cfg.SocketDir, err, "Stop the other keyglow instance or choose another --socket-dir.")
	}
	defer srv.Close()

	if err := mgr.Start(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		return srv.Serve(runCtx)
	})
	g.Go(func() error {
		if err := mgr.Watch(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.WarnErr(err, "device config watcher stopped; external edits will be ignored")
		}
		return nil
	})
	if ready != nil {
		close(ready)
	}
	log.WithFields(map[string]any{"socket_dir": cfg.SocketDir, "device_config": store.Path()}).Info("daemon ready")

	select {
	case <-ctx.Done():
		log.Info("interrupted, shutting down")
	case <-mgr.ShutdownRequested():
		log.Info("shutdown requested by client")
	}

	// Sockets stay open until every device is down.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopGrace)
	defer stopCancel()
	_ = mgr.Stop(stopCtx)

	if err := srv.Shutdown(stopCtx); err != nil {
		log.WarnErr(err, "ipc shutdown incomplete")
	}
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("daemon stopped")
	return nil
}

// buildRecorder always logs timings at debug level and additionally exports
// them to InfluxDB when enabled. An unreachable server is not fatal.
func buildRecorder(ctx context.Context, cfg *config.Daemon, log *logger.Logger) (instrument.Recorder, func()) {
	logRec := instrument.NewLogRecorder(log)

	influx, err := instrument.ConnectInflux(ctx, influxOptions(cfg.Influx), log)
	if err != nil {
		if !errors.Is(err, instrument.ErrInfluxDisabled) {
			log.WarnErr(err, "influxdb export disabled")
		}
		return logRec, func() {}
	}
	return instrument.Multi(logRec, influx), influx.Close
}

func influxOptions(in config.Influx) instrument.InfluxOptions {
	return instrument.InfluxOptions{
		Enabled:       in.Enabled,
		URL:           in.URL,
		Token:         in.Token,
		Org:           in.Org,
		Bucket:        in.Bucket,
		BatchSize:     in.BatchSize,
		FlushInterval: in.FlushInterval,
	}
}
