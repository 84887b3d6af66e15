// Command edad is the resident editor daemon: it owns the session and
// revision-synchronization engine and serves it over a local Unix socket
// to short-lived edc launcher processes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/edad/internal/config"
	"github.com/ehrlich-b/edad/internal/daemon"
	"github.com/ehrlich-b/edad/internal/logger"
	"github.com/ehrlich-b/edad/internal/registry"
	"github.com/ehrlich-b/edad/internal/rpc"
	"github.com/ehrlich-b/edad/internal/snapshot"
	"github.com/ehrlich-b/edad/internal/telemetry"
	"github.com/ehrlich-b/edad/internal/transport"
)

func main() {
	var stdio bool
	root := &cobra.Command{
		Use:   "edad",
		Short: "edad — resident local editor daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(stdio)
		},
	}
	root.Flags().BoolVar(&stdio, "stdio", false, "serve a single session over stdin/stdout instead of the Unix socket")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "edad:", err)
		os.Exit(1)
	}
}

func run(stdio bool) error {
	appDir, err := config.AppSupportDir()
	if err != nil {
		return fmt.Errorf("resolve app support dir: %w", err)
	}
	if err := os.MkdirAll(appDir, 0o700); err != nil {
		return fmt.Errorf("create app support dir: %w", err)
	}

	mgr := config.NewManager()
	cwd, _ := os.Getwd()
	if err := mgr.Load(config.ConfigPath(appDir), cwd); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.Get()
	if cfg.SocketPath == "" {
		cfg.SocketPath = config.SocketPath(appDir)
	}
	if addr := os.Getenv("EDAD_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Log

	store := snapshot.NewStore(config.RecoveryDir(appDir), snapshot.Limits{
		TTL:           time.Duration(cfg.SnapshotTTLHours) * time.Hour,
		MaxCount:      cfg.SnapshotMaxCount,
		MaxBytes:      cfg.SnapshotMaxBytes,
		MaxEntryBytes: cfg.SnapshotMaxEntryBytes,
	})

	reg, err := registry.Open(config.RegistryPath(appDir))
	if err != nil {
		return fmt.Errorf("open session registry: %w", err)
	}
	defer reg.Close()

	telem, err := telemetry.NewRecorder(config.TelemetryDir(appDir), cfg.MetricsAddr, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer telem.Close()

	svc := daemon.New(cfg, store, nil, reg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartOrphanSweep(ctx)

	dispatcher := rpc.NewDispatcher(log)
	daemon.RegisterHandlers(dispatcher, svc)

	quit := make(chan struct{})
	svc.OnQuit(func() { close(quit) })

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	if stdio {
		return runStdio(ctx, cancel, svc, dispatcher, telem, log, sigCh, quit)
	}

	ln, err := transport.Listen(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.SocketPath, err)
	}

	srv := transport.NewServer(ln, dispatcher, telem, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx)
	}()

	log.Info("edad daemon started", "socket", cfg.SocketPath, "pid", os.Getpid())

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
		svc.Shutdown()
		cancel()
	case <-quit:
		log.Info("app.quit received, shutting down")
		cancel()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("transport server: %w", err)
		}
	}

	ln.Close()
	return nil
}

// runStdio serves a single co-launched session over stdin/stdout instead
// of the Unix socket, for editors that launch edad directly as a child
// process rather than connecting to a resident daemon.
func runStdio(ctx context.Context, cancel context.CancelFunc, svc *daemon.Service, dispatcher *rpc.Dispatcher, telem *telemetry.Recorder, log *slog.Logger, sigCh chan os.Signal, quit chan struct{}) error {
	srv := transport.NewServer(nil, dispatcher, telem, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	}()

	log.Info("edad daemon started in stdio mode", "pid", os.Getpid())

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
		svc.Shutdown()
		cancel()
	case <-quit:
		log.Info("app.quit received, shutting down")
		cancel()
	case err := <-errCh:
		svc.Shutdown()
		if err != nil {
			return fmt.Errorf("stdio server: %w", err)
		}
	}
	return nil
}
