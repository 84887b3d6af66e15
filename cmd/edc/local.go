package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/edad/internal/config"
	"github.com/ehrlich-b/edad/internal/daemon"
	"github.com/ehrlich-b/edad/internal/logger"
	"github.com/ehrlich-b/edad/internal/registry"
	"github.com/ehrlich-b/edad/internal/rpc"
	"github.com/ehrlich-b/edad/internal/snapshot"
	"github.com/ehrlich-b/edad/internal/telemetry"
)

// rpcCaller is the subset of transport.Client that runOpen needs; it is
// also satisfied by localClient so --no-socket can reuse the same call
// sites without a real connection.
type rpcCaller interface {
	Call(ctx context.Context, method string, params any, result any) error
	Close() error
}

// localClient dispatches requests directly against an in-process
// dispatcher, skipping the socket entirely. It exists for --no-socket,
// where a standalone editor invocation shouldn't require a resident
// daemon to already be running.
type localClient struct {
	dispatcher *rpc.Dispatcher
	telem      *telemetry.Recorder
	closeFn    func()
	nextID     int64
}

func (c *localClient) Call(ctx context.Context, method string, params any, result any) error {
	id := atomic.AddInt64(&c.nextID, 1)
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("local client: marshal params: %w", err)
	}
	idRaw, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("local client: marshal id: %w", err)
	}

	start := time.Now()
	resp := c.dispatcher.Dispatch(ctx, rpc.Request{JSONRPC: "2.0", ID: idRaw, Method: method, Params: paramsRaw})
	if c.telem != nil {
		c.telem.Observe(method, time.Since(start), resp.Error != nil)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	resultRaw, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("local client: re-marshal result: %w", err)
	}
	return json.Unmarshal(resultRaw, result)
}

func (c *localClient) Close() error {
	if c.closeFn != nil {
		c.closeFn()
	}
	return nil
}

// newLocalClient builds an in-process daemon.Service and dispatcher with
// the same wiring as the edad entrypoint, for --no-socket mode.
func newLocalClient() (*localClient, error) {
	appDir, err := config.AppSupportDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(appDir, 0o700); err != nil {
		return nil, err
	}

	mgr := config.NewManager()
	cwd, _ := os.Getwd()
	if err := mgr.Load(config.ConfigPath(appDir), cwd); err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	if err := logger.Init(cfg.LogLevel, ""); err != nil {
		return nil, err
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
		return nil, err
	}
	telem, err := telemetry.NewRecorder(config.TelemetryDir(appDir), "", log)
	if err != nil {
		reg.Close()
		return nil, err
	}

	svc := daemon.New(cfg, store, nil, reg, log)
	dispatcher := rpc.NewDispatcher(log)
	daemon.RegisterHandlers(dispatcher, svc)

	closeFn := func() {
		svc.Shutdown()
		telem.Close()
		reg.Close()
	}

	return &localClient{dispatcher: dispatcher, telem: telem, closeFn: closeFn}, nil
}
