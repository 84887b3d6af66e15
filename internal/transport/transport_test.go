package transport

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ehrlich-b/edad/internal/rpc"
)

func TestListenBindAcceptAndRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "rpc.sock")

	ln, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	disp := rpc.NewDispatcher(nil)
	disp.Register("ping", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return map[string]string{"pong": "ok"}, nil
	})

	srv := NewServer(ln, disp, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := Dial(context.Background(), sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	client := NewClient(conn)
	var result map[string]string
	if err := client.Call(context.Background(), "ping", map[string]any{}, &result); err != nil {
		t.Fatalf("call: %v", err)
	}
	if result["pong"] != "ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestListenRejectsSecondBindWhileFirstIsAlive(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "rpc.sock")

	ln1, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("first listen: %v", err)
	}
	defer ln1.Close()

	disp := rpc.NewDispatcher(nil)
	srv := NewServer(ln1, disp, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	_, err = Listen(sockPath)
	if err == nil {
		t.Fatal("expected second Listen to fail while first is live")
	}
}

func TestListenRecoversStaleSocket(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "rpc.sock")

	// Bind a raw listener and close it without unlinking its node,
	// simulating a crashed daemon that left the socket file behind.
	raw, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("raw listen: %v", err)
	}
	raw.(*net.UnixListener).SetUnlinkOnClose(false)
	raw.Close()
	if _, err := os.Stat(sockPath); err != nil {
		t.Fatalf("expected stale socket file to remain: %v", err)
	}

	ln2, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("expected stale socket recovery to succeed, got: %v", err)
	}
	ln2.Close()
}

func TestClientNotifyGetsNoResponse(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "rpc.sock")

	ln, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	called := make(chan struct{}, 1)
	disp := rpc.NewDispatcher(nil)
	disp.Register("fireAndForget", func(ctx context.Context, raw json.RawMessage) (any, error) {
		called <- struct{}{}
		return nil, nil
	})

	srv := NewServer(ln, disp, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := Dial(context.Background(), sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	client := NewClient(conn)
	if err := client.Notify("fireAndForget", map[string]any{}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("expected notification handler to run")
	}
}
