package daemon

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ehrlich-b/edad/internal/config"
	"github.com/ehrlich-b/edad/internal/rpc"
	"github.com/ehrlich-b/edad/internal/snapshot"
)

type fakeWindow struct {
	alive   bool
	focused int
	closed  bool
}

func (w *fakeWindow) Alive() bool { return w.alive }
func (w *fakeWindow) Focus()      { w.focused++ }
func (w *fakeWindow) Close()      { w.closed = true; w.alive = false }

func newTestService(t *testing.T) (*Service, func() Window) {
	t.Helper()
	store := snapshot.NewStore(t.TempDir(), snapshot.DefaultLimits())
	cfg := config.Defaults()
	var last *fakeWindow
	factory := func(recycled Window) Window {
		last = &fakeWindow{alive: true}
		return last
	}
	svc := New(cfg, store, factory, nil, nil)
	return svc, func() Window { return last }
}

func TestOpenCreatesNewSession(t *testing.T) {
	svc, _ := newTestService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")

	info, err := svc.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if info.SessionID == "" {
		t.Fatal("expected non-empty sessionId")
	}
}

func TestOpenReusesLiveWindowForSamePath(t *testing.T) {
	svc, _ := newTestService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")

	info1, err := svc.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	info2, err := svc.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if info1.SessionID != info2.SessionID {
		t.Fatalf("expected session reuse for same path, got %s vs %s", info1.SessionID, info2.SessionID)
	}
}

func TestCloseRecyclesWindow(t *testing.T) {
	svc, lastWindow := newTestService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")

	info, err := svc.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	w := lastWindow().(*fakeWindow)
	w.alive = false

	if ok := svc.Close(info.SessionID); !ok {
		t.Fatal("expected close to succeed")
	}
	if !w.closed {
		t.Fatal("expected window to be closed")
	}

	svc.mu.Lock()
	n := len(svc.recyclePool)
	svc.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected window pooled for recycling, pool size %d", n)
	}
}

func TestShutdownFlushesDirtySessions(t *testing.T) {
	svc, _ := newTestService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")

	info, err := svc.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	sess, ok := svc.Get(info.SessionID)
	if !ok {
		t.Fatal("expected session to exist")
	}
	sess.UpdateBufferContent("unsaved edits")

	svc.Shutdown()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "unsaved edits" {
		t.Fatalf("expected shutdown to flush dirty buffer, got %q", data)
	}
}

func TestHandlersEndToEnd(t *testing.T) {
	svc, _ := newTestService(t)
	disp := rpc.NewDispatcher(nil)
	RegisterHandlers(disp, svc)

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")

	openParams, _ := json.Marshal(sessionOpenParams{Path: path})
	resp := disp.Dispatch(context.Background(), rpc.Request{
		JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "session.open", Params: openParams,
	})
	if resp.Error != nil {
		t.Fatalf("session.open failed: %+v", resp.Error)
	}
	openResult := resp.Result.(sessionOpenResult)

	saveParams, _ := json.Marshal(sessionSaveParams{SessionID: openResult.SessionID, Content: "hello"})
	resp = disp.Dispatch(context.Background(), rpc.Request{
		JSONRPC: "2.0", ID: json.RawMessage("2"), Method: "session.save", Params: saveParams,
	})
	if resp.Error != nil {
		t.Fatalf("session.save failed: %+v", resp.Error)
	}

	closeParams, _ := json.Marshal(sessionIDParams{SessionID: openResult.SessionID})
	resp = disp.Dispatch(context.Background(), rpc.Request{
		JSONRPC: "2.0", ID: json.RawMessage("3"), Method: "session.close", Params: closeParams,
	})
	if resp.Error != nil {
		t.Fatalf("session.close failed: %+v", resp.Error)
	}
}

func TestHandleSessionOpenRejectsOldProtocolVersion(t *testing.T) {
	svc, _ := newTestService(t)
	disp := rpc.NewDispatcher(nil)
	RegisterHandlers(disp, svc)

	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	params, _ := json.Marshal(map[string]any{"path": path, "protocolVersion": -1})

	resp := disp.Dispatch(context.Background(), rpc.Request{
		JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "session.open", Params: params,
	})
	if resp.Error == nil || resp.Error.Code != rpc.CodeProtocolVersion {
		t.Fatalf("expected protocol version error, got %+v", resp.Error)
	}
}

// TestHandleSessionOpenRejectsExplicitZeroProtocolVersion is spec.md §8
// Scenario E: a literal protocolVersion of 0 must be treated as "client
// declared version 0", not as "field omitted".
func TestHandleSessionOpenRejectsExplicitZeroProtocolVersion(t *testing.T) {
	svc, _ := newTestService(t)
	disp := rpc.NewDispatcher(nil)
	RegisterHandlers(disp, svc)

	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	params, _ := json.Marshal(map[string]any{"path": path, "protocolVersion": 0})

	resp := disp.Dispatch(context.Background(), rpc.Request{
		JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "session.open", Params: params,
	})
	if resp.Error == nil || resp.Error.Code != rpc.CodeProtocolVersion {
		t.Fatalf("expected protocol version error for explicit 0, got %+v", resp.Error)
	}
}

// TestHandleSessionOpenAcceptsOmittedProtocolVersion confirms that leaving
// the field out entirely (the common case for well-behaved clients that
// don't set it) is still accepted, distinguishing "absent" from "0".
func TestHandleSessionOpenAcceptsOmittedProtocolVersion(t *testing.T) {
	svc, _ := newTestService(t)
	disp := rpc.NewDispatcher(nil)
	RegisterHandlers(disp, svc)

	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	params, _ := json.Marshal(map[string]any{"path": path})

	resp := disp.Dispatch(context.Background(), rpc.Request{
		JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "session.open", Params: params,
	})
	if resp.Error != nil {
		t.Fatalf("expected omitted protocolVersion to be accepted, got %+v", resp.Error)
	}
}

func TestWaitReturnsTimeoutReason(t *testing.T) {
	svc, _ := newTestService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	info, err := svc.Open(path)
	if err != nil {
		t.Fatal(err)
	}

	disp := rpc.NewDispatcher(nil)
	RegisterHandlers(disp, svc)

	waitParams, _ := json.Marshal(map[string]any{"sessionId": info.SessionID, "timeoutMs": 20})
	start := time.Now()
	resp := disp.Dispatch(context.Background(), rpc.Request{
		JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "session.wait", Params: waitParams,
	})
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("expected wait to actually block until timeout")
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	res := resp.Result.(waitResult)
	if res.Reason != "timeout" {
		t.Fatalf("expected timeout reason, got %q", res.Reason)
	}
}
