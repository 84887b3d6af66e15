package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ehrlich-b/edad/internal/revision"
	"github.com/ehrlich-b/edad/internal/snapshot"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	store := snapshot.NewStore(t.TempDir(), snapshot.DefaultLimits())
	return New(store, nil, 0, 0, 0)
}

func TestOpenCreatesMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.md")
	s := newTestSession(t)

	info, err := s.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if info.Content != "" || info.IsDirty {
		t.Fatalf("expected empty clean buffer, got %+v", info)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to be created: %v", err)
	}
}

func TestOpenReadsExistingContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newTestSession(t)

	info, err := s.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if info.Content != "hello\n" {
		t.Fatalf("expected content read from disk, got %q", info.Content)
	}
	if info.Revision != revision.Of("hello\n") {
		t.Fatalf("unexpected revision %q", info.Revision)
	}
}

func TestOpenHonorsConfiguredMaxReadBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.md")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := snapshot.NewStore(t.TempDir(), snapshot.DefaultLimits())
	s := New(store, nil, 0, 0, 4)

	if _, err := s.Open(path); err == nil {
		t.Fatal("expected open to fail: file exceeds the configured max read bytes")
	}
}

func TestUpdateThenAutosavePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	s := newTestSession(t)
	if _, err := s.Open(path); err != nil {
		t.Fatal(err)
	}

	info := s.UpdateBufferContent("edited")
	if !info.IsDirty {
		t.Fatal("expected dirty after update")
	}

	saved, err := s.Autosave("autosave")
	if err != nil {
		t.Fatalf("autosave: %v", err)
	}
	if saved == nil || saved.IsDirty {
		t.Fatalf("expected clean after autosave, got %+v", saved)
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(onDisk) != "edited" {
		t.Fatalf("expected disk to reflect buffer, got %q", onDisk)
	}
}

func TestAutosaveNoOpWhenClean(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	s := newTestSession(t)
	if _, err := s.Open(path); err != nil {
		t.Fatal(err)
	}

	info, err := s.Autosave("autosave")
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || info.IsDirty {
		t.Fatalf("expected unchanged clean info, got %+v", info)
	}
}

func TestApplyExternalDiskChangeNoOpWhenRevisionMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	s := newTestSession(t)
	if _, err := s.Open(path); err != nil {
		t.Fatal(err)
	}

	info, err := s.ApplyExternalDiskChange()
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Fatalf("expected no-op when disk revision unchanged, got %+v", info)
	}
}

func TestApplyExternalDiskChangeOverwritesCleanBuffer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	s := newTestSession(t)
	if _, err := s.Open(path); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("external"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := s.ApplyExternalDiskChange()
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || info.Content != "external" || info.IsDirty {
		t.Fatalf("expected clean overwrite, got %+v", info)
	}
	if info.ConflictSnapshotID != "" {
		t.Fatal("expected no conflict marker when buffer was clean")
	}
}

func TestApplyExternalDiskChangeOnDirtyBufferPreservesConflictSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	s := newTestSession(t)
	if _, err := s.Open(path); err != nil {
		t.Fatal(err)
	}
	s.UpdateBufferContent("my edits")

	if err := os.WriteFile(path, []byte("external"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := s.ApplyExternalDiskChange()
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || info.Content != "external" {
		t.Fatalf("expected newest-writer-wins overwrite, got %+v", info)
	}
	if info.ConflictSnapshotID == "" {
		t.Fatal("expected conflict snapshot id preserved for recovery")
	}
	if info.BannerMessage == "" {
		t.Fatal("expected recovery banner set")
	}
}

func TestRestoreSnapshotMarksDirty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newTestSession(t)
	if _, err := s.Open(path); err != nil {
		t.Fatal(err)
	}
	s.UpdateBufferContent("changed")
	if _, err := s.Autosave("autosave"); err != nil {
		t.Fatal(err)
	}

	records, err := s.store.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) == 0 {
		t.Fatal("expected snapshot history to be non-empty")
	}
	originalID := records[0].ID

	info, err := s.RestoreSnapshot(context.Background(), originalID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if info.Content != "original" || !info.IsDirty {
		t.Fatalf("expected restored dirty buffer, got %+v", info)
	}
}

func TestMarkClosedResolvesWaiters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	s := newTestSession(t)
	if _, err := s.Open(path); err != nil {
		t.Fatal(err)
	}

	done := make(chan WaitResult, 1)
	go func() {
		done <- s.Wait(context.Background(), 0)
	}()
	time.Sleep(10 * time.Millisecond)
	s.MarkClosed()

	select {
	case res := <-done:
		if res.Reason != CloseReasonUserClosed {
			t.Fatalf("expected userClosed, got %v", res.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("wait did not resolve after close")
	}
}

func TestWaitForRevisionTimesOut(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	s := newTestSession(t)
	info, err := s.Open(path)
	if err != nil {
		t.Fatal(err)
	}

	res := s.WaitForRevision(context.Background(), info.Revision, 20*time.Millisecond)
	if res.Changed {
		t.Fatal("expected no change within timeout")
	}
}

func TestWaitForRevisionResolvesOnSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	s := newTestSession(t)
	info, err := s.Open(path)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan RevisionWaitResult, 1)
	go func() {
		done <- s.WaitForRevision(context.Background(), info.Revision, 2*time.Second)
	}()
	time.Sleep(10 * time.Millisecond)

	s.UpdateBufferContent("new content")
	if _, err := s.Autosave("autosave"); err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-done:
		if !res.Changed || res.Content != "new content" {
			t.Fatalf("expected change detected, got %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("waitForRevision did not resolve after save")
	}
}
