package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAutosaveSchedulerFlushesAfterDebounce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	s := newTestSession(t)
	if _, err := s.Open(path); err != nil {
		t.Fatal(err)
	}

	sched := NewAutosaveScheduler(s, nil, 20*time.Millisecond, 200*time.Millisecond)
	defer sched.Stop()

	s.UpdateBufferContent("debounced")
	sched.NotifyEdit()

	time.Sleep(60 * time.Millisecond)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "debounced" {
		t.Fatalf("expected debounced flush to persist, got %q", data)
	}
}

func TestAutosaveSchedulerForcesMaxFlush(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	s := newTestSession(t)
	if _, err := s.Open(path); err != nil {
		t.Fatal(err)
	}

	sched := NewAutosaveScheduler(s, nil, 100*time.Millisecond, 120*time.Millisecond)
	defer sched.Stop()

	// Keep re-debouncing faster than the debounce window, but maxFlush
	// should still force a flush once the oldest edit ages out.
	stop := time.After(200 * time.Millisecond)
	ticker := time.NewTicker(15 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			s.UpdateBufferContent("keeps-changing")
			sched.NotifyEdit()
		case <-stop:
			break loop
		}
	}

	time.Sleep(50 * time.Millisecond)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) == "" {
		t.Fatal("expected maxFlush to force a flush despite continuous edits")
	}
}

func TestAutosaveSchedulerFlushIsSynchronous(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	s := newTestSession(t)
	if _, err := s.Open(path); err != nil {
		t.Fatal(err)
	}

	sched := NewAutosaveScheduler(s, nil, time.Hour, time.Hour)
	s.UpdateBufferContent("teardown content")
	sched.NotifyEdit()

	if err := sched.Flush("app_hide"); err != nil {
		t.Fatalf("flush: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "teardown content" {
		t.Fatalf("expected synchronous flush to have persisted before returning, got %q", data)
	}
}

func TestAutosaveSchedulerStopCancelsPendingTimer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	s := newTestSession(t)
	if _, err := s.Open(path); err != nil {
		t.Fatal(err)
	}

	sched := NewAutosaveScheduler(s, nil, 20*time.Millisecond, 200*time.Millisecond)
	s.UpdateBufferContent("should not persist")
	sched.NotifyEdit()
	sched.Stop()

	time.Sleep(60 * time.Millisecond)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "" {
		t.Fatalf("expected stopped scheduler not to flush, got %q", data)
	}
}
