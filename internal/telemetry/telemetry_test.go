package telemetry

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestObserveWritesJSONLRecord(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "", nil)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	defer rec.Close()

	rec.Observe("session.save", 12*time.Millisecond, false)
	rec.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one jsonl file, got %d", len(entries))
	}

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("expected at least one JSONL line")
	}
	if scanner.Text() == "" {
		t.Fatal("expected non-empty JSONL line")
	}
}

func TestObserveNeverPanicsWithoutMetricsAddr(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	for i := 0; i < 5; i++ {
		rec.Observe("hello", time.Millisecond, false)
	}
}
