package rpc

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteThenReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&buf, &buf, 0)

	payload := []byte(`{"jsonrpc":"2.0","id":1,"method":"hello"}`)
	if err := f.WriteFrame(payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := f.ReadFrame()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestReadFrameMissingContentLength(t *testing.T) {
	r := bytes.NewBufferString("X-Other: 1\r\n\r\n{}")
	f := NewFramer(r, io.Discard, 0)
	if _, err := f.ReadFrame(); err == nil {
		t.Fatal("expected error for missing Content-Length")
	}
}

func TestReadFrameNonNumericContentLength(t *testing.T) {
	r := bytes.NewBufferString("Content-Length: abc\r\n\r\n{}")
	f := NewFramer(r, io.Discard, 0)
	if _, err := f.ReadFrame(); err == nil {
		t.Fatal("expected error for non-numeric Content-Length")
	}
}

func TestReadFrameRejectsOversized(t *testing.T) {
	r := bytes.NewBufferString("Content-Length: 100\r\n\r\n" + string(make([]byte, 100)))
	f := NewFramer(r, io.Discard, 10)
	if _, err := f.ReadFrame(); err == nil {
		t.Fatal("expected error for frame exceeding max size")
	}
}

func TestReadFrameCleanEOFBetweenFrames(t *testing.T) {
	r := bytes.NewBuffer(nil)
	f := NewFramer(r, io.Discard, 0)
	if _, err := f.ReadFrame(); err != io.EOF {
		t.Fatalf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestMultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&buf, &buf, 0)

	msgs := [][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`), []byte(`{"c":3}`)}
	for _, m := range msgs {
		if err := f.WriteFrame(m); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range msgs {
		got, err := f.ReadFrame()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}
