// Package telemetry records RPC latency: always as append-only JSONL
// files under the app-support telemetry directory, and additionally as
// Prometheus histograms when EDAD_METRICS_ADDR is set. Neither path ever
// gates correctness — a telemetry write failure is logged and dropped.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Record is one append-only latency observation.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	DurationMs float64   `json:"durationMs"`
	Error      bool      `json:"error"`
}

// Recorder writes latency records to a daily-rotated JSONL file and,
// optionally, into a Prometheus histogram exposed over HTTP.
type Recorder struct {
	dir string
	log *slog.Logger

	mu   sync.Mutex
	file *os.File
	day  string

	histogram *prometheus.HistogramVec
	server    *http.Server
}

// NewRecorder creates a Recorder writing JSONL files under dir. If
// metricsAddr is non-empty, it also starts a /metrics HTTP endpoint.
func NewRecorder(dir, metricsAddr string, log *slog.Logger) (*Recorder, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("telemetry: mkdir %s: %w", dir, err)
	}

	r := &Recorder{dir: dir, log: log}

	if metricsAddr != "" {
		registry := prometheus.NewRegistry()
		r.histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "edad_rpc_duration_seconds",
			Help: "Latency of daemon RPC method calls.",
		}, []string{"method"})
		registry.MustRegister(r.histogram)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		r.server = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.log.Warn("telemetry: metrics server stopped", "error", err)
			}
		}()
	}

	return r, nil
}

// Close stops the metrics server (if running) and closes the open JSONL
// file.
func (r *Recorder) Close() error {
	if r.server != nil {
		_ = r.server.Close()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Observe records one RPC call's latency. It never returns an error to the
// caller: a write failure is logged and dropped, per the package's
// best-effort contract.
func (r *Recorder) Observe(method string, duration time.Duration, failed bool) {
	if r.histogram != nil {
		r.histogram.WithLabelValues(method).Observe(duration.Seconds())
	}

	rec := Record{Timestamp: time.Now().UTC(), Method: method, DurationMs: float64(duration.Microseconds()) / 1000, Error: failed}
	line, err := json.Marshal(rec)
	if err != nil {
		r.log.Warn("telemetry: marshal record failed", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureFileLocked(rec.Timestamp); err != nil {
		r.log.Warn("telemetry: open log file failed", "error", err)
		return
	}
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		r.log.Warn("telemetry: write record failed", "error", err)
	}
}

func (r *Recorder) ensureFileLocked(ts time.Time) error {
	day := ts.Format("2006-01-02")
	if r.file != nil && r.day == day {
		return nil
	}
	if r.file != nil {
		r.file.Close()
	}
	path := filepath.Join(r.dir, day+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	r.file = f
	r.day = day
	return nil
}
