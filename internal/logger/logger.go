// Package logger sets up the daemon's structured logger: stdout plus an
// optional log file, both through one slog.Handler so every subsystem logs
// through the same sink.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Log is the process-wide logger, set by Init. Code that runs before Init
// (flag parsing, early config errors) should use slog.Default() instead.
var Log *slog.Logger

// Init configures Log to write to stdout and, if logFile is non-empty, to
// that file as well. level is one of "debug", "info", "warn", "error";
// anything else defaults to "info".
func Init(level string, logFile string) error {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	writers := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: logLevel,
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)
	return nil
}

func init() {
	// Give every package a usable logger even if Init is never called,
	// e.g. under `go test` for packages that import logger transitively.
	Log = slog.Default()
}
