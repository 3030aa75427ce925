// Package observability configures structured logging for NutriTrackr.
//
// It wraps log/slog with optional file rotation and trace ID propagation so
// that every log line emitted while handling one delivery carries the trace
// context.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bdobrica/nutritrackr/common/trace"
)

// Rotation limits for LOG_FILE output.
const (
	maxLogSizeMB  = 50
	maxLogBackups = 5
	maxLogAgeDays = 28
)

// ParseLevel maps "debug", "warn" and "error" to their slog levels; anything
// else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the given format ("json" or
// text).
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup configures the global slog logger. When file is non-empty, output
// goes to that file and is rotated; otherwise it goes to stdout. The returned
// closer releases the file and is safe to call when logging to stdout.
func Setup(level, format, file string) io.Closer {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if file != "" {
		lj := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
			MaxAge:     maxLogAgeDays,
			Compress:   true,
		}
		w, closer = lj, lj
	}
	slog.SetDefault(NewLogger(w, level, format))
	return closer
}

// WithTrace returns a child of base that always includes the trace_id from
// ctx. A nil base means the default logger.
func WithTrace(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return base
	}
	return base.With("trace_id", traceID)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
