// Package observability provides structured logging helpers for Kanri.
//
// It wraps log/slog with trace ID propagation and secret redaction so that
// every log line emitted while handling a message carries the trace context
// and never the Matrix access token.
package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/bdobrica/Kanri/common/redact"
	"github.com/bdobrica/Kanri/common/trace"
)

// ParseLevel maps "debug", "warn" and "error" to their slog levels; anything
// else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// NewLogger builds a logger writing to w in "json" or text format. String
// attribute values have every secret replaced before they are written.
func NewLogger(w io.Writer, level, format string, secrets ...string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if len(secrets) > 0 {
		opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
			switch a.Value.Kind() {
			case slog.KindString:
				a.Value = slog.StringValue(redact.String(a.Value.String(), secrets...))
			case slog.KindAny:
				if err, ok := a.Value.Any().(error); ok {
					a.Value = slog.StringValue(redact.String(err.Error(), secrets...))
				}
			}
			return a
		}
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup installs NewLogger as the slog default.
func Setup(w io.Writer, level, format string, secrets ...string) {
	slog.SetDefault(NewLogger(w, level, format, secrets...))
}

// WithTrace returns a child logger that always includes the trace_id from ctx.
func WithTrace(ctx context.Context) *slog.Logger {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return slog.Default()
	}
	return slog.With("trace_id", traceID)
}
