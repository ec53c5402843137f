// Package logging carries correlation IDs through contexts and injects them
// into slog records.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	projectIDKey ctxKey = iota
	blockIDKey
	requestIDKey
)

// correlation lists the context keys copied onto every record, in order.
var correlation = []struct {
	key  ctxKey
	attr string
}{
	{requestIDKey, "request_id"},
	{projectIDKey, "project_id"},
	{blockIDKey, "block_id"},
}

// WithProjectID returns a context carrying the project ID.
func WithProjectID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, projectIDKey, id)
}

// WithBlockID returns a context carrying the block ID.
func WithBlockID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, blockIDKey, id)
}

// WithRequestID returns a context carrying the HTTP or MCP request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ProjectID extracts the project ID from the context, or "" if absent.
func ProjectID(ctx context.Context) string { return value(ctx, projectIDKey) }

// BlockID extracts the block ID from the context, or "" if absent.
func BlockID(ctx context.Context) string { return value(ctx, blockIDKey) }

// RequestID extracts the request ID from the context, or "" if absent.
func RequestID(ctx context.Context) string { return value(ctx, requestIDKey) }

func value(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// LogWith returns a logger enriched with the correlation IDs in ctx.
// Only non-empty values are added.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, c := range correlation {
		if v := value(ctx, c.key); v != "" {
			logger = logger.With(slog.String(c.attr, v))
		}
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and adds the correlation IDs
// from the record's context, so logger.InfoContext(ctx, ...) is enough.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps inner.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, c := range correlation {
		if v := value(ctx, c.key); v != "" {
			r.AddAttrs(slog.String(c.attr, v))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps a config string to a level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// NewHandler builds the base handler for the given format ("json" or
// "text") wrapped in a CorrelationHandler.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var inner slog.Handler
	if strings.EqualFold(format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return NewCorrelationHandler(inner)
}
