package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ProjectID(ctx))
	assert.Empty(t, BlockID(ctx))
	assert.Empty(t, RequestID(ctx))

	ctx = WithProjectID(ctx, "p-1")
	ctx = WithBlockID(ctx, "b3")
	ctx = WithRequestID(ctx, "req-9")

	assert.Equal(t, "p-1", ProjectID(ctx))
	assert.Equal(t, "b3", BlockID(ctx))
	assert.Equal(t, "req-9", RequestID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithBlockID(WithProjectID(context.Background(), "p-1"), "b3")
	LogWith(ctx, logger).Info("block updated")

	out := buf.String()
	assert.Contains(t, out, "project_id=p-1")
	assert.Contains(t, out, "block_id=b3")
	assert.NotContains(t, out, "request_id")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithRequestID(WithProjectID(context.Background(), "p-2"), "req-1")
	logger.InfoContext(ctx, "imported", "blocks", 4)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "p-2", rec["project_id"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, float64(4), rec["blocks"])
	assert.NotContains(t, rec, "block_id")
}

func TestCorrelationHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))).
		With("component", "api").
		WithGroup("http")

	logger.InfoContext(WithProjectID(context.Background(), "p-3"), "served", "status", 200)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "api", rec["component"])
	group, ok := rec["http"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(200), group["status"])
	assert.Equal(t, "p-3", group["project_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "warn", "json"))

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.WarnContext(WithBlockID(context.Background(), "b1"), "shown")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "b1", rec["block_id"])

	buf.Reset()
	slog.New(NewHandler(&buf, "info", "text")).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
