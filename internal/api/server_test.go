package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mabelstudio/internal/store"
	"github.com/rendis/mabelstudio/internal/streaming"
	"github.com/rendis/mabelstudio/internal/studio"
	"github.com/rendis/mabelstudio/pkg/schema"
)

const sampleYAML = `mabel:
  version: "1.0"
models:
  - id: gpt-4o-mini
blocks:
  - type: ai
    exec: 1
    model: gpt-4o-mini
    prompts:
      - "Summarize {UserInput}"
    outputs:
      - name: Summary
  - type: end
    final:
      - name: Result
        value: "{Summary}"
`

type testEnv struct {
	srv *httptest.Server
	hub *streaming.MemoryHub
}

func newTestEnv(t *testing.T, maxUpload int64) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	hub := streaming.NewMemoryHub()
	svc, err := studio.New(studio.Deps{Store: st, Hub: hub, Logger: logger})
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(Deps{
		Service:        svc,
		Hub:            hub,
		Logger:         logger,
		MaxUploadBytes: maxUpload,
	}).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	} else {
		out = map[string]any{"raw": string(raw)}
	}
	return resp, out
}

func TestHealthAndModels(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, body := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = env.do(t, http.MethodGet, "/api/models", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	models, ok := body["models"].([]any)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(models), 3)
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, _ := env.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "same-origin", resp.Header.Get("Referrer-Policy"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "frame-ancestors 'none'")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestImportExportRoundTrip(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, body := env.do(t, http.MethodPost, "/api/import", map[string]any{"yaml": sampleYAML})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	state, ok := body["state"].(map[string]any)
	require.True(t, ok)
	blocks := state["blocks"].([]any)
	first := blocks[0].(map[string]any)
	assert.Equal(t, "ai", first["type"])
	assert.Equal(t, "b1", first["id"])
	assert.NotNil(t, first["position"])

	resp, body = env.do(t, http.MethodPost, "/api/export", map[string]any{"state": state})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["ok"])
	assert.Contains(t, body["yaml"], "blocks:")
	assert.Contains(t, body["yaml"], `version: "2.1"`)
}

func TestImport_Multipart(t *testing.T) {
	env := newTestEnv(t, 0)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "flow.yaml")
	require.NoError(t, err)
	_, err = fw.Write([]byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.srv.URL+"/api/import", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestImport_Errors(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, body := env.do(t, http.MethodPost, "/api/import", map[string]any{"yaml": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "no_yaml", body["error"])
	assert.NotEmpty(t, body["hint"])

	resp, body = env.do(t, http.MethodPost, "/api/import", map[string]any{"yaml": "blocks: [oops"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_yaml", body["error"])
}

func TestExport_Errors(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, err := http.Post(env.srv.URL+"/api/export", "text/plain", strings.NewReader("state"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, body := env.do(t, http.MethodPost, "/api/export", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	assert.Equal(t, "invalid_state", body["error"])
}

func TestPayloadTooLarge(t *testing.T) {
	env := newTestEnv(t, 256)

	big := map[string]any{"yaml": strings.Repeat("x", 1024)}
	resp, body := env.do(t, http.MethodPost, "/api/import", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "payload_too_large", body["error"])
}

func TestNotFoundEnvelope(t *testing.T) {
	env := newTestEnv(t, 0)
	resp, body := env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])
}

func TestGraphEndpoint(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, body := env.do(t, http.MethodPost, "/api/graph", map[string]any{"yaml": sampleYAML})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	edges := body["edges"].([]any)
	require.Len(t, edges, 1)
	assert.Equal(t, map[string]any{"from": "b1", "to": "b2", "label": "Summary"}, edges[0])
	assert.Equal(t, map[string]any{"b1": float64(1), "b2": float64(2)}, body["levels"])

	resp, _ = env.do(t, http.MethodPost, "/api/graph", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLintQueryFilterDiagram(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, body := env.do(t, http.MethodPost, "/api/lint", map[string]any{"yaml": sampleYAML})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["warnings"], "UserInput is dangling")

	resp, body = env.do(t, http.MethodPost, "/api/query", map[string]any{"yaml": sampleYAML, "expr": "[.blocks[].id]"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{[]any{"b1", "b2"}}, body["results"])

	resp, body = env.do(t, http.MethodPost, "/api/query", map[string]any{"yaml": sampleYAML, "expr": ".blocks[) |"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "query_error", body["error"])

	resp, body = env.do(t, http.MethodPost, "/api/filter", map[string]any{"yaml": sampleYAML, "expr": `block.type == "ai"`})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["blocks"], 1)

	resp, body = env.do(t, http.MethodPost, "/api/diagram", map[string]any{"yaml": sampleYAML, "format": "mermaid"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["raw"], "graph LR")
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, body := env.do(t, http.MethodPost, "/api/projects", map[string]any{"name": "Summaries", "yaml": sampleYAML})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	id := body["id"].(string)
	base := "/api/projects/" + id

	resp, body = env.do(t, http.MethodPost, base+"/blocks", map[string]any{"type": "start"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "b3", body["id"])

	resp, body = env.do(t, http.MethodGet, base+"/graph", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"b3": float64(1), "b1": float64(2), "b2": float64(3)}, body["levels"])

	resp, body = env.do(t, http.MethodPatch, base+"/blocks/b1", map[string]any{"title": "Summarize"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Summarize", body["title"])

	resp, body = env.do(t, http.MethodPut, base+"/blocks/b1/position", map[string]any{"x": 50, "y": 37})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, map[string]any{"x": float64(48), "y": float64(48)}, body["position"])

	resp, _ = env.do(t, http.MethodDelete, base+"/blocks/b3", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, body = env.do(t, http.MethodDelete, base+"/blocks/b3", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])

	resp, body = env.do(t, http.MethodPost, base+"/export", map[string]any{"message": "v1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, float64(1), body["number"])

	resp, body = env.do(t, http.MethodGet, base+"/revisions/1?raw=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["raw"], "blocks:")

	resp, _ = env.do(t, http.MethodGet, base+"/revisions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Summaries", body["name"])

	resp, body = env.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["projects"], 1)

	resp, _ = env.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddBlock_UnknownType(t *testing.T) {
	env := newTestEnv(t, 0)
	_, body := env.do(t, http.MethodPost, "/api/projects", map[string]any{})
	id := body["id"].(string)

	resp, body := env.do(t, http.MethodPost, "/api/projects/"+id+"/blocks", map[string]any{"type": "robot"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])
}

func TestSSEProjectStream(t *testing.T) {
	env := newTestEnv(t, 0)
	_, body := env.do(t, http.MethodPost, "/api/projects", map[string]any{"yaml": sampleYAML})
	id := body["id"].(string)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/sse/projects/"+id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	env.do(t, http.MethodPut, "/api/projects/"+id+"/blocks/b1/position", map[string]any{"x": 0, "y": 0})

	events := make(chan string, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "event: ") {
				events <- strings.TrimPrefix(line, "event: ")
			}
		}
	}()

	select {
	case ev := <-events:
		assert.Equal(t, schema.EventBlockMoved, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no SSE event received")
	}
}
