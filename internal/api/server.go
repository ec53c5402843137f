// Package api serves the studio over HTTP: the canvas endpoints (import,
// export, models), graph inspection, project editing and live events.
package api

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/mabelstudio/internal/streaming"
	"github.com/rendis/mabelstudio/internal/studio"
)

// DefaultMaxUploadBytes caps request bodies.
const DefaultMaxUploadBytes = 4 << 20

// Deps holds the dependencies for the API server.
type Deps struct {
	Service        *studio.Service
	Hub            streaming.Hub
	Logger         *slog.Logger
	MaxUploadBytes int64
}

// Server serves the studio API.
type Server struct {
	deps Deps
}

// NewServer creates a Server, filling in defaults.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler with every route and middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Canvas endpoints.
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("GET /api/models", s.handleModels)

	// Stateless analysis.
	mux.HandleFunc("POST /api/graph", s.handleGraph)
	mux.HandleFunc("POST /api/diagram", s.handleDiagram)
	mux.HandleFunc("POST /api/lint", s.handleLint)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("POST /api/filter", s.handleFilter)

	// Projects.
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("PATCH /api/projects/{id}", s.handleRenameProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("POST /api/projects/{id}/import", s.handleProjectImport)
	mux.HandleFunc("POST /api/projects/{id}/export", s.handleProjectExport)
	mux.HandleFunc("POST /api/projects/{id}/layout", s.handleProjectLayout)
	mux.HandleFunc("GET /api/projects/{id}/graph", s.handleProjectGraph)
	mux.HandleFunc("GET /api/projects/{id}/diagram", s.handleProjectDiagram)
	mux.HandleFunc("GET /api/projects/{id}/revisions", s.handleListRevisions)
	mux.HandleFunc("GET /api/projects/{id}/revisions/{number}", s.handleGetRevision)
	mux.HandleFunc("GET /api/projects/{id}/events", s.handleProjectEvents)
	mux.HandleFunc("GET /api/projects/{id}/history", s.handleBlockHistory)

	// Blocks.
	mux.HandleFunc("POST /api/projects/{id}/blocks", s.handleAddBlock)
	mux.HandleFunc("PATCH /api/projects/{id}/blocks/{block}", s.handleUpdateBlock)
	mux.HandleFunc("DELETE /api/projects/{id}/blocks/{block}", s.handleRemoveBlock)
	mux.HandleFunc("PUT /api/projects/{id}/blocks/{block}/position", s.handleMoveBlock)

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/projects/{id}", s.handleSSEProject)

	mux.HandleFunc("/", s.handleNotFound)

	var h http.Handler = mux
	h = s.limitBody(h)
	h = securityHeaders(h)
	h = s.recoverPanics(h)
	h = s.requestContext(h)
	return h
}
