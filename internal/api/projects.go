package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rendis/mabelstudio/internal/logging"
	"github.com/rendis/mabelstudio/internal/store"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// projectRequest tags the request context with the project in the path.
func projectRequest(r *http.Request) (*http.Request, string) {
	id := r.PathValue("id")
	return r.WithContext(logging.WithProjectID(r.Context(), id)), id
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.deps.Service.ListProjects(r.Context(), store.ProjectFilter{
		NameContains: r.URL.Query().Get("q"),
		Limit:        queryInt(r, "limit", 50),
		Offset:       queryInt(r, "offset", 0),
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
		YAML string `json:"yaml"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	p, err := s.deps.Service.CreateProject(r.Context(), body.Name, []byte(body.YAML))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	p, err := s.deps.Service.GetProject(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	doc, err := s.deps.Service.ProjectDocument(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	p.Document = *doc
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRenameProject(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	var body struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if err := s.deps.Service.RenameProject(r.Context(), id, body.Name, body.Description); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	if err := s.deps.Service.DeleteProject(r.Context(), id); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProjectImport(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	text, err := readYAMLUpload(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if len(text) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "no_yaml", Message: "No YAML provided", Hint: noYAMLHint})
		return
	}
	report, err := s.deps.Service.ImportIntoProject(r.Context(), id, text)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "report": report})
}

func (s *Server) handleProjectExport(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	rev, err := s.deps.Service.ExportProject(r.Context(), id, body.Message)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func (s *Server) handleProjectLayout(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	var body struct {
		OnlyUnset bool `json:"only_unset"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	moved, err := s.deps.Service.LayoutProject(r.Context(), id, body.OnlyUnset)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if moved == nil {
		moved = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "moved": moved})
}

func (s *Server) handleProjectGraph(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	in, err := s.deps.Service.ProjectInspection(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleProjectDiagram(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	doc, err := s.deps.Service.ProjectDocument(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeDiagram(w, r, doc, r.URL.Query().Get("format"))
}

func (s *Server) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	revs, err := s.deps.Service.Revisions(r.Context(), id, queryInt(r, "limit", 20))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revs})
}

// handleGetRevision returns a revision as JSON, or its YAML text when
// ?raw=1 is given.
func (s *Server) handleGetRevision(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	n, err := pathInt(r, "number")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	rev, err := s.deps.Service.Revision(r.Context(), id, n)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if r.URL.Query().Get("raw") != "" {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, rev.YAML)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) handleProjectEvents(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	events, err := s.deps.Service.Events(r.Context(), id, int64(queryInt(r, "since", 0)))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleBlockHistory(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	history, err := s.deps.Service.BlockHistory(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": history})
}

// --- Blocks ---

func (s *Server) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	var body struct {
		Type     schema.BlockType `json:"type"`
		Position *schema.Position `json:"position"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	b, err := s.deps.Service.AddBlock(r.Context(), id, body.Type, body.Position)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleUpdateBlock applies a JSON merge patch to a block.
func (s *Server) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	blockID := r.PathValue("block")
	r = r.WithContext(logging.WithBlockID(r.Context(), blockID))

	patch, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !json.Valid(patch) {
		writeError(w, http.StatusBadRequest, "validation_error", "patch must be valid JSON")
		return
	}
	b, err := s.deps.Service.UpdateBlock(r.Context(), id, blockID, patch)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleRemoveBlock(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	if err := s.deps.Service.RemoveBlock(r.Context(), id, r.PathValue("block")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMoveBlock(w http.ResponseWriter, r *http.Request) {
	r, id := projectRequest(r)
	var pos schema.Position
	if err := decodeJSON(r, &pos); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	b, err := s.deps.Service.MoveBlock(r.Context(), id, r.PathValue("block"), pos)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
