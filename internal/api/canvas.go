package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/rendis/mabelstudio/internal/studio"
	"github.com/rendis/mabelstudio/pkg/schema"
)

const noYAMLHint = "Upload as form-data 'file' or JSON body {yaml: '...'}"

// documentRequest carries a document either as YAML text or as canvas state.
type documentRequest struct {
	YAML   string         `json:"yaml"`
	State  map[string]any `json:"state"`
	Format string         `json:"format"`
	Expr   string         `json:"expr"`
}

func (s *Server) documentFrom(req documentRequest) (*schema.Document, error) {
	switch {
	case strings.TrimSpace(req.YAML) != "":
		return s.deps.Service.ParseYAML([]byte(req.YAML))
	case req.State != nil:
		return s.deps.Service.ParseState(req.State)
	default:
		return nil, schema.NewError(schema.ErrCodeValidation, "request needs yaml or state")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "Resource not found.")
}

// readYAMLUpload accepts YAML as a multipart "file" field or as JSON {yaml}.
// It returns nil text when neither carries any content.
func readYAMLUpload(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err == http.ErrMissingFile {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return io.ReadAll(file)
	}
	if isJSON(r) {
		var body documentRequest
		if err := decodeJSON(r, &body); err != nil {
			return nil, err
		}
		return []byte(body.YAML), nil
	}
	return nil, nil
}

// handleImport parses uploaded YAML into canvas state with levels and
// positions assigned.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	text, err := readYAMLUpload(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if len(strings.TrimSpace(string(text))) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "no_yaml", Message: "No YAML provided", Hint: noYAMLHint})
		return
	}
	doc, err := s.deps.Service.ParseYAML(text)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"state":      doc,
		"validation": s.deps.Service.Validate(r.Context(), doc),
	})
}

// handleExport renders canvas state as MABEL YAML.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusBadRequest, "expected_json", "Body must be JSON {state: {...}}.")
		return
	}
	var body documentRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if body.State == nil {
		writeError(w, http.StatusBadRequest, "invalid_state", "state is required")
		return
	}
	doc, err := s.deps.Service.ParseState(body.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_state", err.Error())
		return
	}
	text, err := s.deps.Service.ExportYAML(doc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_state", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "yaml": string(text)})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "models": studio.CuratedModels()})
}

// decodeDocument reads a documentRequest body and resolves its document.
func (s *Server) decodeDocument(w http.ResponseWriter, r *http.Request) (*schema.Document, documentRequest, bool) {
	var body documentRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeFailure(w, r, err)
		return nil, body, false
	}
	doc, err := s.documentFrom(body)
	if err != nil {
		s.writeFailure(w, r, err)
		return nil, body, false
	}
	return doc, body, true
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := s.decodeDocument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Service.Inspect(r.Context(), doc))
}

func (s *Server) handleLint(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := s.decodeDocument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Service.Validate(r.Context(), doc))
}

func (s *Server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	doc, body, ok := s.decodeDocument(w, r)
	if !ok {
		return
	}
	s.writeDiagram(w, r, doc, body.Format)
}

func (s *Server) writeDiagram(w http.ResponseWriter, r *http.Request, doc *schema.Document, format string) {
	out, err := s.deps.Service.Diagram(r.Context(), doc, studio.DiagramFormat(format))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(out.Body)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	doc, body, ok := s.decodeDocument(w, r)
	if !ok {
		return
	}
	results, err := s.deps.Service.Query(r.Context(), body.Expr, doc)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "results": results})
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	doc, body, ok := s.decodeDocument(w, r)
	if !ok {
		return
	}
	blocks, err := s.deps.Service.Filter(r.Context(), body.Expr, doc)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "blocks": blocks})
}
