// Package studio is the application layer shared by the HTTP API, the MCP
// server and the CLI. It keeps one editor session per project, persists
// every change and announces it on the event hub.
package studio

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/rendis/mabelstudio/internal/editor"
	"github.com/rendis/mabelstudio/internal/expressions"
	"github.com/rendis/mabelstudio/internal/logging"
	"github.com/rendis/mabelstudio/internal/store"
	"github.com/rendis/mabelstudio/internal/streaming"
	"github.com/rendis/mabelstudio/internal/validation"
	"github.com/rendis/mabelstudio/internal/yamlio"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// Deps holds the collaborators of a Service. Store and Hub are optional:
// without a store only the stateless operations work, without a hub no
// events are published.
type Deps struct {
	Store       store.Store
	Hub         streaming.Hub
	Validator   *validation.DocumentValidator
	Logger      *slog.Logger
	WorldHeight float64
	// MermaidBinDir is searched for a mermaid-ascii binary.
	MermaidBinDir string
}

// Service implements the studio operations.
type Service struct {
	deps   Deps
	events *store.EventLog
	expr   *expressions.ExprEngine
	jq     *expressions.GoJQEngine

	mu       sync.Mutex
	sessions map[string]*projectSession
}

type projectSession struct {
	mu   sync.Mutex
	sess *editor.Session
}

// New creates a Service, building a default validator when none is given.
func New(deps Deps) (*Service, error) {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Validator == nil {
		v, err := validation.NewDocumentValidator(nil)
		if err != nil {
			return nil, err
		}
		deps.Validator = v
	}
	s := &Service{
		deps:     deps,
		expr:     expressions.NewExprEngine(),
		jq:       expressions.NewGoJQEngine(),
		sessions: make(map[string]*projectSession),
	}
	if deps.Store != nil {
		s.events = store.NewEventLog(deps.Store)
	}
	return s, nil
}

// Logger returns the service logger.
func (s *Service) Logger() *slog.Logger { return s.deps.Logger }

// Validator returns the configured document validator.
func (s *Service) Validator() *validation.DocumentValidator { return s.deps.Validator }

// RecordEvents persists hub events to the store until ctx is done. It
// returns immediately when either is missing.
func (s *Service) RecordEvents(ctx context.Context) error {
	if s.events == nil || s.deps.Hub == nil {
		return nil
	}
	return s.events.Record(ctx, s.deps.Hub, streaming.Filter{}, s.deps.Logger)
}

// --- Projects ---

// CreateProject starts a project from YAML text, or an empty document when
// text is empty. Blocks are leveled and laid out before the first save.
func (s *Service) CreateProject(ctx context.Context, name string, text []byte) (*store.Project, error) {
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	doc := schema.NewDocument()
	if len(text) > 0 {
		if doc, err = yamlio.Import(text); err != nil {
			return nil, err
		}
	}
	sess := editor.New(doc, s.editorOptions())
	current := sess.Document()

	if name == "" {
		name = current.Mabel.Name
	}
	if name == "" {
		name = "Untitled"
	}
	p := &store.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: current.Mabel.Description,
		Document:    *current,
	}
	if err := st.CreateProject(ctx, p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[p.ID] = &projectSession{sess: sess}
	s.mu.Unlock()

	ctx = logging.WithProjectID(ctx, p.ID)
	logging.LogWith(ctx, s.deps.Logger).Info("project created", "blocks", p.BlockCount)
	s.publish(ctx, p.ID, "", schema.EventProjectCreated, map[string]any{"name": p.Name})
	return p, nil
}

// GetProject returns a stored project.
func (s *Service) GetProject(ctx context.Context, id string) (*store.Project, error) {
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	return st.GetProject(ctx, id)
}

// ListProjects returns project summaries.
func (s *Service) ListProjects(ctx context.Context, filter store.ProjectFilter) ([]*store.ProjectSummary, error) {
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	return st.ListProjects(ctx, filter)
}

// RenameProject updates a project's name and description. Nil leaves a
// field unchanged.
func (s *Service) RenameProject(ctx context.Context, id string, name, description *string) error {
	st, err := s.requireStore()
	if err != nil {
		return err
	}
	if name != nil && *name == "" {
		return schema.NewError(schema.ErrCodeValidation, "name must not be empty")
	}
	if err := st.UpdateProject(ctx, id, store.ProjectUpdate{Name: name, Description: description}); err != nil {
		return err
	}
	s.publish(ctx, id, "", schema.EventProjectUpdated, nil)
	return nil
}

// DeleteProject removes a project and its revisions. Its events are kept.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	st, err := s.requireStore()
	if err != nil {
		return err
	}
	if err := st.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	s.publish(ctx, id, "", schema.EventProjectDeleted, nil)
	return nil
}

// ProjectDocument returns the live document of a project.
func (s *Service) ProjectDocument(ctx context.Context, id string) (*schema.Document, error) {
	ps, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return ps.sess.Document(), nil
}

// --- Revisions and history ---

// ExportProject renders the project as YAML and stores it as a new revision.
func (s *Service) ExportProject(ctx context.Context, id, message string) (*store.Revision, error) {
	ps, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	text, err := ps.sess.ExportYAML()
	blocks := len(ps.sess.Document().Blocks)
	ps.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rev := &store.Revision{ProjectID: id, YAML: string(text), Message: message, BlockCount: blocks}
	if err := s.deps.Store.SaveRevision(ctx, rev); err != nil {
		return nil, err
	}
	s.publish(ctx, id, "", schema.EventProjectExported, map[string]any{"revision": rev.Number})
	return rev, nil
}

// Revisions lists the newest revisions of a project.
func (s *Service) Revisions(ctx context.Context, id string, limit int) ([]*store.Revision, error) {
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	return st.ListRevisions(ctx, id, limit)
}

// Revision returns one revision of a project.
func (s *Service) Revision(ctx context.Context, id string, number int64) (*store.Revision, error) {
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	return st.GetRevision(ctx, id, number)
}

// Events returns the logged events of a project after sequence since.
func (s *Service) Events(ctx context.Context, id string, since int64) ([]*store.Event, error) {
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	return st.GetEvents(ctx, id, since)
}

// BlockHistory summarizes the logged activity per block.
func (s *Service) BlockHistory(ctx context.Context, id string) (map[string]*store.BlockActivity, error) {
	if _, err := s.requireStore(); err != nil {
		return nil, err
	}
	return s.events.BlockHistory(ctx, id)
}

// --- internals ---

func (s *Service) requireStore() (store.Store, error) {
	if s.deps.Store == nil {
		return nil, schema.NewError(schema.ErrCodeStore, "project storage is not configured")
	}
	return s.deps.Store, nil
}

func (s *Service) editorOptions() editor.Options {
	return editor.Options{WorldHeight: s.deps.WorldHeight}
}

// session returns the cached session of a project, loading it on first use.
func (s *Service) session(ctx context.Context, id string) (*projectSession, error) {
	st, err := s.requireStore()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ps, ok := s.sessions[id]; ok {
		return ps, nil
	}
	p, err := st.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	ps := &projectSession{sess: editor.New(&p.Document, s.editorOptions())}
	s.sessions[id] = ps
	return ps, nil
}

// evict drops ps from the cache unless it was already replaced.
func (s *Service) evict(id string, ps *projectSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[id] == ps {
		delete(s.sessions, id)
	}
}

func (s *Service) publish(ctx context.Context, projectID, blockID, eventType string, payload any) {
	if s.deps.Hub == nil {
		return
	}
	err := s.deps.Hub.Publish(ctx, streaming.Event{
		ProjectID: projectID,
		BlockID:   blockID,
		Type:      eventType,
		Payload:   payload,
	})
	if err != nil {
		s.deps.Logger.Debug("publish event", "type", eventType, "error", err)
	}
}
