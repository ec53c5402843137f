package store

import "context"

// Store is the persistence interface for editor projects.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	UpdateProject(ctx context.Context, id string, update ProjectUpdate) error
	ListProjects(ctx context.Context, filter ProjectFilter) ([]*ProjectSummary, error)
	DeleteProject(ctx context.Context, id string) error

	// Revisions
	SaveRevision(ctx context.Context, rev *Revision) error
	GetRevision(ctx context.Context, projectID string, number int64) (*Revision, error)
	LatestRevision(ctx context.Context, projectID string) (*Revision, error)
	ListRevisions(ctx context.Context, projectID string, limit int) ([]*Revision, error)
	PruneRevisions(ctx context.Context, keep int) (int64, error)

	// Events
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, projectID string, since int64) ([]*Event, error)
	GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error
	Close() error
}

var _ Store = (*LibSQLStore)(nil)
