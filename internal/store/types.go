package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/mabelstudio/pkg/schema"
)

// Project is a persisted editor document.
type Project struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Document    schema.Document `json:"document"`
	BlockCount  int             `json:"block_count"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ProjectSummary is the list view of a project, without its document.
type ProjectSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	BlockCount  int       `json:"block_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectUpdate carries the mutable fields of a project. Nil fields are left untouched.
type ProjectUpdate struct {
	Name        *string
	Description *string
	Document    *schema.Document
}

// ProjectFilter narrows ListProjects.
type ProjectFilter struct {
	NameContains string
	Since        *time.Time
	Limit        int
	Offset       int
}

// Revision is an exported YAML snapshot of a project.
type Revision struct {
	ProjectID  string    `json:"project_id"`
	Number     int64     `json:"number"`
	YAML       string    `json:"yaml"`
	Message    string    `json:"message,omitempty"`
	BlockCount int       `json:"block_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event is an entry of the append-only project activity log.
type Event struct {
	ID        int64           `json:"id"`
	ProjectID string          `json:"project_id"`
	BlockID   string          `json:"block_id,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// EventFilter narrows GetEventsByType.
type EventFilter struct {
	ProjectID string
	BlockID   string
	Since     *time.Time
	Limit     int
}
