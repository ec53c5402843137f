// Package streaming fans editor events out to live subscribers such as the
// browser canvas.
package streaming

import (
	"context"
	"time"
)

// Event is a change notification for one project. BlockID is set when the
// change concerns a single block.
type Event struct {
	Seq       uint64    `json:"seq"`
	ProjectID string    `json:"project_id"`
	BlockID   string    `json:"block_id,omitempty"`
	Type      string    `json:"type"`
	Time      time.Time `json:"time"`
	Payload   any       `json:"payload,omitempty"`
}

// Filter selects the events a subscriber receives. Empty fields match all.
type Filter struct {
	ProjectID string   `json:"project_id,omitempty"`
	Types     []string `json:"types,omitempty"`
}

// Hub provides pub/sub for project events.
type Hub interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error)
}
