package studio

import (
	"context"
	"encoding/json"

	"github.com/rendis/mabelstudio/internal/editor"
	"github.com/rendis/mabelstudio/internal/graph"
	"github.com/rendis/mabelstudio/internal/logging"
	"github.com/rendis/mabelstudio/internal/store"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// recomputed is the payload of graph_recomputed events.
type recomputed struct {
	Levels     map[string]int `json:"levels"`
	Edges      int            `json:"edges"`
	Unresolved []string       `json:"unresolved,omitempty"`
}

// mutate runs fn under the project lock, saves the resulting document and
// publishes eventType followed by a recompute notice. fn returns its result
// and the ID of the block it touched, if any.
func mutate[T any](ctx context.Context, s *Service, projectID, eventType string, fn func(*editor.Session) (T, string, error)) (T, error) {
	var zero T
	ps, err := s.session(ctx, projectID)
	if err != nil {
		return zero, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	result, blockID, err := fn(ps.sess)
	if err != nil {
		return zero, err
	}
	doc := ps.sess.Document()
	if err := s.deps.Store.UpdateProject(ctx, projectID, store.ProjectUpdate{Document: doc}); err != nil {
		// The next access reloads the last persisted document.
		s.evict(projectID, ps)
		return zero, err
	}

	ctx = logging.WithProjectID(ctx, projectID)
	if blockID != "" {
		ctx = logging.WithBlockID(ctx, blockID)
	}
	logging.LogWith(ctx, s.deps.Logger).Debug("project changed", "event", eventType)

	s.publish(ctx, projectID, blockID, eventType, result)
	report := ps.sess.Report()
	s.publish(ctx, projectID, "", schema.EventGraphRecomputed, recomputed{
		Levels:     report.Levels,
		Edges:      len(report.Edges),
		Unresolved: report.Unresolved,
	})
	return result, nil
}

// AddBlock creates a block with starter content. A nil pos lets the layout
// engine place it.
func (s *Service) AddBlock(ctx context.Context, projectID string, t schema.BlockType, pos *schema.Position) (*schema.Block, error) {
	return mutate(ctx, s, projectID, schema.EventBlockAdded, func(sess *editor.Session) (*schema.Block, string, error) {
		b, err := sess.Add(t, pos)
		if err != nil {
			return nil, "", err
		}
		return b, b.ID, nil
	})
}

// UpdateBlock merges a JSON patch into a block.
func (s *Service) UpdateBlock(ctx context.Context, projectID, blockID string, patch json.RawMessage) (*schema.Block, error) {
	return mutate(ctx, s, projectID, schema.EventBlockUpdated, func(sess *editor.Session) (*schema.Block, string, error) {
		b, err := sess.Update(blockID, patch)
		return b, blockID, err
	})
}

// RemoveBlock deletes a block.
func (s *Service) RemoveBlock(ctx context.Context, projectID, blockID string) error {
	_, err := mutate(ctx, s, projectID, schema.EventBlockRemoved, func(sess *editor.Session) (map[string]string, string, error) {
		if err := sess.Remove(blockID); err != nil {
			return nil, "", err
		}
		return map[string]string{"id": blockID}, blockID, nil
	})
	return err
}

// MoveBlock places a block on the canvas. Levels are unaffected.
func (s *Service) MoveBlock(ctx context.Context, projectID, blockID string, pos schema.Position) (*schema.Block, error) {
	return mutate(ctx, s, projectID, schema.EventBlockMoved, func(sess *editor.Session) (*schema.Block, string, error) {
		b, err := sess.Move(blockID, pos)
		return b, blockID, err
	})
}

// ImportIntoProject merges YAML into an existing project, keeping IDs and
// positions of blocks that stay in the same column slot.
func (s *Service) ImportIntoProject(ctx context.Context, projectID string, text []byte) (graph.LevelReport, error) {
	return mutate(ctx, s, projectID, schema.EventProjectImported, func(sess *editor.Session) (graph.LevelReport, string, error) {
		report, err := sess.ImportYAML(text)
		return report, "", err
	})
}

// LayoutProject re-arranges a project's blocks and returns the moved IDs.
func (s *Service) LayoutProject(ctx context.Context, projectID string, onlyUnset bool) ([]string, error) {
	return mutate(ctx, s, projectID, schema.EventLayoutApplied, func(sess *editor.Session) ([]string, string, error) {
		return sess.Layout(onlyUnset), "", nil
	})
}

// ProjectInspection analyzes and validates the live document of a project.
func (s *Service) ProjectInspection(ctx context.Context, projectID string) (*Inspection, error) {
	doc, err := s.ProjectDocument(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.Inspect(ctx, doc), nil
}
