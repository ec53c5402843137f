package validation

import (
	"fmt"

	"github.com/rendis/mabelstudio/internal/graph"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// validateGraph reports graph-shape problems: blocks caught in a
// dependency cycle, references nothing produces and blocks with no
// connections at all. None of them blocks export.
func validateGraph(doc *schema.Document, a *graph.Analysis) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	pathOf := make(map[string]string, len(doc.Blocks))
	for i, b := range doc.Blocks {
		if b != nil {
			pathOf[b.ID] = fmt.Sprintf("blocks[%d]", i)
		}
	}

	for _, id := range a.Unresolved {
		result.AddBlockWarning(id, pathOf[id], schema.ErrCodeCycleDetected,
			"block is part of a dependency cycle; its level is approximate")
	}

	dangling := a.Dangling()
	for _, b := range doc.Blocks {
		if b == nil {
			continue
		}
		for _, name := range dangling[b.ID] {
			result.AddBlockWarning(b.ID, pathOf[b.ID], CodeDanglingRef,
				fmt.Sprintf("{%s} is not produced by any block", name))
		}
	}

	if len(doc.Blocks) < 2 {
		return result
	}
	connected := make(map[string]bool, len(doc.Blocks))
	for _, e := range a.Edges {
		connected[e.From] = true
		connected[e.To] = true
	}
	for _, b := range doc.Blocks {
		if b == nil || connected[b.ID] || b.Type() == schema.BlockTypeStart {
			continue
		}
		result.AddBlockWarning(b.ID, pathOf[b.ID], CodeIsolated, "block is not connected to any other block")
	}
	return result
}
