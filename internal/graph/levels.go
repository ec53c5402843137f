package graph

import "github.com/rendis/mabelstudio/pkg/schema"

// LevelReport is the outcome of a leveling pass.
type LevelReport struct {
	Levels map[string]int `json:"levels"`
	Edges  []schema.Edge  `json:"edges"`
	// Unresolved lists, in block order, the blocks the queue never drained.
	// A non-empty list means the graph has a cycle and those levels come
	// from the predecessor fallback.
	Unresolved []string `json:"unresolved,omitempty"`
}

// HasCycle reports whether some blocks could not be ordered topologically.
func (r LevelReport) HasCycle() bool {
	return len(r.Unresolved) > 0
}

// AssignLevels computes execution levels from the inferred edges and writes
// them to every block's Exec. It never fails: cyclic blocks receive
// best-effort levels and are listed in the report.
func AssignLevels(blocks []*schema.Block) LevelReport {
	report := ComputeLevels(blocks, ComputeEdges(blocks))
	for _, b := range blocks {
		if b == nil {
			continue
		}
		if l, ok := report.Levels[b.ID]; ok {
			b.Exec = l
		} else {
			b.Exec = 1
		}
	}
	return report
}

// ComputeLevels runs longest-path layering (Kahn's algorithm) over the given
// edges without mutating the blocks. Edges whose endpoints are not in the
// block set are ignored. End blocks are pushed one level past every other
// block.
func ComputeLevels(blocks []*schema.Block, edges []schema.Edge) LevelReport {
	ids := make([]string, 0, len(blocks))
	known := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		if b == nil {
			continue
		}
		ids = append(ids, b.ID)
		known[b.ID] = true
	}

	out := make(map[string][]string, len(ids))
	inDegree := make(map[string]int, len(ids))
	for _, e := range edges {
		if !known[e.From] || !known[e.To] {
			continue
		}
		out[e.From] = append(out[e.From], e.To)
		inDegree[e.To]++
	}

	level := make(map[string]int, len(ids))
	get := func(id string) int {
		if l, ok := level[id]; ok && l > 0 {
			return l
		}
		return 1
	}

	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
			level[id] = 1
		}
	}

	processed := make(map[string]bool, len(ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed[id] = true
		l := get(id)
		for _, next := range out[id] {
			level[next] = max(get(next), l+1)
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	// Cycle fallback: one past the highest direct predecessor, in block
	// order, so earlier fallback results feed later ones.
	var unresolved []string
	for _, id := range ids {
		if processed[id] {
			continue
		}
		unresolved = append(unresolved, id)
		maxPred := 0
		for _, e := range edges {
			if e.To == id && known[e.From] {
				maxPred = max(maxPred, get(e.From))
			}
		}
		level[id] = maxPred + 1
	}

	// End blocks sink below every other block.
	maxNonEnd := 0
	for _, b := range blocks {
		if b != nil && !b.IsEnd() {
			maxNonEnd = max(maxNonEnd, get(b.ID))
		}
	}
	for _, b := range blocks {
		if b != nil && b.IsEnd() {
			level[b.ID] = max(get(b.ID), maxNonEnd+1)
		}
	}

	final := make(map[string]int, len(ids))
	for _, id := range ids {
		final[id] = get(id)
	}
	return LevelReport{Levels: final, Edges: edges, Unresolved: unresolved}
}

// Columns groups block IDs by level, in ascending level and block order.
func Columns(blocks []*schema.Block, levels map[string]int) [][]string {
	maxLevel := 0
	for _, l := range levels {
		maxLevel = max(maxLevel, l)
	}
	cols := make([][]string, maxLevel)
	for _, b := range blocks {
		if b == nil {
			continue
		}
		l, ok := levels[b.ID]
		if !ok || l < 1 {
			continue
		}
		cols[l-1] = append(cols[l-1], b.ID)
	}
	out := cols[:0]
	for _, c := range cols {
		if len(c) > 0 {
			out = append(out, c)
		}
	}
	return out
}
