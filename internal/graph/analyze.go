package graph

import "github.com/rendis/mabelstudio/pkg/schema"

// Analysis is a read-only snapshot of everything derived from a block set.
type Analysis struct {
	Edges      []schema.Edge  `json:"edges"`
	Levels     map[string]int `json:"levels"`
	Unresolved []string       `json:"unresolved,omitempty"`
	Inputs     []BlockInputs  `json:"inputs"`
	Producers  Index          `json:"producers"`
}

// Analyze derives edges, levels, detected inputs and producers without
// touching the blocks.
func Analyze(blocks []*schema.Block) *Analysis {
	edges := ComputeEdges(blocks)
	report := ComputeLevels(blocks, edges)
	return &Analysis{
		Edges:      edges,
		Levels:     report.Levels,
		Unresolved: report.Unresolved,
		Inputs:     DetectInputs(blocks),
		Producers:  BuildIndex(blocks),
	}
}

// Dangling returns the references of each block that no other block
// produces, keyed by block ID. Blocks without dangling references are
// omitted.
func (a *Analysis) Dangling() map[string][]string {
	out := make(map[string][]string)
	for _, bi := range a.Inputs {
		for _, r := range bi.Inputs {
			if len(r.Producers) == 0 {
				out[bi.BlockID] = append(out[bi.BlockID], r.Name)
			}
		}
	}
	return out
}
