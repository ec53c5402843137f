package graph

import "github.com/rendis/mabelstudio/pkg/schema"

// ComputeEdges derives one producer to consumer edge per matched reference.
// Self-edges are never emitted. Duplicate (from, to) pairs with different
// labels are kept; only the adjacency structure matters for leveling.
func ComputeEdges(blocks []*schema.Block) []schema.Edge {
	idx := BuildIndex(blocks)
	edges := []schema.Edge{}
	for _, target := range blocks {
		if target == nil {
			continue
		}
		for _, ref := range Scan(target) {
			p, ok := idx.Lookup(ref)
			if !ok {
				continue
			}
			for _, pid := range p.IDs {
				if pid == target.ID {
					continue
				}
				edges = append(edges, schema.Edge{From: pid, To: target.ID, Label: ref})
			}
		}
	}
	return edges
}

// Reference is one detected input of a block. Producers is empty for a
// dangling reference.
type Reference struct {
	Name      string   `json:"name"`
	Producers []string `json:"producers"`
}

// BlockInputs lists the detected inputs of one block.
type BlockInputs struct {
	BlockID string      `json:"block_id"`
	Inputs  []Reference `json:"inputs"`
}

// DetectInputs reports every scanned reference per block together with its
// producers, excluding the block itself.
func DetectInputs(blocks []*schema.Block) []BlockInputs {
	idx := BuildIndex(blocks)
	out := make([]BlockInputs, 0, len(blocks))
	for _, b := range blocks {
		if b == nil {
			continue
		}
		bi := BlockInputs{BlockID: b.ID, Inputs: []Reference{}}
		for _, ref := range Scan(b) {
			r := Reference{Name: ref, Producers: []string{}}
			if p, ok := idx.Lookup(ref); ok {
				for _, pid := range p.IDs {
					if pid != b.ID {
						r.Producers = append(r.Producers, pid)
					}
				}
			}
			bi.Inputs = append(bi.Inputs, r)
		}
		out = append(out, bi)
	}
	return out
}
