package diagram

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rendis/mabelstudio/internal/graph"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// Build constructs a DiagramModel from a document and its analysis. A nil
// analysis is computed from the document's blocks.
func Build(doc *schema.Document, a *graph.Analysis) *DiagramModel {
	if a == nil {
		a = graph.Analyze(doc.Blocks)
	}

	unresolved := make(map[string]bool, len(a.Unresolved))
	for _, id := range a.Unresolved {
		unresolved[id] = true
	}
	dangling := a.Dangling()

	nodes := make([]*Node, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		node := &Node{
			ID:    b.ID,
			Label: nodeLabel(b),
			Kind:  blockKind(b),
			Exec:  a.Levels[b.ID],
		}
		if unresolved[b.ID] || len(dangling[b.ID]) > 0 {
			node.Health = &Health{InCycle: unresolved[b.ID], Dangling: dangling[b.ID]}
		}
		nodes = append(nodes, node)
	}

	return &DiagramModel{
		Title:  title(doc),
		Nodes:  nodes,
		Edges:  mergeEdges(a.Edges),
		Levels: graph.Columns(doc.Blocks, a.Levels),
	}
}

func blockKind(b *schema.Block) NodeKind {
	switch b.Type() {
	case schema.BlockTypeStart:
		return NodeKindStart
	case schema.BlockTypeAI:
		return NodeKindAI
	case schema.BlockTypeLogic:
		return NodeKindLogic
	case schema.BlockTypePython:
		return NodeKindPython
	case schema.BlockTypeEnd:
		return NodeKindEnd
	default:
		return NodeKindUnknown
	}
}

// nodeLabel is "title\ndetail" where detail names the model, operator or
// function.
func nodeLabel(b *schema.Block) string {
	name := b.Title
	if name == "" {
		name = b.ID
	}
	var detail string
	switch spec := b.Spec.(type) {
	case *schema.AIBlock:
		detail = "ai"
		if spec.Model != "" {
			detail += ": " + spec.Model
		}
	case *schema.LogicBlock:
		detail = "logic: " + spec.OpName()
	case *schema.PythonBlock:
		detail = "python"
		if fn := firstNonEmpty(spec.Function, spec.Entrypoint); fn != "" {
			detail += ": " + fn
		}
	case *schema.EndBlock:
		detail = "end"
		if spec.ExitCode != "" {
			detail += ": " + spec.ExitCode
		}
	case *schema.StartBlock:
		detail = "start"
	default:
		detail = string(b.Type())
	}
	return name + "\n" + detail
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// mergeEdges folds duplicate producer/consumer pairs into one edge whose
// label lists every distinct reference, keeping first-seen order.
func mergeEdges(edges []schema.Edge) []Edge {
	type pair struct{ from, to string }
	index := make(map[pair]int, len(edges))
	labels := make([][]string, 0, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		k := pair{e.From, e.To}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Edge{From: e.From, To: e.To})
			labels = append(labels, nil)
		}
		if e.Label != "" && !slices.Contains(labels[i], e.Label) {
			labels[i] = append(labels[i], e.Label)
		}
	}
	for i := range out {
		out[i].Label = strings.Join(labels[i], ", ")
	}
	return out
}

func title(doc *schema.Document) string {
	if doc.Mabel.Name != "" {
		return doc.Mabel.Name
	}
	if doc.Mabel.ID != "" {
		return doc.Mabel.ID
	}
	return fmt.Sprintf("Workflow (%d blocks)", len(doc.Blocks))
}
