// Package diagram renders the inferred workflow graph as Mermaid, ASCII,
// DOT or raster images. All renderers share DiagramModel.
package diagram

// NodeKind classifies a node by block type.
type NodeKind string

const (
	NodeKindStart   NodeKind = "start"
	NodeKindAI      NodeKind = "ai"
	NodeKindLogic   NodeKind = "logic"
	NodeKindPython  NodeKind = "python"
	NodeKindEnd     NodeKind = "end"
	NodeKindUnknown NodeKind = "unknown"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one block.
type Node struct {
	ID     string
	Label  string // first line is the title, second the block detail
	Kind   NodeKind
	Exec   int
	Health *Health
}

// Health flags graph problems on a node.
type Health struct {
	InCycle  bool
	Dangling []string
}

// Edge is a producer to consumer dependency. Label lists the referenced
// names, joined when one producer feeds several names to the same consumer.
type Edge struct {
	From  string
	To    string
	Label string
}

// Node returns the node with the given ID, or nil.
func (m *DiagramModel) Node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
