package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a left-to-right Mermaid flowchart
// with one subgraph per execution level.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph LR\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	placed := make(map[string]bool, len(model.Nodes))
	for i, level := range model.Levels {
		fmt.Fprintf(&b, "    subgraph level_%d[\"exec %d\"]\n", i+1, i+1)
		for _, id := range level {
			if node := model.Node(id); node != nil {
				fmt.Fprintf(&b, "        %s\n", mermaidNodeDef(node))
				placed[id] = true
			}
		}
		b.WriteString("    end\n")
	}
	for _, node := range model.Nodes {
		if !placed[node.ID] {
			fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
		}
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", mermaidSafeID(edge.From), label, mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef cycle fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef dangling fill:#b7791a,stroke:#8a5c14,color:#fff\n")

	for _, node := range model.Nodes {
		if cls := mermaidHealthClass(node.Health); cls != "" {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
		}
	}
	return b.String()
}

func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(strings.ReplaceAll(node.Label, "\n", "<br/>"))

	switch node.Kind {
	case NodeKindLogic:
		return fmt.Sprintf("%s{\"%s\"}", id, label)
	case NodeKindPython:
		return fmt.Sprintf("%s[[\"%s\"]]", id, label)
	case NodeKindStart:
		return fmt.Sprintf("%s((\"%s\"))", id, label)
	case NodeKindEnd:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	case NodeKindUnknown:
		return fmt.Sprintf("%s>\"%s\"]", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// mermaidSafeID converts a block ID to a Mermaid identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel replaces characters that end a quoted Mermaid label.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "#quot;", "|", "#124;")
	return r.Replace(s)
}

func mermaidHealthClass(h *Health) string {
	switch {
	case h == nil:
		return ""
	case h.InCycle:
		return "cycle"
	case len(h.Dangling) > 0:
		return "dangling"
	default:
		return ""
	}
}
