package diagram

import (
	"fmt"
	"strings"

	"github.com/awalterschulze/gographviz"
)

const dotGraphName = "workflow"

// dotShapes maps node kinds to DOT shapes, matching RenderImage.
var dotShapes = map[NodeKind]string{
	NodeKindAI:      "box",
	NodeKindLogic:   "diamond",
	NodeKindPython:  "component",
	NodeKindStart:   "circle",
	NodeKindEnd:     "doublecircle",
	NodeKindUnknown: "note",
}

// RenderDOT renders a DiagramModel as DOT source. Each execution level is
// a rank=same subgraph so the layout keeps the editor's columns.
func RenderDOT(model *DiagramModel) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(dotGraphName); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}
	if err := g.AddAttr(dotGraphName, "rankdir", "LR"); err != nil {
		return "", err
	}
	if model.Title != "" {
		if err := g.AddAttr(dotGraphName, "label", dotQuote(model.Title)); err != nil {
			return "", err
		}
	}

	placed := make(map[string]bool, len(model.Nodes))
	for i, level := range model.Levels {
		sub := fmt.Sprintf("level_%d", i+1)
		if err := g.AddSubGraph(dotGraphName, sub, map[string]string{"rank": "same"}); err != nil {
			return "", err
		}
		for _, id := range level {
			node := model.Node(id)
			if node == nil {
				continue
			}
			if err := g.AddNode(sub, dotQuote(node.ID), dotNodeAttrs(node)); err != nil {
				return "", fmt.Errorf("diagram: add node %s: %w", node.ID, err)
			}
			placed[id] = true
		}
	}
	for _, node := range model.Nodes {
		if placed[node.ID] {
			continue
		}
		if err := g.AddNode(dotGraphName, dotQuote(node.ID), dotNodeAttrs(node)); err != nil {
			return "", fmt.Errorf("diagram: add node %s: %w", node.ID, err)
		}
	}

	for _, e := range model.Edges {
		attrs := map[string]string{}
		if e.Label != "" {
			attrs["label"] = dotQuote(e.Label)
		}
		if err := g.AddEdge(dotQuote(e.From), dotQuote(e.To), true, attrs); err != nil {
			return "", fmt.Errorf("diagram: add edge %s->%s: %w", e.From, e.To, err)
		}
	}
	return g.String(), nil
}

// ParseDOT reads DOT source back into a graph, for round-trip checks and
// for callers that post-process RenderDOT output.
func ParseDOT(src string) (*gographviz.Graph, error) {
	ast, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("diagram: parse DOT: %w", err)
	}
	g := gographviz.NewGraph()
	if err := gographviz.Analyse(ast, g); err != nil {
		return nil, fmt.Errorf("diagram: analyse DOT: %w", err)
	}
	return g, nil
}

func dotNodeAttrs(node *Node) map[string]string {
	attrs := map[string]string{
		"label": dotQuote(node.Label),
		"shape": dotShapes[node.Kind],
	}
	if attrs["shape"] == "" {
		attrs["shape"] = dotShapes[NodeKindUnknown]
	}
	if node.Health != nil {
		attrs["style"] = "filled"
		attrs["fontcolor"] = "white"
		attrs["fillcolor"] = dotQuote("#b7791a")
		if node.Health.InCycle {
			attrs["fillcolor"] = dotQuote("#8b1a1a")
		}
	}
	return attrs
}

// dotQuote returns s as a DOT double-quoted string.
func dotQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
