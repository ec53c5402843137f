package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RenderASCIIAuto renders through the mermaid-ascii binary in binDir when
// it exists, and falls back to RenderASCII otherwise.
func RenderASCIIAuto(ctx context.Context, model *DiagramModel, binDir string) string {
	if binDir != "" {
		binPath := filepath.Join(binDir, "mermaid-ascii")
		if _, err := os.Stat(binPath); err == nil {
			if out, err := RenderASCIIViaCLI(ctx, model, binPath); err == nil {
				return out
			}
		}
	}
	return RenderASCII(model)
}

// RenderASCIIViaCLI pipes simplified Mermaid through the mermaid-ascii
// binary.
func RenderASCIIViaCLI(ctx context.Context, model *DiagramModel, binPath string) (string, error) {
	cmd := exec.CommandContext(ctx, binPath)
	cmd.Stdin = strings.NewReader(RenderMermaidForCLI(model))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI emits edges only, with readable node IDs, since
// mermaid-ascii cannot parse quoted labels or subgraphs. Blocks without
// edges are listed on their own line.
func RenderMermaidForCLI(model *DiagramModel) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	displayID := make(map[string]string, len(model.Nodes))
	for _, node := range model.Nodes {
		displayID[node.ID] = cliNodeID(node)
	}
	resolve := func(id string) string {
		if d, ok := displayID[id]; ok {
			return d
		}
		return mermaidSafeID(id)
	}

	linked := make(map[string]bool, len(model.Nodes))
	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", resolve(edge.From), label, resolve(edge.To))
		linked[edge.From] = true
		linked[edge.To] = true
	}
	for _, node := range model.Nodes {
		if !linked[node.ID] {
			fmt.Fprintf(&b, "    %s\n", resolve(node.ID))
		}
	}
	return b.String()
}

// cliNodeID is "<title>-<id>" with spaces replaced, plus a CYCLE marker.
func cliNodeID(node *Node) string {
	id := firstLine(node.Label)
	if id == "" || id == node.ID {
		id = node.ID
	} else {
		id += "-" + node.ID
	}
	if node.Health != nil && node.Health.InCycle {
		id += "-CYCLE"
	}
	return strings.ReplaceAll(id, " ", "-")
}
