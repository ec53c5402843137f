package diagram

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMermaid(t *testing.T) {
	out := RenderMermaid(Build(linearDoc(), nil))

	assert.True(t, strings.HasPrefix(out, "graph LR\n"))
	assert.Contains(t, out, "%% Support Triage")
	assert.Contains(t, out, `subgraph level_1["exec 1"]`)
	assert.Contains(t, out, `b1(("Start<br/>start"))`)
	assert.Contains(t, out, `b2["Ask<br/>ai: gpt-4o"]`)
	assert.Contains(t, out, `b3(["Done<br/>end: success"])`)
	assert.Contains(t, out, "b1 -->|UserInput, Locale| b2")
	assert.Contains(t, out, "b2 -->|Answer| b3")
	assert.NotContains(t, out, "class b")
}

func TestRenderMermaid_Health(t *testing.T) {
	out := RenderMermaid(Build(troubledDoc(), nil))

	assert.Contains(t, out, `c1{"c1<br/>logic: if"}`)
	assert.Contains(t, out, `c2[["c2<br/>python: run"]]`)
	assert.Contains(t, out, "class c1 cycle")
	assert.Contains(t, out, "class c2 cycle")
}

func TestMermaidEscapes(t *testing.T) {
	assert.Equal(t, "a_b_c_d", mermaidSafeID("a.b-c d"))
	assert.Equal(t, "say #quot;hi#quot; #124; bye", mermaidEscapeLabel(`say "hi" | bye`))
}

func TestRenderASCII(t *testing.T) {
	out := RenderASCII(Build(linearDoc(), nil))

	assert.Contains(t, out, "=== Support Triage ===")
	assert.Contains(t, out, "exec 1")
	assert.Contains(t, out, "exec 3")
	assert.Contains(t, out, "┌")
	assert.Contains(t, out, "│ Ask        │")
	assert.Contains(t, out, "│ ai: gpt-4o │")
	assert.Contains(t, out, "b2 ─→ b3 (Answer)")
}

func TestRenderASCII_HealthTags(t *testing.T) {
	out := RenderASCII(Build(troubledDoc(), nil))
	assert.Contains(t, out, "[CYCLE]")
	assert.Contains(t, out, "[?Ghost]")
}

func TestRenderMermaidForCLI(t *testing.T) {
	model := Build(linearDoc(), nil)
	model.Nodes = append(model.Nodes, &Node{ID: "b9", Label: "Side Note\nai", Kind: NodeKindAI})

	out := RenderMermaidForCLI(model)
	assert.Contains(t, out, "Start-b1 -->|UserInput, Locale| Ask-b2")
	assert.Contains(t, out, "Ask-b2 -->|Answer| Done-b3")
	assert.Contains(t, out, "    Side-Note-b9\n")
	assert.NotContains(t, out, `["`)
	assert.NotContains(t, out, "subgraph")
}

func TestRenderASCIIAuto_FallsBack(t *testing.T) {
	model := Build(linearDoc(), nil)
	want := RenderASCII(model)

	assert.Equal(t, want, RenderASCIIAuto(context.Background(), model, ""))
	assert.Equal(t, want, RenderASCIIAuto(context.Background(), model, t.TempDir()))
}

func TestRenderASCIIAuto_UsesBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script binary")
	}
	dir := t.TempDir()
	script := "#!/bin/sh\necho rendered-by-cli\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mermaid-ascii"), []byte(script), 0o755))

	out := RenderASCIIAuto(context.Background(), Build(linearDoc(), nil), dir)
	assert.Equal(t, "rendered-by-cli\n", out)
}

func TestRenderDOT_RoundTrip(t *testing.T) {
	src, err := RenderDOT(Build(linearDoc(), nil))
	require.NoError(t, err)

	assert.Contains(t, src, "digraph workflow")
	assert.Contains(t, src, "rankdir=LR")
	assert.Contains(t, src, `label="Ask\nai: gpt-4o"`)

	g, err := ParseDOT(src)
	require.NoError(t, err)
	assert.Len(t, g.Nodes.Nodes, 3)
	assert.Len(t, g.Edges.Edges, 2)
	assert.Len(t, g.SubGraphs.SubGraphs, 3)
}

func TestRenderDOT_Health(t *testing.T) {
	src, err := RenderDOT(Build(troubledDoc(), nil))
	require.NoError(t, err)
	assert.Contains(t, src, `fillcolor="#8b1a1a"`)
	assert.Contains(t, src, "shape=diamond")
}

func TestParseDOT_Invalid(t *testing.T) {
	_, err := ParseDOT("digraph {")
	assert.Error(t, err)
}

func TestDotQuote(t *testing.T) {
	assert.Equal(t, `"a \"b\"\nc\\d"`, dotQuote("a \"b\"\nc\\d"))
}

func TestRenderImage(t *testing.T) {
	ctx := context.Background()
	model := Build(linearDoc(), nil)

	png, err := RenderImage(ctx, model, FormatPNG)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	svg, err := RenderImage(ctx, Build(troubledDoc(), nil), FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")

	_, err = RenderImage(ctx, model, "gif")
	assert.Error(t, err)
}
