package yamlio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rendis/mabelstudio/pkg/schema"
)

func exportDoc(blocks ...*schema.Block) *schema.Document {
	doc := schema.NewDocument()
	doc.Models = []schema.Model{{ID: "gpt-4o", Name: "gpt-4o", APIModel: "gpt-4o"}}
	doc.Blocks = blocks
	return doc
}

func reread(t *testing.T, out []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, yaml.Unmarshal(out, &m), string(out))
	return m
}

func TestExport_OrderingAndNumbering(t *testing.T) {
	doc := exportDoc(
		&schema.Block{ID: "b1", Exec: 5, Spec: &schema.EndBlock{Reason: "done"}},
		&schema.Block{ID: "b2", Exec: 2, Position: &schema.Position{Y: 100}, Spec: &schema.AIBlock{Model: "gpt-4o"}},
		&schema.Block{ID: "b3", Exec: 2, Position: &schema.Position{Y: 50}, Spec: &schema.AIBlock{Model: "gpt-4o"}},
		&schema.Block{ID: "start", Exec: 1, Spec: &schema.StartBlock{Outputs: []string{"UserInput"}}},
		&schema.Block{ID: "b4", Exec: 1, Spec: &schema.PythonBlock{Name: "p"}},
	)
	out, err := Export(doc)
	require.NoError(t, err)

	blocks := reread(t, out)["blocks"].([]any)
	require.Len(t, blocks, 4, "start blocks are not exported")

	var types []string
	var numbers []int
	for _, raw := range blocks {
		b := raw.(map[string]any)
		types = append(types, b["type"].(string))
		numbers = append(numbers, b["no"].(int))
	}
	assert.Equal(t, []string{"python", "ai", "ai", "end"}, types)
	assert.Equal(t, []int{1, 3, 4, 5}, numbers)
}

func TestOrderBlocks_EndAlwaysLast(t *testing.T) {
	ordered := OrderBlocks([]*schema.Block{
		{ID: "b1", Exec: 1, Spec: &schema.EndBlock{}},
		{ID: "b2", Exec: 9, Spec: &schema.AIBlock{}},
		{ID: "b10", Exec: 3, Spec: &schema.AIBlock{}},
		{ID: "b9", Exec: 3, Spec: &schema.AIBlock{}},
	})
	var ids []string
	for _, b := range ordered {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"b9", "b10", "b2", "b1"}, ids)
}

func TestExport_Header(t *testing.T) {
	doc := exportDoc()
	doc.Mabel = schema.Header{Version: "1.0", ID: "wf-1", Name: "My flow"}
	out, err := Export(doc)
	require.NoError(t, err)

	assert.Contains(t, string(out), `version: "2.1"`)
	m := reread(t, out)["mabel"].(map[string]any)
	assert.Equal(t, "2.1", m["version"])
	assert.Equal(t, "My flow", m["name"])
	assert.NotContains(t, m, "description")
}

func TestExport_AIBlockFields(t *testing.T) {
	doc := exportDoc(&schema.Block{ID: "b1", Exec: 1, Spec: &schema.AIBlock{
		SystemPrompt: "line one\nline two {UserInput}",
		Prompts:      []string{"Summarize {Doc}"},
		Outputs:      []schema.AIOutput{{Name: "Summary"}, {Name: "Tag", Select: "tag", Tag: "answer"}},
		Params:       map[string]any{"temperature": 0.2, "stop": []any{"END"}},
		RunIf:        map[string]any{"equals": []any{"{Flag}", "yes"}},
		OnError:      "fail",
	}})
	out, err := Export(doc)
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, "# WARNING: model is empty")
	assert.Contains(t, text, "system_prompt: |")

	b := reread(t, out)["blocks"].([]any)[0].(map[string]any)
	assert.Equal(t, "line one\nline two {UserInput}", b["system_prompt"])
	assert.Equal(t, []any{"Summarize {Doc}"}, b["prompts"])
	outs := b["outputs"].([]any)
	assert.Equal(t, "full", outs[0].(map[string]any)["select"])
	assert.Equal(t, "answer", outs[1].(map[string]any)["tag"])
	assert.Equal(t, 0.2, b["params"].(map[string]any)["temperature"])
	assert.Equal(t, map[string]any{"equals": []any{"{Flag}", "yes"}}, b["run_if"])
	assert.Equal(t, "fail", b["on_error"])
}

func TestExport_AIDefaultsToOneEmptyPrompt(t *testing.T) {
	out, err := Export(exportDoc(&schema.Block{ID: "b1", Spec: &schema.AIBlock{Model: "gpt-4o"}}))
	require.NoError(t, err)
	b := reread(t, out)["blocks"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{""}, b["prompts"])
	assert.Equal(t, 1, b["exec"])
	assert.NotContains(t, string(out), "WARNING")
}

func TestExport_NumericLookingStringsStayStrings(t *testing.T) {
	doc := exportDoc(&schema.Block{ID: "b1", Exec: 1, Spec: &schema.AIBlock{
		Model:   "123",
		Outputs: []schema.AIOutput{{Name: "true"}},
	}})
	out, err := Export(doc)
	require.NoError(t, err)

	b := reread(t, out)["blocks"].([]any)[0].(map[string]any)
	assert.Equal(t, "123", b["model"])
	assert.Equal(t, "true", b["outputs"].([]any)[0].(map[string]any)["name"])
}

func TestExport_LogicOps(t *testing.T) {
	yes := true
	doc := exportDoc(
		&schema.Block{ID: "b1", Exec: 1, Spec: &schema.LogicBlock{
			Op:      &schema.CondOp{Op: schema.OpIf, Then: "run", Else: "skip"},
			Outputs: []schema.LogicOutput{{Name: "Flag"}},
		}},
		&schema.Block{ID: "b2", Exec: 2, Spec: &schema.LogicBlock{
			Name: "loop",
			Op:   &schema.ForOp{List: "{Items}", Var: "x", DropEmpty: &yes, Map: "{x}"},
		}},
		&schema.Block{ID: "b3", Exec: 3, Spec: &schema.LogicBlock{
			Op: &schema.SetOp{Var: "total", Value: "{A}"},
		}},
	)
	out, err := Export(doc)
	require.NoError(t, err)
	blocks := reread(t, out)["blocks"].([]any)

	ifBlock := blocks[0].(map[string]any)
	assert.Equal(t, "if", ifBlock["op"])
	assert.Equal(t, map[string]any{}, ifBlock["cond"])
	assert.Equal(t, "run", ifBlock["then"])
	assert.Equal(t, "boolean", ifBlock["outputs"].([]any)[0].(map[string]any)["from"])

	forBlock := blocks[1].(map[string]any)
	assert.Equal(t, "loop", forBlock["name"])
	assert.Equal(t, "{Items}", forBlock["list"])
	assert.Equal(t, true, forBlock["drop_empty"])

	setBlock := blocks[2].(map[string]any)
	assert.Equal(t, "{A}", setBlock["value"])
}

func TestExport_PythonAndEnd(t *testing.T) {
	doc := exportDoc(
		&schema.Block{ID: "b1", Exec: 1, Spec: &schema.PythonBlock{
			Name: "Post", Entrypoint: "main", Inputs: []any{"{Summary}"},
			UseEnv: "global", Outputs: []string{"Html"},
		}},
		&schema.Block{ID: "b2", Exec: 2, Spec: &schema.EndBlock{
			ExitCode: "success",
			Final:    []schema.FinalValue{{Name: "Result", Value: "{Html}"}},
		}},
	)
	out, err := Export(doc)
	require.NoError(t, err)
	blocks := reread(t, out)["blocks"].([]any)

	py := blocks[0].(map[string]any)
	assert.Equal(t, "Post", py["name"])
	assert.Equal(t, "main", py["function"])
	assert.Equal(t, []any{"{Summary}"}, py["inputs"])
	assert.Equal(t, []any{"Html"}, py["outputs"])
	assert.NotContains(t, py, "use_env")

	end := blocks[1].(map[string]any)
	assert.NotContains(t, end, "reason")
	assert.Equal(t, "success", end["exit_code"])
	assert.Equal(t, "{Html}", end["final"].([]any)[0].(map[string]any)["value"])
}

func TestExport_SectionsAndImages(t *testing.T) {
	doc := exportDoc()
	doc.Runtime = map[string]any{"python": map[string]any{"interpreter": "python3", "allow_network": false}}
	doc.Budgets = map[string]any{"loops": map[string]any{}, "wall_time_ms": float64(60000)}
	doc.Images = []schema.Image{
		{Name: "logo", Path: "logo.png", MediaType: DefaultMediaType},
		{Name: "photo", URL: "https://example.com/p.jpg", MediaType: "image/jpeg"},
	}
	out, err := Export(doc)
	require.NoError(t, err)
	m := reread(t, out)

	py := m["runtime"].(map[string]any)["python"].(map[string]any)
	assert.Equal(t, "python3", py["interpreter"])
	assert.Equal(t, false, py["allow_network"])

	budgets := m["budgets"].(map[string]any)
	assert.Equal(t, 1000, budgets["loops"].(map[string]any)["max_iters"])
	assert.Equal(t, 60000, budgets["wall_time_ms"])

	images := m["images"].([]any)
	assert.NotContains(t, images[0].(map[string]any), "media_type")
	assert.Equal(t, "image/jpeg", images[1].(map[string]any)["media_type"])
}

func TestExportModels(t *testing.T) {
	effort := "high"
	maxTok := 2048
	on := true
	out, err := ExportModels([]schema.Model{{
		ID: "m1", Name: "fast", APIModel: "gpt-4o-mini",
		Headers:            map[string]any{"X-Org": "acme"},
		EnableReasoning:    &on,
		ReasoningEffort:    effort,
		ReasoningMaxTokens: &maxTok,
		RequestDefaults: map[string]any{
			"temperature": 0.7,
			"max_tokens":  "",
			"retry":       map[string]any{"max_attempts": float64(3)},
		},
	}})
	require.NoError(t, err)
	m := reread(t, out)

	require.Len(t, m, 1)
	model := m["models"].([]any)[0].(map[string]any)
	assert.Equal(t, "fast", model["name"])
	assert.Equal(t, "", model["api_key"])
	assert.Equal(t, map[string]any{"X-Org": "acme"}, model["headers"])
	assert.Equal(t, true, model["enable_reasoning"])
	assert.Equal(t, 2048, model["reasoning_max_tokens"])
	rd := model["request_defaults"].(map[string]any)
	assert.Equal(t, 0.7, rd["temperature"])
	assert.NotContains(t, rd, "max_tokens")
	assert.Equal(t, 3, rd["retry"].(map[string]any)["max_attempts"])
}

func TestExportImport_RoundTrip(t *testing.T) {
	doc, err := Import([]byte(sampleYAML))
	require.NoError(t, err)
	for i, b := range doc.Blocks {
		b.ID = "b" + string(rune('1'+i))
	}

	out, err := Export(doc)
	require.NoError(t, err)
	again, err := Import(out)
	require.NoError(t, err)

	require.Len(t, again.Blocks, len(doc.Blocks))
	var types []schema.BlockType
	for _, b := range again.Blocks {
		types = append(types, b.Type())
	}
	assert.Equal(t, []schema.BlockType{"ai", "python", "logic", "end"}, types)

	py := again.Blocks[1].Spec.(*schema.PythonBlock)
	assert.Equal(t, schema.NameList{"Html", "Text"}, py.Outputs)
	assert.Equal(t, "Post", py.Name)
	assert.Equal(t, "x", again.Blocks[2].Spec.(*schema.LogicBlock).Op.(*schema.ForOp).Var)
	assert.Len(t, again.Models, 2)
}
