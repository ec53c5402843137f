package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mabelstudio/pkg/schema"
)

// linearDoc is start -> ask -> end with a second reference from end to start.
func linearDoc() *schema.Document {
	doc := schema.NewDocument()
	doc.Mabel.Name = "Support Triage"
	doc.Blocks = []*schema.Block{
		{ID: "b1", Title: "Start", Spec: &schema.StartBlock{Outputs: schema.NameList{"UserInput", "Locale"}}},
		{ID: "b2", Title: "Ask", Spec: &schema.AIBlock{
			Model:   "gpt-4o",
			Prompts: []string{"{UserInput} in {Locale}"},
			Outputs: []schema.AIOutput{{Name: "Answer"}},
		}},
		{ID: "b3", Title: "Done", Spec: &schema.EndBlock{
			ExitCode: "success",
			Final:    []schema.FinalValue{{Name: "Result", Value: "{Answer}"}},
		}},
	}
	return doc
}

// troubledDoc has a two-block cycle and a dangling reference.
func troubledDoc() *schema.Document {
	doc := schema.NewDocument()
	doc.Blocks = []*schema.Block{
		{ID: "c1", Spec: &schema.LogicBlock{
			Op:      &schema.CondOp{Op: schema.OpIf, Cond: "{Pong}"},
			Outputs: []schema.LogicOutput{{Name: "Ping"}},
		}},
		{ID: "c2", Spec: &schema.PythonBlock{Name: "pong", Function: "run", Inputs: []any{"{Ping}", "{Ghost}"}, Outputs: schema.NameList{"Pong"}}},
	}
	return doc
}

func TestBuild_Linear(t *testing.T) {
	model := Build(linearDoc(), nil)

	assert.Equal(t, "Support Triage", model.Title)
	require.Len(t, model.Nodes, 3)
	assert.Equal(t, NodeKindStart, model.Nodes[0].Kind)
	assert.Equal(t, "Ask\nai: gpt-4o", model.Nodes[1].Label)
	assert.Equal(t, "Done\nend: success", model.Nodes[2].Label)
	assert.Equal(t, 2, model.Nodes[1].Exec)

	assert.Equal(t, [][]string{{"b1"}, {"b2"}, {"b3"}}, model.Levels)
	assert.Equal(t, []Edge{
		{From: "b1", To: "b2", Label: "UserInput, Locale"},
		{From: "b2", To: "b3", Label: "Answer"},
	}, model.Edges)

	for _, n := range model.Nodes {
		assert.Nil(t, n.Health, n.ID)
	}
}

func TestBuild_Health(t *testing.T) {
	model := Build(troubledDoc(), nil)

	c1 := model.Node("c1")
	require.NotNil(t, c1)
	require.NotNil(t, c1.Health)
	assert.True(t, c1.Health.InCycle)
	assert.Equal(t, "c1\nlogic: if", c1.Label)

	c2 := model.Node("c2")
	require.NotNil(t, c2.Health)
	assert.Equal(t, []string{"Ghost"}, c2.Health.Dangling)
	assert.Equal(t, "c2\npython: run", c2.Label)

	assert.Nil(t, model.Node("missing"))
}

func TestBuild_DefaultTitle(t *testing.T) {
	doc := troubledDoc()
	assert.Equal(t, "Workflow (2 blocks)", Build(doc, nil).Title)

	doc.Mabel.ID = "triage"
	assert.Equal(t, "triage", Build(doc, nil).Title)
}

func TestMergeEdges(t *testing.T) {
	got := mergeEdges([]schema.Edge{
		{From: "a", To: "b", Label: "X"},
		{From: "a", To: "c", Label: "X"},
		{From: "a", To: "b", Label: "Y"},
		{From: "a", To: "b", Label: "X"},
	})
	assert.Equal(t, []Edge{
		{From: "a", To: "b", Label: "X, Y"},
		{From: "a", To: "c", Label: "X"},
	}, got)
}
