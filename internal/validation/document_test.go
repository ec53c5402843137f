package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mabelstudio/pkg/schema"
)

func TestValidate_ValidDocument(t *testing.T) {
	r := newDV(t).Validate(context.Background(), validDoc())
	assert.True(t, r.Valid())
	assert.Empty(t, r.Warnings)
	assert.NoError(t, r.ToError())
}

func TestValidate_NilDocument(t *testing.T) {
	r := newDV(t).Validate(context.Background(), nil)
	assert.False(t, r.Valid())
}

func TestValidate_DuplicateIDIsError(t *testing.T) {
	doc := validDoc()
	doc.Blocks[2].ID = "b2"

	r := newDV(t).Validate(context.Background(), doc)
	require.False(t, r.Valid())
	assert.Equal(t, CodeDuplicateID, r.Errors[0].Code)
	assert.Equal(t, "blocks[2].id", r.Errors[0].Path)
	assert.Error(t, r.ToError())
}

func TestValidate_SemanticWarnings(t *testing.T) {
	doc := validDoc()
	doc.Blocks = append(doc.Blocks,
		&schema.Block{ID: "b4", Spec: &schema.AIBlock{Prompts: []string{"{Answer}"}, Outputs: []schema.AIOutput{{Name: "X"}}}},
		&schema.Block{ID: "b5", Spec: &schema.AIBlock{Model: "claude", Prompts: []string{"{X}"}}},
		&schema.Block{ID: "b6", Spec: &schema.LogicBlock{
			Op:      &schema.CondOp{Op: "frobnicate", Cond: "{X}"},
			Outputs: []schema.LogicOutput{{Name: "F"}},
		}},
		&schema.Block{ID: "b7", Spec: &schema.PythonBlock{Name: "post", Inputs: []any{"{F}"}, Outputs: schema.NameList{"Out"}}},
		&schema.Block{ID: "b8", Spec: &schema.UnknownBlock{TypeName: "robot", Fields: map[string]any{}}},
	)

	r := newDV(t).Validate(context.Background(), doc)
	assert.True(t, r.Valid())

	assert.Contains(t, codes(issuesFor(r.Warnings, "b4")), CodeEmptyModel)
	b5 := codes(issuesFor(r.Warnings, "b5"))
	assert.Contains(t, b5, CodeUnknownModel)
	assert.Contains(t, b5, CodeNoOutputs)
	assert.Contains(t, codes(issuesFor(r.Warnings, "b6")), CodeUnknownOp)
	assert.Contains(t, codes(issuesFor(r.Warnings, "b7")), CodeNoEntrypoint)
	assert.Contains(t, codes(issuesFor(r.Warnings, "b8")), CodeUnknownType)
}

func TestValidate_NoEndBlock(t *testing.T) {
	doc := validDoc()
	doc.Blocks = doc.Blocks[:2]

	r := newDV(t).Validate(context.Background(), doc)
	assert.True(t, r.HasCode(CodeNoEnd))
}

func TestValidate_GraphWarnings(t *testing.T) {
	doc := validDoc()
	doc.Blocks = append(doc.Blocks,
		&schema.Block{ID: "c1", Spec: &schema.AIBlock{Model: "gpt-4o", Prompts: []string{"{Pong}"}, Outputs: []schema.AIOutput{{Name: "Ping"}}}},
		&schema.Block{ID: "c2", Spec: &schema.AIBlock{Model: "gpt-4o", Prompts: []string{"{Ping}"}, Outputs: []schema.AIOutput{{Name: "Pong"}}}},
		&schema.Block{ID: "d1", Spec: &schema.AIBlock{Model: "gpt-4o", Prompts: []string{"{Ghost}"}, Outputs: []schema.AIOutput{{Name: "Unused"}}}},
	)

	r := newDV(t).Validate(context.Background(), doc)
	assert.True(t, r.Valid())

	assert.Contains(t, codes(issuesFor(r.Warnings, "c1")), schema.ErrCodeCycleDetected)
	assert.Contains(t, codes(issuesFor(r.Warnings, "c2")), schema.ErrCodeCycleDetected)

	d1 := issuesFor(r.Warnings, "d1")
	assert.Contains(t, codes(d1), CodeDanglingRef)
	assert.Contains(t, codes(d1), CodeIsolated)
	assert.Equal(t, "blocks[5]", d1[0].Path)

	assert.Empty(t, issuesFor(r.Warnings, "b2"))
}
