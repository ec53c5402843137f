package expressions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mabelstudio/pkg/schema"
)

func TestNewGoJQEngine(t *testing.T) {
	e := NewGoJQEngine()
	assert.Equal(t, "jq", e.Name())
}

func TestGoJQ_Evaluate(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()
	data := map[string]any{"items": []any{1.0, 2.0, 3.0}}

	out, err := e.Evaluate(ctx, ".items | length", data)
	require.NoError(t, err)
	assert.Equal(t, 3, out)

	out, err = e.Evaluate(ctx, ".items[]", data)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, out)

	out, err = e.Evaluate(ctx, "empty", data)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQ_QueryDocument(t *testing.T) {
	e := NewGoJQEngine()
	doc := schema.NewDocument()
	doc.Blocks = sampleBlocks()

	got, err := e.Query(context.Background(), `[.blocks[] | select(.type == "ai") | .id]`, doc)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"b2"}}, got)

	got, err = e.Query(context.Background(), `[.blocks[] | select(.type != "start") | .outputs[]?.name]`, doc)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"Answer", "Flag"}}, got)
}

func TestGoJQ_Errors(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()
	var se *schema.StudioError

	_, err := e.Evaluate(ctx, "", nil)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, schema.ErrCodeValidation, se.Code)

	_, err = e.Evaluate(ctx, ".[", map[string]any{})
	require.True(t, errors.As(err, &se))
	assert.Equal(t, schema.ErrCodeQuery, se.Code)

	_, err = e.Evaluate(ctx, `error("boom")`, map[string]any{})
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Message, "boom")
}

func TestGoJQ_EnvIsSandboxed(t *testing.T) {
	t.Setenv("MABEL_SECRET", "s3cret")
	e := NewGoJQEngine()

	out, err := e.Evaluate(context.Background(), `$ENV.MABEL_SECRET`, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}
