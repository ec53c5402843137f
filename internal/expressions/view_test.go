package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mabelstudio/internal/graph"
	"github.com/rendis/mabelstudio/pkg/schema"
)

func TestBlockData(t *testing.T) {
	blocks := sampleBlocks()
	a := graph.Analyze(blocks)

	data := BlockData(blocks[1], a)
	block := data["block"].(map[string]any)
	assert.Equal(t, "b2", block["id"])
	assert.Equal(t, "ai", block["type"])
	assert.Equal(t, "gpt", block["model"])
	assert.Equal(t, int64(2), block["exec"])
	assert.Equal(t, []string{"UserInput"}, data["inputs"])
	assert.Equal(t, []string{"Answer"}, data["outputs"])
	assert.Empty(t, data["dangling"])

	gate := BlockData(blocks[2], a)
	assert.Equal(t, []string{"Missing"}, gate["dangling"])
}

func TestDocumentData(t *testing.T) {
	doc := schema.NewDocument()
	doc.Blocks = sampleBlocks()

	data, err := DocumentData(doc)
	require.NoError(t, err)
	blocks := data["blocks"].([]any)
	require.Len(t, blocks, 4)
	assert.Equal(t, "ai", blocks[1].(map[string]any)["type"])
}
