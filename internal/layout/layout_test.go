package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mabelstudio/pkg/schema"
)

func block(id string, exec int) *schema.Block {
	return &schema.Block{ID: id, Exec: exec, Spec: &schema.AIBlock{}}
}

func TestSnap(t *testing.T) {
	assert.Equal(t, schema.Position{X: 48, Y: 360}, Snap(schema.Position{X: 40, Y: 365}))
	assert.Equal(t, schema.Position{X: 24, Y: 0}, Snap(schema.Position{X: 12, Y: 11.9}))
	assert.Equal(t, schema.Position{X: 0, Y: 0}, Snap(schema.Position{X: -12, Y: 0}))
}

func TestByExec_ColumnsAndCentering(t *testing.T) {
	blocks := []*schema.Block{block("a", 1), block("b", 2), block("c", 2)}
	moved := ByExec(blocks, Options{WorldHeight: 900})

	assert.ElementsMatch(t, []string{"a", "b", "c"}, moved)
	assert.Equal(t, schema.Position{X: 48, Y: 360}, *blocks[0].Position)
	assert.Equal(t, schema.Position{X: 480, Y: 264}, *blocks[1].Position)
	assert.Equal(t, schema.Position{X: 480, Y: 456}, *blocks[2].Position)
}

func TestByExec_ColumnsAreDenseOverDistinctLevels(t *testing.T) {
	blocks := []*schema.Block{block("a", 1), block("z", 5)}
	ByExec(blocks, Options{WorldHeight: 900})
	assert.Equal(t, 480.0, blocks[1].Position.X)
}

func TestByExec_ZeroExecCountsAsOne(t *testing.T) {
	blocks := []*schema.Block{block("start", 0), block("a", 1)}
	ByExec(blocks, Options{WorldHeight: 900})
	assert.Equal(t, blocks[0].Position.X, blocks[1].Position.X)
}

func TestByExec_SmallWorldClampsToMinY(t *testing.T) {
	blocks := []*schema.Block{block("a", 1)}
	ByExec(blocks, Options{WorldHeight: 100})
	assert.Equal(t, 24.0, blocks[0].Position.Y)
}

func TestByExec_DefaultWorldHeight(t *testing.T) {
	a := []*schema.Block{block("a", 1)}
	b := []*schema.Block{block("a", 1)}
	ByExec(a, Options{})
	ByExec(b, Options{WorldHeight: DefaultWorld})
	assert.Equal(t, *b[0].Position, *a[0].Position)
}

func TestByExec_OnlyUnsetKeepsExisting(t *testing.T) {
	placed := block("a", 1)
	placed.Position = &schema.Position{X: 500, Y: 360}
	blocks := []*schema.Block{placed, block("b", 1), block("c", 2)}

	moved := ByExec(blocks, Options{OnlyUnset: true, WorldHeight: 900})

	assert.Equal(t, []string{"b", "c"}, moved)
	assert.Equal(t, schema.Position{X: 500, Y: 360}, *placed.Position)
	require.NotNil(t, blocks[1].Position)
	assert.Equal(t, schema.Position{X: 48, Y: 552}, *blocks[1].Position)
	assert.Equal(t, schema.Position{X: 480, Y: 360}, *blocks[2].Position)
}

func TestByExec_RepeatIsStable(t *testing.T) {
	blocks := []*schema.Block{block("a", 1), block("b", 2)}
	ByExec(blocks, Options{WorldHeight: 900})
	assert.Empty(t, ByExec(blocks, Options{WorldHeight: 900}))
}
