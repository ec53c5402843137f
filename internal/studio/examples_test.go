package studio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleWorkflows(t *testing.T) {
	tests := []struct {
		file   string
		levels map[string]int
	}{
		{"support-triage.yaml", map[string]int{"b1": 1, "b2": 2, "b3": 2, "b4": 3, "b5": 4}},
		{"research-digest.yaml", map[string]int{"b1": 1, "b2": 2, "b3": 3, "b4": 4, "b5": 5}},
	}

	svc, err := New(Deps{Logger: testLogger()})
	require.NoError(t, err)
	ctx := context.Background()

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			text, err := os.ReadFile(filepath.Join("..", "..", "examples", tt.file))
			require.NoError(t, err)

			doc, err := svc.ParseYAML(text)
			require.NoError(t, err)
			insp := svc.Inspect(ctx, doc)
			assert.Equal(t, tt.levels, insp.Levels)
			assert.Empty(t, insp.Unresolved)
			assert.True(t, insp.Validation.Valid(), "%+v", insp.Validation.Errors)

			out, err := svc.ExportYAML(doc)
			require.NoError(t, err)
			assert.NotContains(t, string(out), "type: start")
			again, err := svc.ParseYAML(out)
			require.NoError(t, err)
			assert.Len(t, again.Blocks, len(doc.Blocks)-1, "start blocks are not exported")
			assert.Empty(t, svc.Inspect(ctx, again).Unresolved)
		})
	}
}
