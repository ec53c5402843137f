package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mabelstudio/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func sampleDocument() schema.Document {
	doc := schema.NewDocument()
	doc.Mabel.Name = "triage"
	doc.Blocks = []*schema.Block{
		{ID: "b1", Title: "Start", Exec: 1, Spec: &schema.StartBlock{Outputs: schema.NameList{"UserInput"}}},
		{ID: "b2", Title: "End", Exec: 2, Spec: &schema.EndBlock{
			ExitCode: "success",
			Final:    []schema.FinalValue{{Name: "Result", Value: "{UserInput}"}},
		}},
	}
	return *doc
}

func seedProject(t *testing.T, s *LibSQLStore) *Project {
	t.Helper()
	p := &Project{
		ID:       uuid.New().String(),
		Name:     "triage",
		Document: sampleDocument(),
	}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var se *schema.StudioError
	require.True(t, errors.As(err, &se), "expected StudioError, got %v", err)
	assert.Equal(t, code, se.Code)
}

// --- Project Tests ---

func TestCreateAndGetProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedProject(t, s)
	assert.Equal(t, 2, p.BlockCount)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "triage", got.Name)
	assert.Equal(t, 2, got.BlockCount)
	require.Len(t, got.Document.Blocks, 2)
	assert.Equal(t, "b2", got.Document.Blocks[1].ID)
	end, ok := got.Document.Blocks[1].Spec.(*schema.EndBlock)
	require.True(t, ok)
	assert.Equal(t, "success", end.ExitCode)
}

func TestCreateProject_Duplicate(t *testing.T) {
	s := newTestStore(t)
	p := seedProject(t, s)

	err := s.CreateProject(context.Background(), &Project{ID: p.ID, Name: "again", Document: sampleDocument()})
	require.Error(t, err)
	assertCode(t, err, schema.ErrCodeConflict)
}

func TestGetProject_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetProject(context.Background(), "missing")
	require.Error(t, err)
	assertCode(t, err, schema.ErrCodeNotFound)
}

func TestUpdateProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	doc := sampleDocument()
	doc.Blocks = doc.Blocks[:1]
	name := "renamed"
	desc := "one block"
	require.NoError(t, s.UpdateProject(ctx, p.ID, ProjectUpdate{Name: &name, Description: &desc, Document: &doc}))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "one block", got.Description)
	assert.Equal(t, 1, got.BlockCount)
	assert.Len(t, got.Document.Blocks, 1)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	err = s.UpdateProject(ctx, "missing", ProjectUpdate{Name: &name})
	assertCode(t, err, schema.ErrCodeNotFound)
}

func TestListProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta", "alphabet"} {
		require.NoError(t, s.CreateProject(ctx, &Project{ID: uuid.New().String(), Name: name, Document: sampleDocument()}))
	}

	all, err := s.ListProjects(ctx, ProjectFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alphas, err := s.ListProjects(ctx, ProjectFilter{NameContains: "alpha"})
	require.NoError(t, err)
	assert.Len(t, alphas, 2)

	limited, err := s.ListProjects(ctx, ProjectFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDeleteProject_CascadesRevisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	require.NoError(t, s.SaveRevision(ctx, &Revision{ProjectID: p.ID, YAML: "blocks: []\n"}))
	require.NoError(t, s.DeleteProject(ctx, p.ID))

	_, err := s.GetProject(ctx, p.ID)
	assertCode(t, err, schema.ErrCodeNotFound)

	revs, err := s.ListRevisions(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, revs)

	assertCode(t, s.DeleteProject(ctx, p.ID), schema.ErrCodeNotFound)
}

// --- Revision Tests ---

func TestSaveRevision_Numbering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)
	other := seedProject(t, s)

	for i := 1; i <= 3; i++ {
		rev := &Revision{ProjectID: p.ID, YAML: "v", BlockCount: i}
		require.NoError(t, s.SaveRevision(ctx, rev))
		assert.Equal(t, int64(i), rev.Number)
	}

	rev := &Revision{ProjectID: other.ID, YAML: "v"}
	require.NoError(t, s.SaveRevision(ctx, rev))
	assert.Equal(t, int64(1), rev.Number, "numbering is per project")

	latest, err := s.LatestRevision(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest.Number)
	assert.Equal(t, 3, latest.BlockCount)

	second, err := s.GetRevision(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, second.BlockCount)

	revs, err := s.ListRevisions(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, int64(3), revs[0].Number)
	assert.Equal(t, int64(2), revs[1].Number)
}

func TestSaveRevision_UnknownProject(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveRevision(context.Background(), &Revision{ProjectID: "missing", YAML: "v"})
	assertCode(t, err, schema.ErrCodeNotFound)
}

func TestGetRevision_NotFound(t *testing.T) {
	s := newTestStore(t)
	p := seedProject(t, s)

	_, err := s.GetRevision(context.Background(), p.ID, 9)
	assertCode(t, err, schema.ErrCodeNotFound)
	_, err = s.LatestRevision(context.Background(), p.ID)
	assertCode(t, err, schema.ErrCodeNotFound)
}

func TestPruneRevisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p1 := seedProject(t, s)
	p2 := seedProject(t, s)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveRevision(ctx, &Revision{ProjectID: p1.ID, YAML: "v"}))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, s.SaveRevision(ctx, &Revision{ProjectID: p2.ID, YAML: "v"}))
	}

	n, err := s.PruneRevisions(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.PruneRevisions(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	revs, err := s.ListRevisions(ctx, p1.ID, 0)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, int64(5), revs[0].Number)
	assert.Equal(t, int64(4), revs[1].Number)

	revs, err = s.ListRevisions(ctx, p2.ID, 0)
	require.NoError(t, err)
	assert.Len(t, revs, 2)

	rev := &Revision{ProjectID: p1.ID, YAML: "v"}
	require.NoError(t, s.SaveRevision(ctx, rev))
	assert.Equal(t, int64(6), rev.Number, "numbering continues after pruning")
}

// --- Maintenance ---

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestLoadMigrations(t *testing.T) {
	ms, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, "initial_schema", ms[0].Name)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (x INT);\n-- only a comment\n;\nCREATE INDEX i ON a(x);")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Equal(t, "CREATE INDEX i ON a(x)", stmts[1])
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	seedProject(t, s)
	require.NoError(t, s.Vacuum(context.Background()))
}

func TestListProjects_Since(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProject(t, s)

	future := time.Now().UTC().Add(time.Hour)
	got, err := s.ListProjects(ctx, ProjectFilter{Since: &future})
	require.NoError(t, err)
	assert.Empty(t, got)
}
