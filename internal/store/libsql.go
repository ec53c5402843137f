package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/mabelstudio/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Projects ---

func (s *LibSQLStore) CreateProject(ctx context.Context, p *Project) error {
	doc, err := json.Marshal(p.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	p.CreatedAt = timeOrNow(p.CreatedAt)
	p.UpdatedAt = p.CreatedAt
	p.BlockCount = len(p.Document.Blocks)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, document, block_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, nullStr(p.Description), string(doc), p.BlockCount, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil && isConstraintErr(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "project %q already exists", p.ID).WithCause(err)
	}
	return err
}

func (s *LibSQLStore) GetProject(ctx context.Context, id string) (*Project, error) {
	p := &Project{}
	var (
		desc sql.NullString
		doc  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, document, block_count, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &desc, &doc, &p.BlockCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("project", id)
	}
	if err != nil {
		return nil, err
	}
	p.Description = desc.String
	if err := json.Unmarshal([]byte(doc), &p.Document); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "decode project %q document", id).WithCause(err)
	}
	return p, nil
}

func (s *LibSQLStore) UpdateProject(ctx context.Context, id string, update ProjectUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullStr(*update.Description))
	}
	if update.Document != nil {
		doc, err := json.Marshal(update.Document)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		sets = append(sets, "document = ?", "block_count = ?")
		args = append(args, string(doc), len(update.Document.Blocks))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf("UPDATE projects SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "project", id)
}

func (s *LibSQLStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]*ProjectSummary, error) {
	var where []string
	var args []any

	if filter.NameContains != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+filter.NameContains+"%")
	}
	if filter.Since != nil {
		where = append(where, "updated_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT id, name, description, block_count, created_at, updated_at FROM projects"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []*ProjectSummary{}
	for rows.Next() {
		p := &ProjectSummary{}
		var desc sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.BlockCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Description = desc.String
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project and, through the foreign key, its revisions.
// Its events are kept.
func (s *LibSQLStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "project", id)
}

// --- Revisions ---

// SaveRevision stores a snapshot and assigns it the next per-project number.
func (s *LibSQLStore) SaveRevision(ctx context.Context, rev *Revision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, rev.ProjectID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check project: %w", err)
	}
	if exists == 0 {
		return storeNotFound("project", rev.ProjectID)
	}

	var n int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) + 1 FROM revisions WHERE project_id = ?`, rev.ProjectID,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("get next revision: %w", err)
	}
	rev.Number = n
	rev.CreatedAt = timeOrNow(rev.CreatedAt)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO revisions (project_id, number, yaml, message, block_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rev.ProjectID, rev.Number, rev.YAML, nullStr(rev.Message), rev.BlockCount, rev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revision: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetRevision(ctx context.Context, projectID string, number int64) (*Revision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT project_id, number, yaml, message, block_count, created_at FROM revisions
		 WHERE project_id = ? AND number = ?`, projectID, number)
	rev, err := scanRevision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("revision", fmt.Sprintf("%s#%d", projectID, number))
	}
	return rev, err
}

func (s *LibSQLStore) LatestRevision(ctx context.Context, projectID string) (*Revision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT project_id, number, yaml, message, block_count, created_at FROM revisions
		 WHERE project_id = ? ORDER BY number DESC LIMIT 1`, projectID)
	rev, err := scanRevision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("revision", projectID)
	}
	return rev, err
}

// ListRevisions returns the newest revisions first.
func (s *LibSQLStore) ListRevisions(ctx context.Context, projectID string, limit int) ([]*Revision, error) {
	query := `SELECT project_id, number, yaml, message, block_count, created_at FROM revisions
		WHERE project_id = ? ORDER BY number DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	revs := []*Revision{}
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

// PruneRevisions keeps the newest keep revisions of every project and deletes
// the rest. A non-positive keep disables pruning.
func (s *LibSQLStore) PruneRevisions(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM revisions WHERE number <= (
			SELECT MAX(r.number) FROM revisions r WHERE r.project_id = revisions.project_id
		) - ?`, keep)
	if err != nil {
		return 0, schema.NewError(schema.ErrCodeStore, "prune revisions").WithCause(err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRevision(row rowScanner) (*Revision, error) {
	rev := &Revision{}
	var msg sql.NullString
	if err := row.Scan(&rev.ProjectID, &rev.Number, &rev.YAML, &msg, &rev.BlockCount, &rev.CreatedAt); err != nil {
		return nil, err
	}
	rev.Message = msg.String
	return rev, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.StudioError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func isConstraintErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "primary key")
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
