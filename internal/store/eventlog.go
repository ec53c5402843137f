package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rendis/mabelstudio/internal/streaming"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// AppendEvent appends an event with a monotonically increasing per-project sequence.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx may start a deferred transaction. A write-intent
	// statement forces the write lock before the sequence is read.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE project_id = ?`, event.ProjectID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (project_id, block_id, event_type, payload, request_id, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ProjectID, nullStr(event.BlockID), event.Type, nullRaw(event.Payload), nullStr(event.RequestID),
		event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a project with sequence > since, ordered by sequence ASC.
func (s *LibSQLStore) GetEvents(ctx context.Context, projectID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, block_id, event_type, payload, request_id, timestamp, sequence
		 FROM events WHERE project_id = ? AND sequence > ? ORDER BY sequence ASC`,
		projectID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEventsByType returns events of one type matching the filter, newest first.
func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	where := []string{"event_type = ?"}
	args := []any{eventType}

	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.BlockID != "" {
		where = append(where, "block_id = ?")
		args = append(args, filter.BlockID)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, project_id, block_id, event_type, payload, request_id, timestamp, sequence FROM events WHERE ` +
		strings.Join(where, " AND ") + " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	events := []*Event{}
	for rows.Next() {
		e := &Event{}
		var blockID, payload, requestID sql.NullString
		if err := rows.Scan(&e.ID, &e.ProjectID, &blockID, &e.Type, &payload, &requestID, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.BlockID = blockID.String
		e.RequestID = requestID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// BlockActivity summarizes the logged history of one block.
type BlockActivity struct {
	BlockID     string    `json:"block_id"`
	Changes     int       `json:"changes"`
	Removed     bool      `json:"removed"`
	FirstSeen   time.Time `json:"first_seen"`
	LastChanged time.Time `json:"last_changed"`
	LastEvent   string    `json:"last_event"`
}

// EventLog provides history operations on top of a Store.
type EventLog struct {
	store Store
}

// NewEventLog wraps a Store to provide history operations.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// BlockHistory replays the events of a project and returns per-block
// activity. Returns an error if sequence gaps are detected.
func (el *EventLog) BlockHistory(ctx context.Context, projectID string) (map[string]*BlockActivity, error) {
	events, err := el.store.GetEvents(ctx, projectID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	history := make(map[string]*BlockActivity)
	for i, e := range events {
		if expected := int64(i + 1); e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in project %s: expected %d, got %d", projectID, expected, e.Sequence)
		}
		if e.BlockID == "" {
			continue
		}
		a, ok := history[e.BlockID]
		if !ok {
			a = &BlockActivity{BlockID: e.BlockID, FirstSeen: e.Timestamp}
			history[e.BlockID] = a
		}
		a.Changes++
		a.LastChanged = e.Timestamp
		a.LastEvent = e.Type

		switch e.Type {
		case schema.EventBlockRemoved:
			a.Removed = true
		case schema.EventBlockAdded:
			a.Removed = false
		}
	}
	return history, nil
}

// Record persists every hub event matching filter until ctx is cancelled.
// Events without a project are ignored.
func (el *EventLog) Record(ctx context.Context, hub streaming.Hub, filter streaming.Filter, logger *slog.Logger) error {
	ch, cancel, err := hub.Subscribe(ctx, filter)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.ProjectID == "" {
				continue
			}
			if err := el.store.AppendEvent(ctx, fromStreaming(ev)); err != nil && ctx.Err() == nil {
				logger.Warn("record event", "project_id", ev.ProjectID, "type", ev.Type, "error", err)
			}
		}
	}
}

func fromStreaming(ev streaming.Event) *Event {
	e := &Event{
		ProjectID: ev.ProjectID,
		BlockID:   ev.BlockID,
		Type:      ev.Type,
		Timestamp: ev.Time,
	}
	if ev.Payload != nil {
		if raw, err := json.Marshal(ev.Payload); err == nil {
			e.Payload = raw
		}
	}
	return e
}
