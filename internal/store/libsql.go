package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/nodefold/nodefold/pkg/schema"
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

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
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

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// AppendHistory persists an archived entry. The entry is immutable; a
// conflicting id is a store error, never an overwrite.
func (s *LibSQLStore) AppendHistory(ctx context.Context, entry schema.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (id, original_id, kind, label, completion_order, annotation, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.OriginalID, string(entry.Kind), entry.Label,
		entry.CompletionOrder, nullStr(entry.Annotation), entry.ArchivedAt.UTC(),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "insert history entry: %s", err.Error()).WithCause(err)
	}
	return nil
}

// ListHistory returns persisted entries ordered by completion order.
func (s *LibSQLStore) ListHistory(ctx context.Context, filter HistoryFilter) ([]schema.HistoryEntry, error) {
	query := `SELECT id, original_id, kind, label, completion_order, annotation, archived_at FROM history`
	var conds []string
	var args []any
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY completion_order ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list history: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []schema.HistoryEntry
	for rows.Next() {
		var e schema.HistoryEntry
		var kind string
		var annotation sql.NullString
		var archivedAt time.Time
		if err := rows.Scan(&e.ID, &e.OriginalID, &kind, &e.Label, &e.CompletionOrder, &annotation, &archivedAt); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan history entry: %s", err.Error()).WithCause(err)
		}
		e.Kind = schema.NodeKind(kind)
		e.Annotation = annotation.String
		e.ArchivedAt = archivedAt
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendEvent appends an event with a monotonically increasing global
// sequence. A transaction covers the sequence read and the insert so
// concurrent writers cannot interleave.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "begin tx: %s", err.Error()).WithCause(err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events`,
	).Scan(&seq); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "next sequence: %s", err.Error()).WithCause(err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (batch_id, node_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullStr(event.BatchID), nullStr(event.NodeID), event.Type,
		nullRaw(event.Payload), event.Timestamp, seq,
	); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "insert event: %s", err.Error()).WithCause(err)
	}

	if err := tx.Commit(); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "commit event: %s", err.Error()).WithCause(err)
	}
	return nil
}

// ListEvents returns events matching the filter, ordered by sequence ASC.
func (s *LibSQLStore) ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	query := `SELECT id, batch_id, node_id, event_type, payload, timestamp, sequence FROM events`
	conds := []string{"sequence > ?"}
	args := []any{filter.Since}
	if filter.BatchID != "" {
		conds = append(conds, "batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if filter.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, filter.EventType)
	}
	query += " WHERE " + strings.Join(conds, " AND ") + " ORDER BY sequence ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list events: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		var batchID, nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &batchID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan event: %s", err.Error()).WithCause(err)
		}
		e.BatchID = batchID.String
		e.NodeID = nodeID.String
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var _ Store = (*LibSQLStore)(nil)
