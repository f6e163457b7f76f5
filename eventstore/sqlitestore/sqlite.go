// Package sqlitestore provides a SQLite-backed eventstore.Store, grounded on
// the teacher's SQLiteStore (graph/store/sqlite.go): WAL mode, a busy
// timeout to ride out lock contention, and auto-migrated tables on first
// use, backed by the teacher's pure-Go driver (modernc.org/sqlite).
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/eventstore"
)

// Store is a SQLite-backed eventstore.Store. Single-writer by design (SQLite
// itself serializes writers); reads proceed concurrently under WAL.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// New opens (creating if necessary) a SQLite-backed Store at path. Use
// ":memory:" for an ephemeral database, useful in tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventstore/sqlitestore: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("eventstore/sqlitestore: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			aggregate_id TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			event_type TEXT NOT NULL,
			aggregate_version INTEGER NOT NULL,
			event_data TEXT NOT NULL,
			metadata TEXT,
			occurred_at TIMESTAMP NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			correlation_id TEXT,
			causation_id TEXT,
			checksum TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			UNIQUE(aggregate_id, aggregate_version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_aggregate ON events(aggregate_id, aggregate_version)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			aggregate_id TEXT PRIMARY KEY,
			aggregate_type TEXT NOT NULL,
			aggregate_version INTEGER NOT NULL,
			snapshot_data TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("eventstore/sqlitestore: create tables: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append implements eventstore.Store. The expected-version check and the
// insert run inside one transaction so a concurrent Append for the same
// aggregate either sees the updated version or blocks on SQLite's writer
// lock — there is no window for two appends to both believe they own
// expectedVersion+1.
func (s *Store) Append(ctx context.Context, aggregateID string, expectedVersion int64, events []eventstore.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("eventstore/sqlitestore: begin: %w", err)
	}
	defer tx.Rollback()

	var actual int64
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(aggregate_version), 0) FROM events WHERE aggregate_id = ?`, aggregateID)
	if err := row.Scan(&actual); err != nil {
		return 0, fmt.Errorf("eventstore/sqlitestore: read version: %w", err)
	}
	if actual != expectedVersion {
		return actual, errs.ConcurrencyConflict(aggregateID, expectedVersion, actual)
	}

	version := expectedVersion
	for _, e := range events {
		version++
		e = e.WithChecksum(version)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (event_id, aggregate_id, aggregate_type, event_type,
				aggregate_version, event_data, metadata, occurred_at, recorded_at,
				correlation_id, causation_id, checksum, schema_version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.EventID, e.AggregateID, e.AggregateType, e.EventType, e.AggregateVersion,
			string(e.Data), string(e.Metadata), e.OccurredAt, e.RecordedAt,
			e.CorrelationID, e.CausationID, e.Checksum, e.SchemaVersion)
		if err != nil {
			return 0, fmt.Errorf("eventstore/sqlitestore: insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("eventstore/sqlitestore: commit: %w", err)
	}
	return version, nil
}

// LoadEvents implements eventstore.Store.
func (s *Store) LoadEvents(ctx context.Context, aggregateID string, fromVersion, toVersion int64) ([]eventstore.Event, error) {
	query := `SELECT event_id, aggregate_id, aggregate_type, event_type, aggregate_version,
		event_data, metadata, occurred_at, recorded_at, correlation_id, causation_id,
		checksum, schema_version FROM events WHERE aggregate_id = ? AND aggregate_version > ?`
	args := []any{aggregateID, fromVersion}
	if toVersion > 0 {
		query += " AND aggregate_version <= ?"
		args = append(args, toVersion)
	}
	query += " ORDER BY aggregate_version ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventstore/sqlitestore: query events: %w", err)
	}
	defer rows.Close()

	var out []eventstore.Event
	for rows.Next() {
		var e eventstore.Event
		var data, metadata, correlationID, causationID sql.NullString
		if err := rows.Scan(&e.EventID, &e.AggregateID, &e.AggregateType, &e.EventType,
			&e.AggregateVersion, &data, &metadata, &e.OccurredAt, &e.RecordedAt,
			&correlationID, &causationID, &e.Checksum, &e.SchemaVersion); err != nil {
			return nil, fmt.Errorf("eventstore/sqlitestore: scan event: %w", err)
		}
		e.Data = []byte(data.String)
		e.Metadata = []byte(metadata.String)
		e.CorrelationID = correlationID.String
		e.CausationID = causationID.String
		if !e.VerifyChecksum() {
			return nil, errs.Serialization("eventstore/sqlitestore: checksum mismatch for event " + e.EventID)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CurrentVersion implements eventstore.Store.
func (s *Store) CurrentVersion(ctx context.Context, aggregateID string) (int64, error) {
	var version int64
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(aggregate_version), 0) FROM events WHERE aggregate_id = ?`, aggregateID)
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("eventstore/sqlitestore: read version: %w", err)
	}
	return version, nil
}

// SaveSnapshot implements eventstore.Store.
func (s *Store) SaveSnapshot(ctx context.Context, snap eventstore.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (aggregate_id, aggregate_type, aggregate_version, snapshot_data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(aggregate_id) DO UPDATE SET
			aggregate_type = excluded.aggregate_type,
			aggregate_version = excluded.aggregate_version,
			snapshot_data = excluded.snapshot_data,
			created_at = excluded.created_at`,
		snap.AggregateID, snap.AggregateType, snap.AggregateVersion, string(snap.Data), snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("eventstore/sqlitestore: save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot implements eventstore.Store.
func (s *Store) LoadSnapshot(ctx context.Context, aggregateID string) (eventstore.Snapshot, error) {
	var snap eventstore.Snapshot
	var data string
	row := s.db.QueryRowContext(ctx, `SELECT aggregate_id, aggregate_type, aggregate_version,
		snapshot_data, created_at FROM snapshots WHERE aggregate_id = ?`, aggregateID)
	err := row.Scan(&snap.AggregateID, &snap.AggregateType, &snap.AggregateVersion, &data, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return eventstore.Snapshot{}, eventstore.ErrNotFound
	}
	if err != nil {
		return eventstore.Snapshot{}, fmt.Errorf("eventstore/sqlitestore: load snapshot: %w", err)
	}
	snap.Data = []byte(data)
	return snap, nil
}
