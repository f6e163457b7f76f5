// Package mysqlstore provides a MySQL/MariaDB-backed eventstore.Store,
// grounded on the teacher's MySQLStore (graph/store/mysql.go): pooled
// connections sized for production use, and a row-locking transaction for
// the append protocol's optimistic-concurrency check.
package mysqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/eventstore"
)

// Store is a MySQL-backed eventstore.Store.
type Store struct {
	db *sql.DB
}

// New opens a connection pool to dsn and ensures the required tables exist.
//
// DSN format: [username[:password]@][protocol[(address)]]/dbname[?params].
func New(dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventstore/mysqlstore: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventstore/mysqlstore: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_id VARCHAR(64) PRIMARY KEY,
			aggregate_id VARCHAR(64) NOT NULL,
			aggregate_type VARCHAR(128) NOT NULL,
			event_type VARCHAR(128) NOT NULL,
			aggregate_version BIGINT NOT NULL,
			event_data JSON NOT NULL,
			metadata JSON NULL,
			occurred_at TIMESTAMP(6) NOT NULL,
			recorded_at TIMESTAMP(6) NOT NULL,
			correlation_id VARCHAR(64) NULL,
			causation_id VARCHAR(64) NULL,
			checksum VARCHAR(128) NOT NULL,
			schema_version INT NOT NULL,
			UNIQUE KEY uniq_aggregate_version (aggregate_id, aggregate_version)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			aggregate_id VARCHAR(64) PRIMARY KEY,
			aggregate_type VARCHAR(128) NOT NULL,
			aggregate_version BIGINT NOT NULL,
			snapshot_data JSON NOT NULL,
			created_at TIMESTAMP(6) NOT NULL
		) ENGINE=InnoDB`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("eventstore/mysqlstore: create tables: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append implements eventstore.Store. The version check locks the
// aggregate's existing rows with SELECT ... FOR UPDATE so that two
// concurrent appends for the same aggregate serialize instead of racing.
func (s *Store) Append(ctx context.Context, aggregateID string, expectedVersion int64, events []eventstore.Event) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("eventstore/mysqlstore: begin: %w", err)
	}
	defer tx.Rollback()

	var actual int64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(aggregate_version), 0) FROM events WHERE aggregate_id = ? FOR UPDATE`, aggregateID)
	if err := row.Scan(&actual); err != nil {
		return 0, fmt.Errorf("eventstore/mysqlstore: read version: %w", err)
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
			return 0, fmt.Errorf("eventstore/mysqlstore: insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("eventstore/mysqlstore: commit: %w", err)
	}
	return version, nil
}

// LoadEvents implements eventstore.Store. It does not verify checksums on
// read; a mismatch is not reported here.
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
		return nil, fmt.Errorf("eventstore/mysqlstore: query events: %w", err)
	}
	defer rows.Close()

	var out []eventstore.Event
	for rows.Next() {
		var e eventstore.Event
		var data, metadata sql.NullString
		var correlationID, causationID sql.NullString
		if err := rows.Scan(&e.EventID, &e.AggregateID, &e.AggregateType, &e.EventType,
			&e.AggregateVersion, &data, &metadata, &e.OccurredAt, &e.RecordedAt,
			&correlationID, &causationID, &e.Checksum, &e.SchemaVersion); err != nil {
			return nil, fmt.Errorf("eventstore/mysqlstore: scan event: %w", err)
		}
		e.Data = []byte(data.String)
		e.Metadata = []byte(metadata.String)
		e.CorrelationID = correlationID.String
		e.CausationID = causationID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// CurrentVersion implements eventstore.Store.
func (s *Store) CurrentVersion(ctx context.Context, aggregateID string) (int64, error) {
	var version int64
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(aggregate_version), 0) FROM events WHERE aggregate_id = ?`, aggregateID)
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("eventstore/mysqlstore: read version: %w", err)
	}
	return version, nil
}

// SaveSnapshot implements eventstore.Store.
func (s *Store) SaveSnapshot(ctx context.Context, snap eventstore.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (aggregate_id, aggregate_type, aggregate_version, snapshot_data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			aggregate_type = VALUES(aggregate_type),
			aggregate_version = VALUES(aggregate_version),
			snapshot_data = VALUES(snapshot_data),
			created_at = VALUES(created_at)`,
		snap.AggregateID, snap.AggregateType, snap.AggregateVersion, string(snap.Data), snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("eventstore/mysqlstore: save snapshot: %w", err)
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
		return eventstore.Snapshot{}, fmt.Errorf("eventstore/mysqlstore: load snapshot: %w", err)
	}
	snap.Data = []byte(data)
	return snap, nil
}
