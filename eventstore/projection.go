package eventstore

import (
	"context"
	"errors"
	"sync"
)

// Cursor is a projection's last-processed position: the version it has
// consumed through for a given aggregate. Projections track one cursor per
// aggregate they have observed.
type Cursor struct {
	AggregateID string
	Version     int64
}

// CursorStore persists projection cursors so a projection can resume where
// it left off after a restart, and so Rebuild knows to start over.
type CursorStore interface {
	LoadCursor(ctx context.Context, projection, aggregateID string) (int64, error)
	SaveCursor(ctx context.Context, projection string, cursor Cursor) error
	ClearCursors(ctx context.Context, projection string) error
}

// MemoryCursorStore is an in-memory CursorStore, suitable for tests and
// single-process projections.
type MemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[string]map[string]int64 // projection -> aggregateID -> version
}

// NewMemoryCursorStore returns an empty MemoryCursorStore.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]map[string]int64)}
}

// LoadCursor implements CursorStore.
func (m *MemoryCursorStore) LoadCursor(_ context.Context, projection, aggregateID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if byAgg, ok := m.cursors[projection]; ok {
		return byAgg[aggregateID], nil
	}
	return 0, nil
}

// SaveCursor implements CursorStore.
func (m *MemoryCursorStore) SaveCursor(_ context.Context, projection string, cursor Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byAgg, ok := m.cursors[projection]
	if !ok {
		byAgg = make(map[string]int64)
		m.cursors[projection] = byAgg
	}
	byAgg[cursor.AggregateID] = cursor.Version
	return nil
}

// ClearCursors implements CursorStore.
func (m *MemoryCursorStore) ClearCursors(_ context.Context, projection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cursors, projection)
	return nil
}

// Projection is a named, versioned materialized view over one aggregate's
// event stream. Handle is applied once per new event, in version order;
// it must be idempotent under re-application of the same event, since
// dispatch is at-least-once.
type Projection struct {
	Name    string
	Version int

	// Handle applies event to the projection's materialized state. Handle
	// implementations own their own storage for that state; Projection only
	// tracks the replay cursor.
	Handle func(ctx context.Context, event Event) error
}

// Apply feeds new events for aggregateID through p, starting just after its
// last recorded cursor for that aggregate, and advances the cursor as each
// event is successfully handled.
func (p *Projection) Apply(ctx context.Context, store Store, cursors CursorStore, aggregateID string) error {
	from, err := cursors.LoadCursor(ctx, p.Name, aggregateID)
	if err != nil {
		return err
	}
	events, err := store.LoadEvents(ctx, aggregateID, from, 0)
	if err != nil {
		return err
	}
	for _, e := range events {
		if err := p.Handle(ctx, e); err != nil {
			return err
		}
		if err := cursors.SaveCursor(ctx, p.Name, Cursor{AggregateID: aggregateID, Version: e.AggregateVersion}); err != nil {
			return err
		}
	}
	return nil
}

// Rebuild clears p's cursor for aggregateID and re-applies the full event
// stream from version 1, per spec.md's "rebuilding clears the projection
// and re-applies from version 1" contract. The caller is responsible for
// clearing any materialized state Handle itself owns before calling Rebuild
// — Rebuild only resets the cursor and replays.
func (p *Projection) Rebuild(ctx context.Context, store Store, cursors CursorStore, aggregateID string) error {
	if err := cursors.SaveCursor(ctx, p.Name, Cursor{AggregateID: aggregateID, Version: 0}); err != nil {
		return err
	}
	return p.Apply(ctx, store, cursors, aggregateID)
}

var errNoHandler = errors.New("eventstore: projection has no Handle function")

// Validate checks that p is ready to run.
func (p *Projection) Validate() error {
	if p.Handle == nil {
		return errNoHandler
	}
	return nil
}
