// Package memorystore provides an in-memory eventstore.Store, grounded on
// the teacher's MemStore (graph/store/memory.go): a mutex-guarded map,
// suitable for tests and single-process use. Data does not survive process
// restart.
package memorystore

import (
	"context"
	"sync"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/eventstore"
)

// Store is an in-memory, thread-safe eventstore.Store.
type Store struct {
	mu        sync.RWMutex
	events    map[string][]eventstore.Event // aggregateID -> events, ascending version
	snapshots map[string]eventstore.Snapshot
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		events:    make(map[string][]eventstore.Event),
		snapshots: make(map[string]eventstore.Snapshot),
	}
}

// Append implements eventstore.Store.
func (s *Store) Append(_ context.Context, aggregateID string, expectedVersion int64, events []eventstore.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.events[aggregateID]
	actual := int64(len(existing))
	if actual != expectedVersion {
		return actual, errs.ConcurrencyConflict(aggregateID, expectedVersion, actual)
	}

	version := expectedVersion
	appended := make([]eventstore.Event, 0, len(events))
	for _, e := range events {
		version++
		appended = append(appended, e.WithChecksum(version))
	}
	s.events[aggregateID] = append(existing, appended...)
	return version, nil
}

// LoadEvents implements eventstore.Store.
func (s *Store) LoadEvents(_ context.Context, aggregateID string, fromVersion, toVersion int64) ([]eventstore.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.events[aggregateID]
	out := make([]eventstore.Event, 0, len(all))
	for _, e := range all {
		if e.AggregateVersion <= fromVersion {
			continue
		}
		if toVersion > 0 && e.AggregateVersion > toVersion {
			continue
		}
		if !e.VerifyChecksum() {
			return nil, errs.Serialization("eventstore/memorystore: checksum mismatch for event " + e.EventID)
		}
		out = append(out, e)
	}
	return out, nil
}

// CurrentVersion implements eventstore.Store.
func (s *Store) CurrentVersion(_ context.Context, aggregateID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events[aggregateID])), nil
}

// SaveSnapshot implements eventstore.Store.
func (s *Store) SaveSnapshot(_ context.Context, snap eventstore.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.AggregateID] = snap
	return nil
}

// LoadSnapshot implements eventstore.Store.
func (s *Store) LoadSnapshot(_ context.Context, aggregateID string) (eventstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[aggregateID]
	if !ok {
		return eventstore.Snapshot{}, eventstore.ErrNotFound
	}
	return snap, nil
}
