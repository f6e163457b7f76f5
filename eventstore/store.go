package eventstore

import (
	"context"
	"errors"

	"github.com/flowcore/wfengine/errs"
)

// ErrNotFound is returned when a requested aggregate, snapshot, or
// projection cursor does not exist. Mirrors the teacher's store.ErrNotFound
// sentinel (graph/store/store.go).
var ErrNotFound = errors.New("eventstore: not found")

// Store is the append-only, per-aggregate event log with optimistic
// concurrency and snapshotting. Implementations: memorystore (tests/single
// process), sqlitestore, mysqlstore.
type Store interface {
	// Append inserts events for aggregateID starting at expectedVersion+1,
	// within a single atomic operation. If the aggregate's current max
	// version does not equal expectedVersion, it returns a
	// ConcurrencyConflict error (errs.KindConcurrencyConflict) carrying both
	// versions and appends nothing. On success returns the new max version.
	Append(ctx context.Context, aggregateID string, expectedVersion int64, events []Event) (newVersion int64, err error)

	// LoadEvents returns events for aggregateID with version in
	// (fromVersion, toVersion], ascending by version. toVersion <= 0 means
	// "through the latest version". memorystore and sqlitestore verify
	// checksums on read and return a Serialization error on a mismatch;
	// mysqlstore does not verify them.
	LoadEvents(ctx context.Context, aggregateID string, fromVersion, toVersion int64) ([]Event, error)

	// CurrentVersion returns the highest version appended for aggregateID,
	// or 0 if the aggregate has no events yet.
	CurrentVersion(ctx context.Context, aggregateID string) (int64, error)

	// SaveSnapshot stores snap as the new current snapshot for its
	// aggregate, superseding any prior snapshot for the same aggregate.
	SaveSnapshot(ctx context.Context, snap Snapshot) error

	// LoadSnapshot returns the current snapshot for aggregateID, or
	// ErrNotFound if none has been taken.
	LoadSnapshot(ctx context.Context, aggregateID string) (Snapshot, error)
}

// Apply is a pure state-transition function supplied per aggregate type:
// given the state before an event and the event itself, it returns the
// state after. Replay folds Apply over an aggregate's event stream in
// version order; it must be deterministic and side-effect free.
type Apply[S any] func(state S, event Event) S

// Replay reconstructs an aggregate's state by loading its snapshot (if any)
// followed by subsequent events, and folding apply over them in version
// order. zero is the state to start from if no snapshot exists.
func Replay[S any](ctx context.Context, store Store, aggregateID string, zero S, apply Apply[S]) (S, int64, error) {
	state := zero
	fromVersion := int64(0)

	snap, err := store.LoadSnapshot(ctx, aggregateID)
	switch {
	case err == nil:
		if jsonErr := decodeSnapshot(snap, &state); jsonErr != nil {
			return zero, 0, jsonErr
		}
		fromVersion = snap.AggregateVersion
	case errors.Is(err, ErrNotFound):
		// no snapshot yet; replay from the beginning
	default:
		return zero, 0, err
	}

	events, err := store.LoadEvents(ctx, aggregateID, fromVersion, 0)
	if err != nil {
		return zero, 0, err
	}

	version := fromVersion
	for _, e := range events {
		if !e.VerifyChecksum() {
			return zero, 0, errs.Serialization("eventstore: checksum mismatch for event " + e.EventID)
		}
		state = apply(state, e)
		version = e.AggregateVersion
	}
	return state, version, nil
}
