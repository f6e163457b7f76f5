package eventstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/flowcore/wfengine/eventstore/memorystore"
)

func TestAppendEnforcesExpectedVersion(t *testing.T) {
	store := memorystore.New()
	ctx := context.Background()

	e1 := NewEvent("e1", "run-1", "workflow", "WorkflowStarted", []byte(`{}`))
	v, err := store.Append(ctx, "run-1", 0, []Event{e1})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}

	e2 := NewEvent("e2", "run-1", "workflow", "NodeCompleted", []byte(`{}`))
	if _, err := store.Append(ctx, "run-1", 0, []Event{e2}); err == nil {
		t.Fatalf("expected ConcurrencyConflict for stale expected_version")
	}

	if _, err := store.Append(ctx, "run-1", 1, []Event{e2}); err != nil {
		t.Fatalf("Append with correct expected_version: %v", err)
	}
}

func TestAppendAssignsConsecutiveVersions(t *testing.T) {
	store := memorystore.New()
	ctx := context.Background()

	events := []Event{
		NewEvent("e1", "run-1", "workflow", "WorkflowStarted", []byte(`{}`)),
		NewEvent("e2", "run-1", "workflow", "NodeStarted", []byte(`{}`)),
		NewEvent("e3", "run-1", "workflow", "NodeCompleted", []byte(`{}`)),
	}
	if _, err := store.Append(ctx, "run-1", 0, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err := store.LoadEvents(ctx, "run-1", 0, 0)
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 events, got %d", len(loaded))
	}
	for i, e := range loaded {
		if e.AggregateVersion != int64(i+1) {
			t.Fatalf("expected consecutive versions, got %d at index %d", e.AggregateVersion, i)
		}
		if !e.VerifyChecksum() {
			t.Fatalf("event %d failed checksum verification", i)
		}
	}
}

func TestLoadEventsRangeIsExclusiveFromInclusiveTo(t *testing.T) {
	store := memorystore.New()
	ctx := context.Background()
	events := make([]Event, 5)
	for i := range events {
		events[i] = NewEvent(string(rune('a'+i)), "run-1", "workflow", "Step", []byte(`{}`))
	}
	if _, err := store.Append(ctx, "run-1", 0, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err := store.LoadEvents(ctx, "run-1", 2, 4)
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected versions 3 and 4, got %d events", len(loaded))
	}
	if loaded[0].AggregateVersion != 3 || loaded[1].AggregateVersion != 4 {
		t.Fatalf("unexpected versions: %d, %d", loaded[0].AggregateVersion, loaded[1].AggregateVersion)
	}
}

func TestReplayFoldsEventsInOrder(t *testing.T) {
	store := memorystore.New()
	ctx := context.Background()
	events := []Event{
		NewEvent("e1", "counter-1", "counter", "Incremented", []byte(`{"by":3}`)),
		NewEvent("e2", "counter-1", "counter", "Incremented", []byte(`{"by":4}`)),
	}
	if _, err := store.Append(ctx, "counter-1", 0, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	type counterEvt struct {
		By int `json:"by"`
	}
	apply := func(state int, e Event) int {
		var payload counterEvt
		_ = json.Unmarshal(e.Data, &payload)
		return state + payload.By
	}

	final, version, err := Replay(ctx, store, "counter-1", 0, apply)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if final != 7 {
		t.Fatalf("expected final state 7, got %d", final)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := memorystore.New()
	ctx := context.Background()

	_, err := store.LoadSnapshot(ctx, "agg-1")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound before any snapshot, got %v", err)
	}

	snap := Snapshot{AggregateID: "agg-1", AggregateType: "counter", AggregateVersion: 3, Data: []byte(`{"total":7}`)}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, err := store.LoadSnapshot(ctx, "agg-1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got.AggregateVersion != 3 {
		t.Fatalf("expected version 3, got %d", got.AggregateVersion)
	}
}
