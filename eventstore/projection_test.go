package eventstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/flowcore/wfengine/eventstore/memorystore"
)

func TestProjectionApplyIsIdempotent(t *testing.T) {
	store := memorystore.New()
	cursors := NewMemoryCursorStore()
	ctx := context.Background()

	events := []Event{
		NewEvent("e1", "counter-1", "counter", "Incremented", []byte(`{"by":1}`)),
		NewEvent("e2", "counter-1", "counter", "Incremented", []byte(`{"by":2}`)),
	}
	if _, err := store.Append(ctx, "counter-1", 0, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	total := 0
	proj := &Projection{
		Name:    "totals",
		Version: 1,
		Handle: func(_ context.Context, e Event) error {
			var payload struct {
				By int `json:"by"`
			}
			_ = json.Unmarshal(e.Data, &payload)
			total += payload.By
			return nil
		},
	}

	if err := proj.Apply(ctx, store, cursors, "counter-1"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}

	// Re-applying after the cursor has advanced must not re-process events.
	if err := proj.Apply(ctx, store, cursors, "counter-1"); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected total to stay 3 after no-op re-apply, got %d", total)
	}
}

func TestProjectionRebuildReplaysFromStart(t *testing.T) {
	store := memorystore.New()
	cursors := NewMemoryCursorStore()
	ctx := context.Background()

	events := []Event{
		NewEvent("e1", "counter-1", "counter", "Incremented", []byte(`{"by":5}`)),
	}
	if _, err := store.Append(ctx, "counter-1", 0, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	applyCount := 0
	proj := &Projection{
		Name: "totals",
		Handle: func(_ context.Context, e Event) error {
			applyCount++
			return nil
		},
	}

	if err := proj.Apply(ctx, store, cursors, "counter-1"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := proj.Rebuild(ctx, store, cursors, "counter-1"); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if applyCount != 2 {
		t.Fatalf("expected Handle called twice (initial + rebuild), got %d", applyCount)
	}
}

func TestProjectionValidateRequiresHandle(t *testing.T) {
	p := &Projection{Name: "no-handle"}
	if err := p.Validate(); err == nil {
		t.Fatalf("expected validation error for missing Handle")
	}
}
