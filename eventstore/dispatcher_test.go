package eventstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowcore/wfengine/eventstore/memorystore"
)

func TestDispatcherDeliversToAllSubscribers(t *testing.T) {
	store := memorystore.New()
	ctx := context.Background()
	events := []Event{NewEvent("e1", "run-1", "workflow", "WorkflowStarted", []byte(`{}`))}
	if _, err := store.Append(ctx, "run-1", 0, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var a, b atomic.Int32
	d := &Dispatcher{
		Store:   store,
		Cursors: NewMemoryCursorStore(),
		DLQ:     NewMemoryDLQ(),
		Subscribers: []Subscriber{
			{ID: "a", Handle: func(ctx context.Context, e Event) error { a.Add(1); return nil }},
			{ID: "b", Handle: func(ctx context.Context, e Event) error { b.Add(1); return nil }},
		},
	}

	if err := d.DispatchAggregate(ctx, "run-1"); err != nil {
		t.Fatalf("DispatchAggregate: %v", err)
	}
	if a.Load() != 1 || b.Load() != 1 {
		t.Fatalf("expected both subscribers to receive the event once, got a=%d b=%d", a.Load(), b.Load())
	}
}

func TestDispatcherDoesNotRedeliverPastCursor(t *testing.T) {
	store := memorystore.New()
	ctx := context.Background()
	events := []Event{NewEvent("e1", "run-1", "workflow", "WorkflowStarted", []byte(`{}`))}
	if _, err := store.Append(ctx, "run-1", 0, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var count atomic.Int32
	d := &Dispatcher{
		Store:   store,
		Cursors: NewMemoryCursorStore(),
		DLQ:     NewMemoryDLQ(),
		Subscribers: []Subscriber{
			{ID: "a", Handle: func(ctx context.Context, e Event) error { count.Add(1); return nil }},
		},
	}

	if err := d.DispatchAggregate(ctx, "run-1"); err != nil {
		t.Fatalf("DispatchAggregate: %v", err)
	}
	if err := d.DispatchAggregate(ctx, "run-1"); err != nil {
		t.Fatalf("second DispatchAggregate: %v", err)
	}
	if count.Load() != 1 {
		t.Fatalf("expected event delivered exactly once across two passes, got %d", count.Load())
	}
}

func TestDispatcherSendsToDLQAfterMaxAttempts(t *testing.T) {
	store := memorystore.New()
	ctx := context.Background()
	events := []Event{NewEvent("e1", "run-1", "workflow", "WorkflowStarted", []byte(`{}`))}
	if _, err := store.Append(ctx, "run-1", 0, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var calls atomic.Int32
	dlq := NewMemoryDLQ()
	d := &Dispatcher{
		Store: store, Cursors: NewMemoryCursorStore(), DLQ: dlq,
		MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond,
		Subscribers: []Subscriber{
			{ID: "flaky", Handle: func(ctx context.Context, e Event) error {
				calls.Add(1)
				return errors.New("boom")
			}},
		},
	}

	if err := d.DispatchAggregate(ctx, "run-1"); err != nil {
		t.Fatalf("DispatchAggregate: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly MaxAttempts calls, got %d", calls.Load())
	}
	entries, err := dlq.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one DLQ entry, got %d", len(entries))
	}
	if entries[0].SubscriberID != "flaky" {
		t.Fatalf("expected flaky subscriber in DLQ, got %s", entries[0].SubscriberID)
	}
}

func TestRequeueFromDLQAllowsRetry(t *testing.T) {
	store := memorystore.New()
	ctx := context.Background()
	events := []Event{NewEvent("e1", "run-1", "workflow", "WorkflowStarted", []byte(`{}`))}
	if _, err := store.Append(ctx, "run-1", 0, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var fail atomic.Bool
	fail.Store(true)
	var delivered atomic.Int32
	var mu sync.Mutex
	dlq := NewMemoryDLQ()
	cursors := NewMemoryCursorStore()
	d := &Dispatcher{
		Store: store, Cursors: cursors, DLQ: dlq,
		MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond,
		Subscribers: []Subscriber{
			{ID: "sub", Handle: func(ctx context.Context, e Event) error {
				mu.Lock()
				defer mu.Unlock()
				if fail.Load() {
					return errors.New("boom")
				}
				delivered.Add(1)
				return nil
			}},
		},
	}

	if err := d.DispatchAggregate(ctx, "run-1"); err != nil {
		t.Fatalf("DispatchAggregate: %v", err)
	}
	if _, err := dlq.Inspect(ctx, "e1", "sub"); err != nil {
		t.Fatalf("expected DLQ entry before requeue: %v", err)
	}

	fail.Store(false)
	if err := d.RequeueFromDLQ(ctx, "e1", "sub"); err != nil {
		t.Fatalf("RequeueFromDLQ: %v", err)
	}

	// The cursor advanced past e1 once its subscriber went to the DLQ;
	// RequeueFromDLQ rewinds it, so the next pass redelivers e1.
	if err := d.DispatchAggregate(ctx, "run-1"); err != nil {
		t.Fatalf("DispatchAggregate after requeue: %v", err)
	}
	if delivered.Load() != 1 {
		t.Fatalf("expected e1 redelivered once after requeue, got %d", delivered.Load())
	}
	if v, _ := cursors.LoadCursor(ctx, DispatcherCursorName, "run-1"); v != 1 {
		t.Fatalf("expected dispatcher cursor back at version 1, got %d", v)
	}
}

func TestDLQPurgeRemovesEntry(t *testing.T) {
	dlq := NewMemoryDLQ()
	ctx := context.Background()
	_ = dlq.Add(ctx, DLQEntry{Event: Event{EventID: "e1"}, SubscriberID: "sub"})
	if err := dlq.Purge(ctx, "e1", "sub"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := dlq.Inspect(ctx, "e1", "sub"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after purge, got %v", err)
	}
}
