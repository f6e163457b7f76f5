package eventstore

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Subscriber is an in-process or outbound-route event consumer. Handle must
// be idempotent: dispatch is at-least-once, so the same event may reach
// Handle more than once across retries or after a crash.
type Subscriber struct {
	ID     string
	Handle func(ctx context.Context, event Event) error
}

// Dispatcher reads new events per aggregate in commit order and fans them
// out to all registered subscribers. Delivery to distinct subscribers for
// the same event runs concurrently (via errgroup); delivery for a single
// aggregate's events is strictly sequential, preserving per-aggregate
// ordering, but distinct aggregates are processed independently and make no
// cross-aggregate ordering guarantee, per spec.md's open question on
// dispatcher ordering.
type Dispatcher struct {
	Store       Store
	Subscribers []Subscriber
	Cursors     CursorStore
	DLQ         DLQ
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	mu       sync.Mutex
	attempts map[string]int // dlqKey(eventID, subscriberID) -> attempt count
}

// DispatcherCursorName is the CursorStore projection name the dispatcher
// uses to track its own per-aggregate progress, distinct from any named
// projection also tracking the same aggregate.
const DispatcherCursorName = "__dispatcher__"

func (d *Dispatcher) init() {
	if d.attempts == nil {
		d.attempts = make(map[string]int)
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = 5
	}
	if d.BaseDelay <= 0 {
		d.BaseDelay = 100 * time.Millisecond
	}
	if d.MaxDelay <= 0 {
		d.MaxDelay = 30 * time.Second
	}
}

// DispatchAggregate delivers any events for aggregateID committed after the
// dispatcher's last recorded cursor to every subscriber, advancing the
// cursor one event at a time so a crash mid-fan-out resumes at the event
// that was in flight rather than skipping it.
func (d *Dispatcher) DispatchAggregate(ctx context.Context, aggregateID string) error {
	d.mu.Lock()
	d.init()
	d.mu.Unlock()

	from, err := d.Cursors.LoadCursor(ctx, DispatcherCursorName, aggregateID)
	if err != nil {
		return err
	}
	events, err := d.Store.LoadEvents(ctx, aggregateID, from, 0)
	if err != nil {
		return err
	}

	for _, e := range events {
		if err := d.deliverOne(ctx, e); err != nil {
			return err
		}
		if err := d.Cursors.SaveCursor(ctx, DispatcherCursorName, Cursor{AggregateID: aggregateID, Version: e.AggregateVersion}); err != nil {
			return err
		}
	}
	return nil
}

// deliverOne fans event out to every subscriber concurrently, retrying each
// failed delivery with backoff up to MaxAttempts before writing that
// (event, subscriber) pair to the DLQ. A subscriber going to the DLQ does
// not block or fail delivery to the others.
func (d *Dispatcher) deliverOne(ctx context.Context, event Event) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range d.Subscribers {
		sub := sub
		g.Go(func() error {
			d.deliverToSubscriber(gctx, event, sub)
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) deliverToSubscriber(ctx context.Context, event Event, sub Subscriber) {
	key := dlqKey(event.EventID, sub.ID)

	for {
		err := sub.Handle(ctx, event)
		if err == nil {
			d.mu.Lock()
			delete(d.attempts, key)
			d.mu.Unlock()
			return
		}

		d.mu.Lock()
		d.attempts[key]++
		attempt := d.attempts[key]
		d.mu.Unlock()

		if attempt >= d.MaxAttempts {
			_ = d.DLQ.Add(ctx, DLQEntry{
				Event: event, SubscriberID: sub.ID, Reason: err.Error(),
				Attempts: attempt, FailedAt: time.Now().UTC(),
			})
			return
		}

		delay := backoffDelay(attempt, d.BaseDelay, d.MaxDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// backoffDelay computes exponential backoff with jitter: base * 2^(attempt-1),
// capped at maxDelay, with up to ±20% jitter, matching the retry semantics
// spec.md applies uniformly to node retries and dispatcher retries alike.
func backoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	mult := math.Pow(2, float64(attempt-1))
	d := time.Duration(float64(base) * mult)
	if d > maxDelay {
		d = maxDelay
	}
	jitter := 1 + (rand.Float64()*0.4 - 0.2) // nolint:gosec // scheduling jitter, not security sensitive
	return time.Duration(float64(d) * jitter)
}

// RequeueFromDLQ resets both the DLQ entry and the dispatcher's own attempt
// counter for (eventID, subscriberID), and rewinds the dispatcher cursor to
// just before the event, so the pair is retried fresh on the next
// DispatchAggregate pass covering that event's aggregate. That pass
// redelivers the event to every subscriber, which Handle's idempotency
// requirement covers.
func (d *Dispatcher) RequeueFromDLQ(ctx context.Context, eventID, subscriberID string) error {
	entry, err := d.DLQ.Inspect(ctx, eventID, subscriberID)
	if err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.attempts, dlqKey(eventID, subscriberID))
	d.mu.Unlock()
	if err := d.DLQ.Requeue(ctx, eventID, subscriberID); err != nil {
		return err
	}
	aggregateID := entry.Event.AggregateID
	cursor, err := d.Cursors.LoadCursor(ctx, DispatcherCursorName, aggregateID)
	if err != nil {
		return err
	}
	if rewind := entry.Event.AggregateVersion - 1; cursor > rewind {
		return d.Cursors.SaveCursor(ctx, DispatcherCursorName, Cursor{AggregateID: aggregateID, Version: rewind})
	}
	return nil
}

// Run polls aggregateIDs for new events every interval until ctx is
// cancelled, dispatching concurrently across aggregates.
func (d *Dispatcher) Run(ctx context.Context, aggregateIDs func() []string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g, gctx := errgroup.WithContext(ctx)
			for _, id := range aggregateIDs() {
				id := id
				g.Go(func() error {
					return d.DispatchAggregate(gctx, id)
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
		}
	}
}
