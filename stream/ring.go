package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// BackpressurePolicy decides what a Ring does when its buffer is full and a
// new chunk arrives from the producer.
type BackpressurePolicy string

const (
	// BlockProducer suspends the producer until the consumer drains a slot.
	BlockProducer BackpressurePolicy = "BlockProducer"
	// DropOldest evicts the oldest buffered chunk to make room, counting
	// the drop for telemetry.
	DropOldest BackpressurePolicy = "DropOldest"
	// Adaptive grows or shrinks capacity between Min and Max based on
	// observed consumer lag, falling back to BlockProducer at Max.
	Adaptive BackpressurePolicy = "Adaptive"
)

// Ring is a bounded backpressure buffer sitting between a streaming
// producer (a Session's network reader) and a consumer. It implements
// Session itself so callers consume it exactly like the underlying stream.
type Ring struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []Chunk
	capMin   int
	capMax   int
	cap      int
	policy   BackpressurePolicy
	closed   bool
	err      error

	dropped        atomic.Int64
	sampleInterval time.Duration
	lastSample     time.Time
	lastConsumed   int64
	consumed       atomic.Int64
}

// NewRing wraps source with a bounded buffer of initial capacity cap
// (capMin/capMax bound Adaptive's resizing; for BlockProducer/DropOldest
// they should equal cap). The producer goroutine pumps from source until
// it is exhausted, the Ring is closed, or ctx is cancelled.
func NewRing(ctx context.Context, source Session, capInitial, capMin, capMax int, policy BackpressurePolicy, sampleInterval time.Duration) *Ring {
	r := &Ring{
		buf: make([]Chunk, 0, capInitial), cap: capInitial,
		capMin: capMin, capMax: capMax, policy: policy,
		sampleInterval: sampleInterval, lastSample: time.Now(),
	}
	r.notEmpty = sync.NewCond(&r.mu)
	r.notFull = sync.NewCond(&r.mu)
	go r.pump(ctx, source)
	return r
}

func (r *Ring) pump(ctx context.Context, source Session) {
	for {
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return
		}
		chunk, ok := source.Next(ctx)
		if !ok {
			r.mu.Lock()
			r.closed = true
			r.err = source.Err()
			r.mu.Unlock()
			r.notEmpty.Broadcast()
			return
		}
		r.push(chunk)
		if chunk.IsFinal {
			r.mu.Lock()
			r.closed = true
			r.mu.Unlock()
			r.notEmpty.Broadcast()
			return
		}
	}
}

func (r *Ring) push(chunk Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.buf) >= r.cap && !r.closed {
		switch r.policy {
		case DropOldest:
			if len(r.buf) > 0 {
				r.buf = r.buf[1:]
				r.dropped.Add(1)
			}
		case Adaptive:
			if r.cap < r.capMax {
				r.cap++
			} else {
				r.notFull.Wait()
			}
		default: // BlockProducer
			r.notFull.Wait()
		}
	}

	r.buf = append(r.buf, chunk)
	r.notEmpty.Signal()
}

// Next implements Session. It blocks until a chunk is buffered, the
// producer closes, or ctx is cancelled.
func (r *Ring) Next(ctx context.Context) (Chunk, bool) {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.notEmpty.Broadcast()
		r.mu.Unlock()
	})
	defer stop()
	r.mu.Lock()
	for len(r.buf) == 0 && !r.closed {
		if ctx.Err() != nil {
			r.mu.Unlock()
			return Chunk{}, false
		}
		r.notEmpty.Wait()
	}
	if len(r.buf) == 0 {
		r.mu.Unlock()
		return Chunk{}, false
	}
	chunk := r.buf[0]
	r.buf = r.buf[1:]
	r.notFull.Signal()
	r.mu.Unlock()

	r.consumed.Add(1)
	r.maybeAdapt()
	return chunk, true
}

// maybeAdapt samples consumer throughput every sampleInterval and, under
// the Adaptive policy, nudges capacity by ±10% toward observed demand.
func (r *Ring) maybeAdapt() {
	if r.policy != Adaptive || r.sampleInterval <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastSample) < r.sampleInterval {
		return
	}
	consumedNow := r.consumed.Load()
	lag := int64(len(r.buf))
	delta := consumedNow - r.lastConsumed
	r.lastConsumed = consumedNow
	r.lastSample = now

	switch {
	case lag > int64(r.cap)/2:
		newCap := r.cap + r.cap/10
		if newCap > r.capMax {
			newCap = r.capMax
		}
		r.cap = newCap
	case delta > 0 && lag == 0:
		newCap := r.cap - r.cap/10
		if newCap < r.capMin {
			newCap = r.capMin
		}
		r.cap = newCap
	}
	r.notFull.Broadcast()
}

// Err returns the terminal error from the underlying source, if any.
func (r *Ring) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close stops delivering buffered chunks; the producer goroutine observes
// ctx cancellation on its own and exits.
func (r *Ring) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.notEmpty.Broadcast()
	r.notFull.Broadcast()
	return nil
}

// Dropped returns the count of chunks evicted under DropOldest.
func (r *Ring) Dropped() int64 { return r.dropped.Load() }

// Capacity returns the buffer's current capacity (mutable under Adaptive).
func (r *Ring) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cap
}
