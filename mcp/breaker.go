package mcp

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit-breaker states per
// (server_name, transport).
type BreakerState string

const (
	BreakerClosed   BreakerState = "Closed"
	BreakerOpen     BreakerState = "Open"
	BreakerHalfOpen BreakerState = "HalfOpen"
)

// Breaker implements Closed -> Open -> HalfOpen -> Closed per server. In
// Closed, failures accumulate in a fixed-size sliding window; once at
// least minSamples outcomes are recorded (or the window is full) and the
// failure ratio reaches failureThreshold, the breaker opens for
// openDuration. A single HalfOpen probe either restores
// Closed (success) or reopens with the duration doubled, capped at
// maxOpenDuration.
type Breaker struct {
	mu sync.Mutex

	state            BreakerState
	window           []bool // true = failure; fixed-size ring
	windowIdx        int
	windowFilled     bool
	minSamples       int
	failureThreshold float64

	openDuration    time.Duration
	currentDuration time.Duration
	maxOpenDuration time.Duration
	openUntil       time.Time

	halfOpenProbeInFlight bool
}

// NewBreaker constructs a Closed breaker. windowSize is the number of
// recent outcomes considered; minSamples is the minimum outcomes before
// the failure ratio is evaluated at all (avoids tripping on a cold start).
func NewBreaker(windowSize, minSamples int, failureThreshold float64, openDuration, maxOpenDuration time.Duration) *Breaker {
	return &Breaker{
		state: BreakerClosed, window: make([]bool, windowSize),
		minSamples: minSamples, failureThreshold: failureThreshold,
		openDuration: openDuration, currentDuration: openDuration,
		maxOpenDuration: maxOpenDuration,
	}
}

// Allow reports whether a call may proceed right now, transitioning Open
// to HalfOpen (admitting exactly one probe) once openUntil has passed.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if !now.After(b.openUntil) {
			return false
		}
		b.state = BreakerHalfOpen
		b.halfOpenProbeInFlight = true
		return true
	case BreakerHalfOpen:
		return !b.halfOpenProbeInFlight
	default:
		return true
	}
}

// RecordResult feeds one call's outcome into the breaker.
func (b *Breaker) RecordResult(success bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.halfOpenProbeInFlight = false
		if success {
			b.state = BreakerClosed
			b.currentDuration = b.openDuration
			b.resetWindowLocked()
		} else {
			b.state = BreakerOpen
			b.currentDuration *= 2
			if b.currentDuration > b.maxOpenDuration {
				b.currentDuration = b.maxOpenDuration
			}
			b.openUntil = now.Add(b.currentDuration)
		}
		return
	}

	b.window[b.windowIdx] = !success
	b.windowIdx = (b.windowIdx + 1) % len(b.window)
	if b.windowIdx == 0 {
		b.windowFilled = true
	}

	if !b.windowFilled && b.countSamplesLocked() < b.minSamples {
		return
	}

	if b.failureRatioLocked() >= b.failureThreshold {
		b.state = BreakerOpen
		b.currentDuration = b.openDuration
		b.openUntil = now.Add(b.currentDuration)
	}
}

func (b *Breaker) countSamplesLocked() int {
	if b.windowFilled {
		return len(b.window)
	}
	return b.windowIdx
}

func (b *Breaker) failureRatioLocked() float64 {
	n := b.countSamplesLocked()
	if n == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < n; i++ {
		if b.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(n)
}

func (b *Breaker) resetWindowLocked() {
	for i := range b.window {
		b.window[i] = false
	}
	b.windowIdx = 0
	b.windowFilled = false
}

// State returns the breaker's current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RetryAfter returns how long until an Open breaker admits its next probe.
func (b *Breaker) RetryAfter(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BreakerOpen {
		return 0
	}
	if b.openUntil.Before(now) {
		return 0
	}
	return b.openUntil.Sub(now)
}
