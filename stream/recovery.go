package stream

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/flowcore/wfengine/errs"
)

// RecoveryPolicy bounds how a RecoveryProvider retries a failed stream.
type RecoveryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// breakerState is a minimal three-state circuit breaker local to one
// provider, preventing thrash when its upstream is repeatedly failing.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

type breaker struct {
	mu               sync.Mutex
	state            breakerState
	failures         int
	failureThreshold int
	openUntil        time.Time
	openDuration     time.Duration
}

func newBreaker(failureThreshold int, openDuration time.Duration) *breaker {
	return &breaker{failureThreshold: failureThreshold, openDuration: openDuration}
}

func (b *breaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		if now.After(b.openUntil) {
			b.state = breakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
}

func (b *breaker) recordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == breakerHalfOpen || b.failures >= b.failureThreshold {
		b.state = breakerOpen
		b.openUntil = now.Add(b.openDuration)
	}
}

// RecoveryProvider wraps an underlying Provider with mid-stream recovery:
// a transient failure triggers a clean restart, signalled to the consumer
// with a synthetic chunk carrying IsRestarted so it can reconcile any
// partial output already delivered. A local circuit breaker prevents
// hammering a provider that is down; non-retryable errors (auth, terminal
// quota) surface immediately without consuming a retry attempt.
type RecoveryProvider struct {
	inner   Provider
	policy  RecoveryPolicy
	breaker *breaker
}

// NewRecoveryProvider wraps inner with policy, tripping its breaker after
// failureThreshold consecutive failures and keeping it open for
// openDuration before allowing a half-open probe.
func NewRecoveryProvider(inner Provider, policy RecoveryPolicy, failureThreshold int, openDuration time.Duration) *RecoveryProvider {
	return &RecoveryProvider{inner: inner, policy: policy, breaker: newBreaker(failureThreshold, openDuration)}
}

func (p *RecoveryProvider) Name() string { return p.inner.Name() }

func (p *RecoveryProvider) Stream(ctx context.Context, req Request) (Session, error) {
	session, err := p.attempt(ctx, req, 1)
	if err != nil {
		return nil, err
	}
	return &recoverySession{provider: p, req: req, current: session, attempt: 1}, nil
}

func (p *RecoveryProvider) attempt(ctx context.Context, req Request, attempt int) (Session, error) {
	if !p.breaker.allow(time.Now()) {
		return nil, errs.Transport(errs.TransportUnavailable, p.inner.Name()+": circuit breaker open")
	}
	session, err := p.inner.Stream(ctx, req)
	if err != nil {
		p.breaker.recordFailure(time.Now())
		return nil, err
	}
	p.breaker.recordSuccess()
	return session, nil
}

// recoverySession is the Session RecoveryProvider hands back to callers; it
// transparently restarts p.inner's stream on a retryable failure instead of
// exhausting the caller's Next loop.
type recoverySession struct {
	provider *RecoveryProvider
	req      Request
	current  Session
	attempt  int
	lastErr  error
	restarting bool
}

func (s *recoverySession) Next(ctx context.Context) (Chunk, bool) {
	for {
		if s.restarting {
			s.restarting = false
			return Chunk{
				IsRestarted: true,
				FinishReason: "restarted",
				Metadata:    StreamMetadata{Provider: s.provider.Name(), Model: s.req.Model},
			}, true
		}

		chunk, ok := s.current.Next(ctx)
		if ok {
			return chunk, true
		}

		cause := s.current.Err()
		if cause == nil {
			return Chunk{}, false
		}
		if errs.Terminal(cause) {
			s.lastErr = cause
			return Chunk{}, false
		}
		if s.attempt >= s.provider.policy.MaxAttempts {
			s.lastErr = cause
			return Chunk{}, false
		}

		delay := backoffDelay(s.provider.policy, s.attempt)
		select {
		case <-ctx.Done():
			s.lastErr = ctx.Err()
			return Chunk{}, false
		case <-time.After(delay):
		}

		s.attempt++
		next, err := s.provider.attempt(ctx, s.req, s.attempt)
		if err != nil {
			s.lastErr = err
			return Chunk{}, false
		}
		_ = s.current.Close()
		s.current = next
		s.restarting = true
	}
}

func (s *recoverySession) Err() error   { return s.lastErr }
func (s *recoverySession) Close() error { return s.current.Close() }

func backoffDelay(p RecoveryPolicy, attempt int) time.Duration {
	mult := 1.0
	for i := 1; i < attempt; i++ {
		mult *= p.BackoffMultiplier
	}
	delay := time.Duration(float64(p.InitialDelay) * mult)
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(delay) * jitter)
}
