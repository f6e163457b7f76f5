package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowcore/wfengine/errs"
)

type flakyProvider struct {
	calls     int
	failCalls int
	prefix    []Chunk
	final     Chunk
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) Stream(_ context.Context, _ Request) (Session, error) {
	p.calls++
	if p.calls <= p.failCalls {
		return NewFailingSession(p.prefix, errs.Timeout("flaky-provider", time.Millisecond)), nil
	}
	return &MockSession{chunks: append(append([]Chunk(nil), p.prefix...), p.final)}, nil
}

func TestRecoveryProviderRestartsOnTransientFailure(t *testing.T) {
	inner := &flakyProvider{
		failCalls: 1,
		prefix:    []Chunk{{Content: "partial"}},
		final:     Chunk{Content: "done", IsFinal: true},
	}
	policy := RecoveryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffMultiplier: 2, MaxDelay: 10 * time.Millisecond}
	rp := NewRecoveryProvider(inner, policy, 5, time.Minute)

	session, err := rp.Stream(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var sawRestart bool
	ctx := context.Background()
	for {
		c, ok := session.Next(ctx)
		if !ok {
			break
		}
		if c.IsRestarted {
			sawRestart = true
		}
		if c.IsFinal {
			break
		}
	}
	if !sawRestart {
		t.Fatalf("expected a synthetic restart chunk after transient failure")
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 underlying Stream calls, got %d", inner.calls)
	}
}

func TestRecoveryProviderSurfacesTerminalErrorImmediately(t *testing.T) {
	terminalErr := errs.Validation("model", "unknown model")
	mockErrProvider := &MockProvider{Err: terminalErr}
	policy := RecoveryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffMultiplier: 2, MaxDelay: 10 * time.Millisecond}
	rp := NewRecoveryProvider(mockErrProvider, policy, 5, time.Minute)

	_, err := rp.Stream(context.Background(), Request{Model: "m"})
	if err == nil || !errors.Is(err, terminalErr) {
		t.Fatalf("expected terminal error to surface immediately, got %v", err)
	}
}
