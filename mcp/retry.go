package mcp

import (
	"context"
	"math/rand"
	"time"

	"github.com/flowcore/wfengine/errs"
)

// RetryPolicy bounds attempts around one logical MCP call.
type RetryPolicy struct {
	Attempts          int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// withRetry runs call up to policy.Attempts times, retrying only
// errs.Retryable failures with exponential backoff plus jitter. A terminal
// error surfaces immediately without consuming further attempts.
func withRetry(ctx context.Context, policy RetryPolicy, call func(ctx context.Context) (Message, error)) (Message, error) {
	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		msg, err := call(ctx)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if !errs.Retryable(err) {
			return Message{}, err
		}
		if attempt == policy.Attempts {
			break
		}

		delay := backoffDelay(policy, attempt)
		select {
		case <-ctx.Done():
			return Message{}, errs.Cancelled()
		case <-time.After(delay):
		}
	}
	return Message{}, lastErr
}

func backoffDelay(p RetryPolicy, attempt int) time.Duration {
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
