package mcp

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/flowcore/wfengine/errs"
)

// Client is the public entry point nodes use to call a remote tool server:
// it resolves a server endpoint through the Balancer, leases a connection
// from the chosen endpoint's Pool, guards the call with that endpoint's
// Breaker, and retries retryable failures per RetryPolicy.
type Client struct {
	balancer *Balancer
	breakers map[string]*Breaker // keyed by endpoint name
	retry    RetryPolicy
	reqIDSeq atomic.Int64 // concurrent CallTool calls share one Client
}

// NewClient builds a Client over balancer, guarding each of its endpoints
// with its own Breaker built from the same parameters.
func NewClient(balancer *Balancer, endpoints []Endpoint, breakerWindow, breakerMinSamples int, breakerFailureThreshold float64, breakerOpenDuration, breakerMaxOpenDuration time.Duration, retry RetryPolicy) *Client {
	breakers := make(map[string]*Breaker, len(endpoints))
	for _, e := range endpoints {
		breakers[e.Name] = NewBreaker(breakerWindow, breakerMinSamples, breakerFailureThreshold, breakerOpenDuration, breakerMaxOpenDuration)
	}
	return &Client{balancer: balancer, breakers: breakers, retry: retry}
}

// defaultRequestTimeout bounds each individual transport request CallTool
// issues.
const defaultRequestTimeout = 30 * time.Second

// CallTool invokes method on whichever endpoint the balancer selects for
// callerKey, with params marshalled as the jsonrpc-2.0 request body.
// Returns the raw result payload for the caller to unmarshal.
func (c *Client) CallTool(ctx context.Context, callerKey, method string, params any) (json.RawMessage, error) {
	endpoint, ok := c.balancer.Select(callerKey)
	if !ok {
		return nil, errs.Configuration("mcp_endpoints", "no endpoints configured")
	}
	breaker := c.breakers[endpoint.Name]

	if !breaker.Allow(time.Now()) {
		return nil, errs.External(endpoint.Name, 0, "circuit breaker open, retry after "+breaker.RetryAfter(time.Now()).String())
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, errs.Serialization(err.Error())
	}

	reply, err := withRetry(ctx, c.retry, func(ctx context.Context) (Message, error) {
		lease, err := endpoint.Pool.Acquire(ctx)
		if err != nil {
			return Message{}, err
		}
		req := NewRequest(c.reqIDSeq.Add(1), method, paramsJSON)
		reqCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
		defer cancel()
		resp, callErr := lease.Conn().Transport.Request(reqCtx, req)
		if callErr != nil {
			if errs.Retryable(callErr) {
				lease.Release()
			} else {
				lease.Discard()
			}
			return Message{}, callErr
		}
		if resp.Err != nil {
			lease.Release()
			return Message{}, errs.MCP(endpoint.Name, method, resp.Err.Message, nil)
		}
		lease.Release()
		return resp, nil
	})

	breaker.RecordResult(err == nil, time.Now())
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

// ListTools requests the server's tool catalog via the well-known
// "tools/list" method.
func (c *Client) ListTools(ctx context.Context, callerKey string) (json.RawMessage, error) {
	return c.CallTool(ctx, callerKey, "tools/list", nil)
}
