// Package mcp is a transport-agnostic client fabric for remote MCP tool
// servers: connection pooling, health-driven load balancing, circuit
// breaking, and retry sit in front of three interchangeable wire
// transports (stdio, WebSocket, HTTP).
package mcp

import (
	"context"
	"encoding/json"
)

// Message is the jsonrpc-2.0 envelope exchanged with a server: requests
// carry Method/Params, responses carry Result or Err.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Err     *RPCError       `json:"error,omitempty"`
}

// RPCError is the jsonrpc-2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewRequest builds a well-formed jsonrpc-2.0 request envelope.
func NewRequest(id any, method string, params json.RawMessage) Message {
	return Message{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

// Transport is the single wire-level operation every backend implements:
// send one request, get back one response (or an error), then eventually
// Close. The idle ping keepalive (HealthMonitor) and the default 30s
// per-request timeout (mcp.Client) are applied by callers, not here.
type Transport interface {
	Request(ctx context.Context, msg Message) (Message, error)
	Close() error
}

// Dialer opens a new Transport to one server endpoint; the pool calls it
// to create connections on demand.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}
