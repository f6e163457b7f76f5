// Package wstransport implements mcp.Transport over a single long-lived
// WebSocket connection: one in-flight request at a time per connection,
// correlated by the jsonrpc-2.0 id.
package wstransport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/mcp"
)

// Transport wraps a single gorilla/websocket connection. The MCP wire
// contract allows one request in flight per connection, so Request takes
// a mutex rather than correlating concurrent replies by id.
type Transport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Dial opens a WebSocket connection to url.
func Dial(ctx context.Context, url string) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errs.Transport(errs.TransportUnavailable, fmt.Sprintf("websocket dial: %v", err))
	}
	return &Transport{conn: conn}, nil
}

func (t *Transport) Request(ctx context.Context, msg mcp.Message) (mcp.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
		_ = t.conn.SetReadDeadline(deadline)
	}

	if err := t.conn.WriteJSON(msg); err != nil {
		return mcp.Message{}, errs.Transport(errs.TransportNetworkReset, "websocket: "+err.Error())
	}

	var out mcp.Message
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return mcp.Message{}, errs.Transport(errs.TransportNetworkReset, "websocket: "+err.Error())
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return mcp.Message{}, errs.Serialization(fmt.Sprintf("decode response: %v", err))
	}
	return out, nil
}

// Ping keeps the connection alive during idle periods between calls, per
// the shared idle-keepalive contract every transport observes.
func (t *Transport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close()
}
