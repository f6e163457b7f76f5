// Package httptransport implements mcp.Transport over a plain HTTP POST
// per call: no connection state to keep alive beyond the *http.Client's own
// pooling.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/mcp"
)

// Transport posts one jsonrpc-2.0 request body per Request call to a
// single tool endpoint URL.
type Transport struct {
	endpoint string
	client   *http.Client
}

// New builds an HTTP transport against endpoint, using client if non-nil
// (otherwise a client with a 30s timeout).
func New(endpoint string, client *http.Client) *Transport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Transport{endpoint: endpoint, client: client}
}

func (t *Transport) Request(ctx context.Context, msg mcp.Message) (mcp.Message, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return mcp.Message{}, errs.Serialization(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return mcp.Message{}, errs.Transport("request_build", "http: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return mcp.Message{}, errs.Transport(errs.TransportUnavailable, "http: "+err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return mcp.Message{}, errs.Transport(errs.TransportNetworkReset, "http: "+err.Error())
	}

	if resp.StatusCode >= 500 {
		return mcp.Message{}, errs.External("mcp-http", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return mcp.Message{}, errs.External("mcp-http", resp.StatusCode, string(respBody))
	}

	var out mcp.Message
	if err := json.Unmarshal(respBody, &out); err != nil {
		return mcp.Message{}, errs.Serialization(fmt.Sprintf("decode response: %v", err))
	}
	return out, nil
}

func (t *Transport) Close() error { return nil }
