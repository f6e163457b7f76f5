// Package stdiotransport implements mcp.Transport by spawning a child
// process and framing jsonrpc-2.0 messages as length-prefixed JSON on its
// stdin/stdout, accepting newline-terminated JSON on ingest as well.
// There is no third-party length-prefixed JSON framing library in the
// dependency set this module draws from, so this transport is built
// directly on os/exec and bufio — see the design ledger for why stdlib was
// the right call here.
package stdiotransport

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/mcp"
)

// Transport owns one spawned child process, framing requests as a 4-byte
// big-endian length prefix followed by the JSON body, and accepting either
// framing or a bare newline-terminated JSON line on read.
type Transport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu sync.Mutex // serializes Request: one in-flight call at a time per process
}

// Spawn starts name with args, wiring its stdin/stdout for framed
// jsonrpc-2.0 exchange and its stderr to the supplied writer (a log sink).
func Spawn(ctx context.Context, name string, args []string, stderr io.Writer) (*Transport, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errs.Transport("process_setup", fmt.Sprintf("stdio stdin pipe: %v", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errs.Transport("process_setup", fmt.Sprintf("stdio stdout pipe: %v", err))
	}
	if err := cmd.Start(); err != nil {
		return nil, errs.Transport("process_setup", fmt.Sprintf("stdio start: %v", err))
	}

	return &Transport{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}, nil
}

func (t *Transport) Request(ctx context.Context, msg mcp.Message) (mcp.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	body, err := json.Marshal(msg)
	if err != nil {
		return mcp.Message{}, errs.Serialization(err.Error())
	}

	if err := t.writeFramed(body); err != nil {
		return mcp.Message{}, err
	}

	type result struct {
		msg mcp.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		line, err := t.readFramed()
		if err != nil {
			done <- result{err: err}
			return
		}
		var out mcp.Message
		if err := json.Unmarshal(line, &out); err != nil {
			done <- result{err: errs.Serialization(fmt.Sprintf("decode response: %v", err))}
			return
		}
		done <- result{msg: out}
	}()

	select {
	case <-ctx.Done():
		return mcp.Message{}, errs.Cancelled()
	case r := <-done:
		return r.msg, r.err
	}
}

// writeFramed emits a 4-byte big-endian length prefix then the body, the
// egress framing convention.
func (t *Transport) writeFramed(body []byte) error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	if _, err := t.stdin.Write(header); err != nil {
		return errs.Transport(errs.TransportNetworkReset, "stdio: "+err.Error())
	}
	if _, err := t.stdin.Write(body); err != nil {
		return errs.Transport(errs.TransportNetworkReset, "stdio: "+err.Error())
	}
	return nil
}

// readFramed accepts either a length-prefixed frame or a newline-terminated
// JSON line. It reads 4 bytes as a big-endian length; when that length is 0
// or above 64 MiB (as it is for a line starting with '{', 0x7B), the 4
// bytes are taken as the start of a JSON line and the rest of the line is
// read with ReadBytes.
func (t *Transport) readFramed() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(t.stdout, header); err != nil {
		return nil, errs.Transport(errs.TransportNetworkReset, "stdio: "+err.Error())
	}
	n := binary.BigEndian.Uint32(header)
	if n == 0 || n > 64*1024*1024 {
		// Not a plausible frame length; treat header as the start of a
		// newline-terminated JSON line instead.
		rest, err := t.stdout.ReadBytes('\n')
		if err != nil {
			return nil, errs.Transport(errs.TransportNetworkReset, "stdio: "+err.Error())
		}
		return append(header, rest...), nil
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(t.stdout, body); err != nil {
		return nil, errs.Transport(errs.TransportNetworkReset, "stdio: "+err.Error())
	}
	return body, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.stdin.Close()
	return t.cmd.Wait()
}
