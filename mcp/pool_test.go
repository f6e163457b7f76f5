package mcp

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTransport struct {
	closed atomic.Bool
}

func (t *fakeTransport) Request(_ context.Context, msg Message) (Message, error) {
	return Message{JSONRPC: "2.0", ID: msg.ID, Result: []byte(`{}`)}, nil
}

func (t *fakeTransport) Close() error {
	t.closed.Store(true)
	return nil
}

type fakeDialer struct {
	dialCount atomic.Int32
}

func (d *fakeDialer) Dial(_ context.Context) (Transport, error) {
	d.dialCount.Add(1)
	return &fakeTransport{}, nil
}

func TestPoolAcquireReleaseReusesConnection(t *testing.T) {
	dialer := &fakeDialer{}
	pool := NewPool("srv", dialer, 0, 2, time.Minute, time.Second)

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	lease.Release()

	if pool.IdleCount() != 1 {
		t.Fatalf("expected 1 idle connection after release, got %d", pool.IdleCount())
	}

	lease2, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	lease2.Release()

	if dialer.dialCount.Load() != 1 {
		t.Fatalf("expected connection reuse (1 dial), got %d dials", dialer.dialCount.Load())
	}
}

func TestPoolAcquireTimesOutAtMaxConns(t *testing.T) {
	dialer := &fakeDialer{}
	pool := NewPool("srv", dialer, 0, 1, time.Minute, 50*time.Millisecond)

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	_, err = pool.Acquire(context.Background())
	if err == nil {
		t.Fatalf("expected timeout error when pool exhausted")
	}
}

func TestPoolDiscardClosesConnection(t *testing.T) {
	dialer := &fakeDialer{}
	pool := NewPool("srv", dialer, 0, 2, time.Minute, time.Second)

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ft := lease.Conn().Transport.(*fakeTransport)
	lease.Discard()

	if !ft.closed.Load() {
		t.Fatalf("expected discarded connection's transport to be closed")
	}
	if pool.IdleCount() != 0 {
		t.Fatalf("expected discarded connection not returned to idle set")
	}
}
