package mcp

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/flowcore/wfengine/errs"
)

// Connection is one pooled Transport plus the bookkeeping the pool, health
// monitor, and balancer all need: when it was created, when it was last
// used, and its rolling health.
type Connection struct {
	ID         string
	ServerName string
	Transport  Transport
	CreatedAt  time.Time
	LastUsedAt time.Time
	health     *healthTracker
	inUse      bool
}

// Health reports this connection's current standing.
func (c *Connection) Health() Health { return c.health.status() }

// Score returns this connection's rolling success-ratio EMA.
func (c *Connection) Score() float64 { return c.health.currentScore() }

// Lease is a borrowed Connection: call Release when done, or Discard if
// the call revealed the connection is bad and should not return to the
// idle set.
type Lease struct {
	pool *Pool
	conn *Connection
}

// Conn exposes the leased Connection for issuing a request.
func (l *Lease) Conn() *Connection { return l.conn }

// Release returns the connection to the pool's idle set, recording a
// successful use.
func (l *Lease) Release() {
	l.conn.health.recordSuccess()
	l.pool.release(l.conn, true)
}

// Discard returns the connection's slot to the pool without returning the
// connection itself to the idle set — used when a non-retryable transport
// error means the connection should not be reused.
func (l *Lease) Discard() {
	l.conn.health.recordFailure()
	l.pool.release(l.conn, false)
}

// Pool manages connections for one (server_name, transport) pair: a warm
// minimum, a hard maximum, idle retirement, and LRU handout of healthy
// idle connections, mirroring the teacher's mutex-guarded, channel-backed
// Frontier concurrency idiom adapted from a work queue to a lease pool.
type Pool struct {
	mu       sync.Mutex
	dialer   Dialer
	server   string
	minConns int
	maxConns int
	idle     *list.List // of *Connection, front = least recently used
	inUse    map[string]*Connection

	idleTimeout    time.Duration
	acquireTimeout time.Duration
	nextConnID     int
}

// NewPool constructs a pool for server, dialing new connections via
// dialer, warming minConns eagerly is left to the caller (Prewarm).
func NewPool(server string, dialer Dialer, minConns, maxConns int, idleTimeout, acquireTimeout time.Duration) *Pool {
	return &Pool{
		dialer: dialer, server: server, minConns: minConns, maxConns: maxConns,
		idle: list.New(), inUse: make(map[string]*Connection),
		idleTimeout: idleTimeout, acquireTimeout: acquireTimeout,
	}
}

// Prewarm dials up to minConns idle connections eagerly.
func (p *Pool) Prewarm(ctx context.Context) error {
	p.mu.Lock()
	need := p.minConns - p.idle.Len() - len(p.inUse)
	p.mu.Unlock()
	for i := 0; i < need; i++ {
		conn, err := p.dial(ctx)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.idle.PushBack(conn)
		p.mu.Unlock()
	}
	return nil
}

func (p *Pool) dial(ctx context.Context) (*Connection, error) {
	t, err := p.dialer.Dial(ctx)
	if err != nil {
		return nil, errs.MCP(p.server, "dial", err.Error(), err)
	}
	p.mu.Lock()
	p.nextConnID++
	id := p.server + "-" + strconv.Itoa(p.nextConnID)
	p.mu.Unlock()
	now := time.Now()
	return &Connection{
		ID: id, ServerName: p.server, Transport: t,
		CreatedAt: now, LastUsedAt: now, health: newHealthTracker(),
	}, nil
}

// Acquire hands out a healthy idle connection (LRU), dials a new one if
// under maxConns, or waits up to acquireTimeout before returning a
// retryable Timeout error.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	deadline := time.Now().Add(p.acquireTimeout)
	for {
		p.mu.Lock()
		for e := p.idle.Front(); e != nil; e = e.Next() {
			conn := e.Value.(*Connection)
			p.idle.Remove(e)
			if conn.Health() == HealthUnhealthy {
				_ = conn.Transport.Close()
				continue
			}
			conn.inUse = true
			p.inUse[conn.ID] = conn
			p.mu.Unlock()
			return &Lease{pool: p, conn: conn}, nil
		}
		canDial := len(p.inUse) < p.maxConns
		p.mu.Unlock()

		if canDial {
			conn, err := p.dial(ctx)
			if err != nil {
				return nil, err
			}
			p.mu.Lock()
			conn.inUse = true
			p.inUse[conn.ID] = conn
			p.mu.Unlock()
			return &Lease{pool: p, conn: conn}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, errs.Timeout("mcp_acquire", p.acquireTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, errs.Cancelled()
		case <-time.After(minDuration(remaining, 10*time.Millisecond)):
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (p *Pool) release(conn *Connection, healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, conn.ID)
	conn.inUse = false
	conn.LastUsedAt = time.Now()
	if healthy && conn.Health() != HealthUnhealthy {
		p.idle.PushBack(conn)
	} else {
		_ = conn.Transport.Close()
	}
}

// SweepIdle closes idle connections older than idleTimeout. Intended to
// run on a ticker alongside the health monitor.
func (p *Pool) SweepIdle(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var next *list.Element
	for e := p.idle.Front(); e != nil; e = next {
		next = e.Next()
		conn := e.Value.(*Connection)
		if now.Sub(conn.LastUsedAt) > p.idleTimeout {
			p.idle.Remove(e)
			_ = conn.Transport.Close()
		}
	}
}

// pingIdle round-trips a lightweight request against every idle connection,
// feeding the result into its health tracker; called by HealthMonitor.
func (p *Pool) pingIdle(ctx context.Context) {
	p.mu.Lock()
	conns := make([]*Connection, 0, p.idle.Len())
	for e := p.idle.Front(); e != nil; e = e.Next() {
		conns = append(conns, e.Value.(*Connection))
	}
	p.mu.Unlock()

	for _, conn := range conns {
		_, err := conn.Transport.Request(ctx, NewRequest(nil, "ping", nil))
		if err != nil {
			conn.health.recordFailure()
		} else {
			conn.health.recordSuccess()
		}
	}
}

// IdleCount and InUseCount report current pool occupancy, for metrics.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle.Len()
}

func (p *Pool) InUseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}
