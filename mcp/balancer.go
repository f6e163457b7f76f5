package mcp

import (
	"math/rand"
	"sync"
	"sync/atomic"
)

// BalancerStrategy selects which of several endpoints backing the same
// logical server name a request is sent over.
type BalancerStrategy string

const (
	RoundRobin     BalancerStrategy = "RoundRobin"
	LeastConns     BalancerStrategy = "LeastConnections"
	HealthWeighted BalancerStrategy = "HealthWeighted"
)

// Endpoint is one physical server instance behind a logical server name,
// each with its own Pool.
type Endpoint struct {
	Name string
	Pool *Pool
}

// Balancer picks an Endpoint per request according to its configured
// Strategy, optionally sticking a caller key to the endpoint it first
// resolved to (ClientAffinity).
type Balancer struct {
	mu        sync.Mutex
	endpoints []Endpoint
	strategy  BalancerStrategy
	affinity  bool
	sticky    map[string]string // caller key -> endpoint name
	rrCounter atomic.Uint64
}

// NewBalancer builds a Balancer over endpoints using strategy, optionally
// enabling sticky ClientAffinity by caller key.
func NewBalancer(endpoints []Endpoint, strategy BalancerStrategy, affinity bool) *Balancer {
	return &Balancer{
		endpoints: endpoints, strategy: strategy, affinity: affinity,
		sticky: make(map[string]string),
	}
}

// Select picks an endpoint for one call, identified by callerKey when
// ClientAffinity is enabled (empty string disables stickiness for that
// call even if the balancer has affinity on).
func (b *Balancer) Select(callerKey string) (Endpoint, bool) {
	if len(b.endpoints) == 0 {
		return Endpoint{}, false
	}

	if b.affinity && callerKey != "" {
		b.mu.Lock()
		if name, ok := b.sticky[callerKey]; ok {
			for _, e := range b.endpoints {
				if e.Name == name {
					b.mu.Unlock()
					return e, true
				}
			}
		}
		b.mu.Unlock()
	}

	var chosen Endpoint
	switch b.strategy {
	case LeastConns:
		chosen = b.selectLeastConns()
	case HealthWeighted:
		chosen = b.selectHealthWeighted()
	default:
		chosen = b.selectRoundRobin()
	}

	if b.affinity && callerKey != "" {
		b.mu.Lock()
		b.sticky[callerKey] = chosen.Name
		b.mu.Unlock()
	}
	return chosen, true
}

func (b *Balancer) selectRoundRobin() Endpoint {
	idx := b.rrCounter.Add(1) % uint64(len(b.endpoints))
	return b.endpoints[idx]
}

func (b *Balancer) selectLeastConns() Endpoint {
	best := b.endpoints[0]
	bestCount := best.Pool.InUseCount()
	for _, e := range b.endpoints[1:] {
		if c := e.Pool.InUseCount(); c < bestCount {
			best, bestCount = e, c
		}
	}
	return best
}

// selectHealthWeighted picks an endpoint with probability proportional to
// its pool's average connection health score, falling back to uniform
// random if every endpoint scores zero.
func (b *Balancer) selectHealthWeighted() Endpoint {
	weights := make([]float64, len(b.endpoints))
	total := 0.0
	for i, e := range b.endpoints {
		w := averageScore(e.Pool)
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return b.endpoints[rand.Intn(len(b.endpoints))]
	}

	r := rand.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return b.endpoints[i]
		}
	}
	return b.endpoints[len(b.endpoints)-1]
}

func averageScore(p *Pool) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	total := 0.0
	for e := p.idle.Front(); e != nil; e = e.Next() {
		conn := e.Value.(*Connection)
		total += conn.Score()
		count++
	}
	for _, conn := range p.inUse {
		total += conn.Score()
		count++
	}
	if count == 0 {
		return 1.0 // no data yet: treat as fully healthy
	}
	return total / float64(count)
}
