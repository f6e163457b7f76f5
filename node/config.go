package node

import (
	"time"

	"github.com/flowcore/wfengine/errs"
)

// RetryPolicy describes a node's retry behavior. A zero-value RetryPolicy
// (Attempts == 0) means "no retry" — the node is attempted exactly once.
type RetryPolicy struct {
	Attempts         int
	InitialDelay     time.Duration
	BackoffMultiplier float64
	MaxDelay         time.Duration
}

// Validate checks the invariants spec.md §3 places on a RetryPolicy: if set
// (Attempts > 0), InitialDelay must be strictly positive.
func (p RetryPolicy) Validate() error {
	if p.Attempts <= 0 {
		return nil
	}
	if p.InitialDelay <= 0 {
		return errs.Configuration("retry.initial_delay", "must be positive when retry is configured")
	}
	if p.BackoffMultiplier <= 0 {
		return errs.Configuration("retry.backoff_multiplier", "must be positive when retry is configured")
	}
	if p.MaxDelay < p.InitialDelay {
		return errs.Configuration("retry.max_delay", "must be >= initial_delay")
	}
	return nil
}

// Enabled reports whether this policy permits any retry at all.
func (p RetryPolicy) Enabled() bool {
	return p.Attempts > 0
}

// Config is the immutable-after-build configuration of a single node within
// a workflow schema, mirroring the NodeConfig entity of the data model.
type Config struct {
	Type                    TypeID
	Description             string
	Connections             []TypeID
	IsRouter                bool
	Timeout                 time.Duration
	Retry                   RetryPolicy
	Priority                int
	MaxConcurrentExecutions int
	Metadata                map[string]string
	Tags                    map[string]struct{}
	RequiredInputs          map[string]struct{}
}

// RequiresInput reports whether key must be present in the task context
// before this node is eligible to run.
func (c *Config) RequiresInput(key string) bool {
	_, ok := c.RequiredInputs[key]
	return ok
}

// HasTag reports whether tag is attached to this node.
func (c *Config) HasTag(tag string) bool {
	_, ok := c.Tags[tag]
	return ok
}

// Builder builds a validated Config, enforcing the invariants of spec.md §3
// at Build time: is_router iff connections.len() > 1, and a configured retry
// policy's initial_delay must be positive. Mirrors the teacher's pattern of
// returning an error-carrying builder (graph/policy.go's RetryPolicy.Validate)
// rather than panicking on a malformed configuration.
type Builder struct {
	cfg Config
}

// NewConfigBuilder starts building a Config for the given node type.
func NewConfigBuilder(t TypeID) *Builder {
	return &Builder{cfg: Config{
		Type:           t,
		Priority:       1,
		Metadata:       make(map[string]string),
		Tags:           make(map[string]struct{}),
		RequiredInputs: make(map[string]struct{}),
	}}
}

// Description sets the free-text description.
func (b *Builder) Description(d string) *Builder {
	b.cfg.Description = d
	return b
}

// ConnectsTo appends downstream type identifiers, in order.
func (b *Builder) ConnectsTo(ids ...TypeID) *Builder {
	b.cfg.Connections = append(b.cfg.Connections, ids...)
	return b
}

// Timeout sets the per-invocation timeout.
func (b *Builder) Timeout(d time.Duration) *Builder {
	b.cfg.Timeout = d
	return b
}

// WithRetry sets the retry policy.
func (b *Builder) WithRetry(p RetryPolicy) *Builder {
	b.cfg.Retry = p
	return b
}

// Priority sets the scheduling priority; higher runs earlier among ready nodes.
func (b *Builder) Priority(p int) *Builder {
	b.cfg.Priority = p
	return b
}

// MaxConcurrent sets the global concurrency cap for this node type.
func (b *Builder) MaxConcurrent(n int) *Builder {
	b.cfg.MaxConcurrentExecutions = n
	return b
}

// Meta attaches a metadata key/value pair.
func (b *Builder) Meta(key, value string) *Builder {
	b.cfg.Metadata[key] = value
	return b
}

// Tag attaches one or more tags.
func (b *Builder) Tag(tags ...string) *Builder {
	for _, t := range tags {
		b.cfg.Tags[t] = struct{}{}
	}
	return b
}

// Requires declares context keys that must be present before this node runs.
func (b *Builder) Requires(keys ...string) *Builder {
	for _, k := range keys {
		b.cfg.RequiredInputs[k] = struct{}{}
	}
	return b
}

// Build validates and returns the finished Config.
func (b *Builder) Build() (*Config, error) {
	if b.cfg.Type == "" {
		return nil, errs.Configuration("type", "node type identifier is required")
	}
	// is_router is derived, not author-set: a node with >1 connection is
	// automatically a router per the is_router-iff-connections invariant.
	b.cfg.IsRouter = len(b.cfg.Connections) > 1

	if err := b.cfg.Retry.Validate(); err != nil {
		return nil, err
	}
	if b.cfg.Priority <= 0 {
		return nil, errs.Configuration("priority", "must be a positive integer")
	}
	if b.cfg.MaxConcurrentExecutions < 0 {
		return nil, errs.Configuration("max_concurrent_executions", "must not be negative")
	}
	if b.cfg.MaxConcurrentExecutions == 0 {
		b.cfg.MaxConcurrentExecutions = 1
	}

	out := b.cfg
	out.Connections = append([]TypeID(nil), b.cfg.Connections...)
	return &out, nil
}
