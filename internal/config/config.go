// Package config loads runtime tuning knobs from the environment. There is
// no configuration file format or flags library here: every value below maps
// 1:1 to an environment variable, matching how the example repos in this
// ecosystem read API keys and DSNs directly with os.Getenv.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the engine reads from the environment. Each
// field has a sensible default so a zero-configuration deployment still
// runs.
type Config struct {
	// NodeMaxConcurrent overrides a node's configured concurrency cap when
	// positive; zero means "use the node's own MaxConcurrentExecutions".
	NodeMaxConcurrent int

	// MCPPoolMax is the maximum number of pooled connections per MCP server.
	MCPPoolMax int
	// MCPPoolMin is the number of connections kept warm per MCP server.
	MCPPoolMin int
	// MCPIdleTimeout is how long an idle pooled connection survives before
	// being retired.
	MCPIdleTimeout time.Duration
	// MCPAcquireTimeout bounds how long a caller waits for a pooled
	// connection before failing with a retryable error.
	MCPAcquireTimeout time.Duration
	// MCPHealthInterval is the cadence of background health pings against
	// pooled MCP connections.
	MCPHealthInterval time.Duration

	// CBFailureThreshold is the failure ratio, in [0,1], that trips a
	// circuit breaker open.
	CBFailureThreshold float64
	// CBOpenDuration is how long a breaker stays open before allowing a
	// half-open probe.
	CBOpenDuration time.Duration

	// StreamBufferMin and StreamBufferMax bound the adaptive ring buffer
	// used to absorb jitter in streamed completions.
	StreamBufferMin int
	StreamBufferMax int

	// BudgetSoftFraction and BudgetHardFraction are the fractions of a
	// configured budget ceiling at which, respectively, throttling begins
	// and requests are rejected outright.
	BudgetSoftFraction float64
	BudgetHardFraction float64

	// EventSnapshotEvery is the number of events appended to an aggregate
	// stream between automatic snapshots.
	EventSnapshotEvery int64

	// DLQMaxAttempts is the number of delivery attempts a dispatcher makes
	// to a subscriber before routing the event to the dead-letter queue.
	DLQMaxAttempts int
}

// Default returns the configuration every field would have if no
// environment variable were set.
func Default() Config {
	return Config{
		NodeMaxConcurrent:  0,
		MCPPoolMax:         10,
		MCPPoolMin:         1,
		MCPIdleTimeout:     5 * time.Minute,
		MCPAcquireTimeout:  10 * time.Second,
		MCPHealthInterval:  30 * time.Second,
		CBFailureThreshold: 0.5,
		CBOpenDuration:     30 * time.Second,
		StreamBufferMin:    4,
		StreamBufferMax:    256,
		BudgetSoftFraction: 0.8,
		BudgetHardFraction: 1.0,
		EventSnapshotEvery: 100,
		DLQMaxAttempts:     5,
	}
}

// Load returns Default() overridden by any of the recognized environment
// variables that are set. A malformed value is ignored and the default is
// kept; Load never fails.
func Load() Config {
	c := Default()

	c.NodeMaxConcurrent = envInt("NODE_MAX_CONCURRENT", c.NodeMaxConcurrent)
	c.MCPPoolMax = envInt("MCP_POOL_MAX", c.MCPPoolMax)
	c.MCPPoolMin = envInt("MCP_POOL_MIN", c.MCPPoolMin)
	c.MCPIdleTimeout = envDuration("MCP_IDLE_TIMEOUT", c.MCPIdleTimeout)
	c.MCPAcquireTimeout = envDuration("MCP_ACQUIRE_TIMEOUT", c.MCPAcquireTimeout)
	c.MCPHealthInterval = envDuration("MCP_HEALTH_INTERVAL", c.MCPHealthInterval)
	c.CBFailureThreshold = envFloat("CB_FAILURE_THRESHOLD", c.CBFailureThreshold)
	c.CBOpenDuration = envDuration("CB_OPEN_DURATION", c.CBOpenDuration)
	c.StreamBufferMin = envInt("STREAM_BUFFER_MIN", c.StreamBufferMin)
	c.StreamBufferMax = envInt("STREAM_BUFFER_MAX", c.StreamBufferMax)
	c.BudgetSoftFraction = envFloat("BUDGET_SOFT_FRACTION", c.BudgetSoftFraction)
	c.BudgetHardFraction = envFloat("BUDGET_HARD_FRACTION", c.BudgetHardFraction)
	c.EventSnapshotEvery = int64(envInt("EVENT_SNAPSHOT_EVERY", int(c.EventSnapshotEvery)))
	c.DLQMaxAttempts = envInt("DLQ_MAX_ATTEMPTS", c.DLQMaxAttempts)

	return c
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}
