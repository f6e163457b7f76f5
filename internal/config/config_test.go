package config

import "testing"

func TestDefaultIsUsedWhenEnvUnset(t *testing.T) {
	t.Setenv("NODE_MAX_CONCURRENT", "")
	t.Setenv("MCP_POOL_MAX", "")
	c := Load()
	want := Default()
	if c.MCPPoolMax != want.MCPPoolMax {
		t.Fatalf("MCPPoolMax = %d, want %d", c.MCPPoolMax, want.MCPPoolMax)
	}
	if c.NodeMaxConcurrent != want.NodeMaxConcurrent {
		t.Fatalf("NodeMaxConcurrent = %d, want %d", c.NodeMaxConcurrent, want.NodeMaxConcurrent)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("MCP_POOL_MAX", "42")
	t.Setenv("MCP_IDLE_TIMEOUT", "90s")
	t.Setenv("CB_FAILURE_THRESHOLD", "0.25")
	t.Setenv("DLQ_MAX_ATTEMPTS", "9")

	c := Load()

	if c.MCPPoolMax != 42 {
		t.Fatalf("MCPPoolMax = %d, want 42", c.MCPPoolMax)
	}
	if c.MCPIdleTimeout.String() != "1m30s" {
		t.Fatalf("MCPIdleTimeout = %s, want 1m30s", c.MCPIdleTimeout)
	}
	if c.CBFailureThreshold != 0.25 {
		t.Fatalf("CBFailureThreshold = %v, want 0.25", c.CBFailureThreshold)
	}
	if c.DLQMaxAttempts != 9 {
		t.Fatalf("DLQMaxAttempts = %d, want 9", c.DLQMaxAttempts)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MCP_POOL_MAX", "not-a-number")
	c := Load()
	if c.MCPPoolMax != Default().MCPPoolMax {
		t.Fatalf("expected fallback to default on malformed value, got %d", c.MCPPoolMax)
	}
}
