package node

import (
	"testing"
	"time"

	"github.com/flowcore/wfengine/errs"
)

func TestBuilderDerivesIsRouter(t *testing.T) {
	cfg, err := NewConfigBuilder("single").ConnectsTo("a").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.IsRouter {
		t.Fatalf("single connection must not be a router")
	}

	cfg, err = NewConfigBuilder("fanout").ConnectsTo("a", "b").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !cfg.IsRouter {
		t.Fatalf("multiple connections must derive is_router=true")
	}
}

func TestBuilderRejectsEmptyType(t *testing.T) {
	_, err := NewConfigBuilder("").Build()
	if !errs.Is(err, errs.KindConfiguration) {
		t.Fatalf("expected Configuration error, got %v", err)
	}
}

func TestBuilderRejectsBadRetry(t *testing.T) {
	_, err := NewConfigBuilder("n").WithRetry(RetryPolicy{Attempts: 3}).Build()
	if !errs.Is(err, errs.KindConfiguration) {
		t.Fatalf("expected Configuration error for zero initial_delay, got %v", err)
	}
}

func TestBuilderAcceptsValidRetry(t *testing.T) {
	cfg, err := NewConfigBuilder("n").WithRetry(RetryPolicy{
		Attempts: 3, InitialDelay: time.Second, BackoffMultiplier: 2, MaxDelay: 30 * time.Second,
	}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !cfg.Retry.Enabled() {
		t.Fatalf("expected retry enabled")
	}
}

func TestBuilderDefaultsMaxConcurrent(t *testing.T) {
	cfg, err := NewConfigBuilder("n").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.MaxConcurrentExecutions != 1 {
		t.Fatalf("expected default max_concurrent_executions=1, got %d", cfg.MaxConcurrentExecutions)
	}
}

func TestBuilderRejectsNonPositivePriority(t *testing.T) {
	b := NewConfigBuilder("n")
	b.Priority(0)
	if _, err := b.Build(); !errs.Is(err, errs.KindConfiguration) {
		t.Fatalf("expected Configuration error for zero priority, got %v", err)
	}
}

func TestRequiresAndTags(t *testing.T) {
	cfg, err := NewConfigBuilder("n").Requires("a", "b").Tag("x").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !cfg.RequiresInput("a") || !cfg.RequiresInput("b") {
		t.Fatalf("expected required inputs to be recorded")
	}
	if !cfg.HasTag("x") {
		t.Fatalf("expected tag to be recorded")
	}
}
