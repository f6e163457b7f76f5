package cost

import (
	"testing"
	"time"
)

func TestThrottleAllowsBelowSoftThreshold(t *testing.T) {
	now := time.Unix(0, 0)
	catalog := NewCatalog()
	budget := NewBudget("b1", ScopeUser, "alice", PeriodMonthly, 100.0, nil, 0.7, now)
	th := NewThrottle([]*Budget{budget}, catalog, 5*time.Second)

	d := th.CheckStreamingThrottle(StreamMetadata{Model: "gpt-4o-mini", Provider: "openai"}, 1000, "")
	if d.Kind != Allow {
		t.Fatalf("expected Allow, got %+v", d)
	}
}

func TestThrottleDelaysBetweenSoftAndHard(t *testing.T) {
	now := time.Unix(0, 0)
	catalog := NewCatalog()
	budget := NewBudget("b1", ScopeUser, "alice", PeriodMonthly, 1.0, nil, 0.5, now)
	budget.RecordSpend(0.6, now) // 60% of limit, above 50% soft threshold
	th := NewThrottle([]*Budget{budget}, catalog, 5*time.Second)

	d := th.CheckStreamingThrottle(StreamMetadata{Model: "gpt-4o-mini", Provider: "openai"}, 10, "")
	if d.Kind != Delay {
		t.Fatalf("expected Delay, got %+v", d)
	}
	if d.Duration <= 0 || d.Duration > 5*time.Second {
		t.Fatalf("expected bounded positive delay, got %v", d.Duration)
	}
}

func TestThrottleDeniesProjectedOverLimit(t *testing.T) {
	now := time.Unix(0, 0)
	catalog := NewCatalog()
	budget := NewBudget("b1", ScopeUser, "alice", PeriodMonthly, 1.0, nil, 0.7, now)
	budget.RecordSpend(0.95, now)
	th := NewThrottle([]*Budget{budget}, catalog, 5*time.Second)

	d := th.CheckStreamingThrottle(StreamMetadata{Model: "gpt-4o", Provider: "openai"}, 1_000_000, "")
	if d.Kind != Deny {
		t.Fatalf("expected Deny, got %+v", d)
	}
	if d.Reason == "" {
		t.Fatalf("expected non-empty deny reason")
	}
}

func TestThrottleOverrideBypassesDeny(t *testing.T) {
	now := time.Unix(0, 0)
	catalog := NewCatalog()
	budget := NewBudget("b1", ScopeUser, "alice", PeriodMonthly, 1.0, nil, 0.7, now)
	budget.RecordSpend(0.99, now)
	budget.AllowOverride("admin")
	th := NewThrottle([]*Budget{budget}, catalog, 5*time.Second)

	d := th.CheckStreamingThrottle(StreamMetadata{Model: "gpt-4o", Provider: "openai"}, 1_000_000, "admin")
	if d.Kind != Allow {
		t.Fatalf("expected override to Allow, got %+v", d)
	}
}

func TestThrottleNoBudgetsAllowsAlways(t *testing.T) {
	catalog := NewCatalog()
	th := NewThrottle(nil, catalog, time.Second)
	d := th.CheckStreamingThrottle(StreamMetadata{Model: "gpt-4o", Provider: "openai"}, 1_000_000, "")
	if d.Kind != Allow {
		t.Fatalf("expected Allow with no budgets, got %+v", d)
	}
}
