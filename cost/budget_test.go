package cost

import (
	"testing"
	"time"
)

func TestRecordSpendCrossesThresholdAndWarns(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBudget("b1", ScopeUser, "alice", PeriodMonthly, 10.0, []float64{0.5, 0.9}, 0.7, now)

	if _, ok := b.RecordSpend(4.0, now); ok {
		t.Fatalf("expected no threshold crossed at 40%%")
	}
	crossed, ok := b.RecordSpend(2.0, now)
	if !ok || crossed.Fraction != 0.5 {
		t.Fatalf("expected 0.5 threshold crossed at 60%%, got %+v ok=%v", crossed, ok)
	}
	if b.Snapshot().Status != StatusWarning {
		t.Fatalf("expected Warning status, got %s", b.Snapshot().Status)
	}
}

func TestRecordSpendExceedsLimit(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBudget("b1", ScopeGlobal, "", PeriodDaily, 5.0, nil, 0.7, now)

	b.RecordSpend(6.0, now)
	if b.Snapshot().Status != StatusExceeded {
		t.Fatalf("expected Exceeded status, got %s", b.Snapshot().Status)
	}
}

func TestBudgetResetsAtPeriodBoundary(t *testing.T) {
	start := time.Unix(0, 0)
	b := NewBudget("b1", ScopeProject, "p1", PeriodDaily, 5.0, nil, 0.7, start)

	b.RecordSpend(4.0, start)
	if b.Snapshot().CurrentSpendUSD != 4.0 {
		t.Fatalf("expected spend 4.0 before reset")
	}

	afterReset := start.AddDate(0, 0, 2)
	b.RecordSpend(1.0, afterReset)
	snap := b.Snapshot()
	if snap.CurrentSpendUSD != 1.0 {
		t.Fatalf("expected spend reset to 0 then +1.0, got %v", snap.CurrentSpendUSD)
	}
}

func TestOverrideBypassesHasOverride(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBudget("b1", ScopeUser, "alice", PeriodMonthly, 10.0, nil, 0.7, now)

	if b.hasOverride("alice") {
		t.Fatalf("expected no override by default")
	}
	b.AllowOverride("alice")
	if !b.hasOverride("alice") {
		t.Fatalf("expected override to take effect")
	}
}
