package cost

import (
	"testing"
	"time"
)

func TestRecordComputesCost(t *testing.T) {
	catalog := NewCatalog()
	tracker := NewTracker("run-1", catalog)

	got := tracker.Record("openai/gpt-4o-mini", 1000, 500, "node-a", time.Unix(0, 0))

	want := (1000.0/1000.0)*0.00015 + (500.0/1000.0)*0.0006
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("Record cost = %v, want %v", got, want)
	}
	if total := tracker.TotalCost(); total != got {
		t.Fatalf("TotalCost = %v, want %v", total, got)
	}
}

func TestRecordAppliesVolumeDiscount(t *testing.T) {
	catalog := NewCatalog()
	tracker := NewTracker("run-1", catalog)

	tracker.Record("openai/gpt-4o", 50_000_000, 0, "node-a", time.Unix(0, 0))
	before := tracker.TotalCost()

	tracker.Record("openai/gpt-4o", 20_000_000, 0, "node-a", time.Unix(1, 0))
	after := tracker.TotalCost() - before

	undiscounted := (20_000_000.0 / 1000.0) * 0.0025
	if after >= undiscounted {
		t.Fatalf("expected discounted marginal cost %v < undiscounted %v", after, undiscounted)
	}
}

func TestCostByModelAttribution(t *testing.T) {
	catalog := NewCatalog()
	tracker := NewTracker("run-1", catalog)

	tracker.Record("openai/gpt-4o-mini", 1000, 0, "a", time.Unix(0, 0))
	tracker.Record("anthropic/claude-3-haiku-20240307", 1000, 0, "b", time.Unix(0, 0))

	byModel := tracker.CostByModel()
	if len(byModel) != 2 {
		t.Fatalf("expected 2 models, got %d", len(byModel))
	}
	if byModel["openai/gpt-4o-mini"] <= 0 {
		t.Fatalf("expected positive cost for gpt-4o-mini")
	}
}

func TestUnknownModelRecordsZeroCost(t *testing.T) {
	catalog := NewCatalog()
	tracker := NewTracker("run-1", catalog)

	got := tracker.Record("unknown/model-x", 1000, 1000, "a", time.Unix(0, 0))
	if got != 0 {
		t.Fatalf("expected zero cost for unknown model, got %v", got)
	}
}
