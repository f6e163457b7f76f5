package cost

import (
	"sync"
	"time"
)

// Call records a single completed or in-flight LLM invocation's token usage
// and resulting cost.
type Call struct {
	ProviderModel string
	InputTokens   int64
	OutputTokens  int64
	CostUSD       float64
	NodeID        string
	Timestamp     time.Time
}

// Tracker accumulates cost across LLM calls for one execution, attributing
// spend per model and exposing running totals that Budget consults.
type Tracker struct {
	mu         sync.RWMutex
	runID      string
	catalog    *Catalog
	calls      []Call
	totalCost  float64
	byModel    map[string]float64
	cumulative map[string]int64 // provider/model -> cumulative tokens, for volume tiers
}

// NewTracker creates a Tracker for one run, pricing calls from catalog.
func NewTracker(runID string, catalog *Catalog) *Tracker {
	return &Tracker{
		runID:      runID,
		catalog:    catalog,
		calls:      make([]Call, 0, 16),
		byModel:    make(map[string]float64),
		cumulative: make(map[string]int64),
	}
}

// Record prices and stores a completed call, updating cumulative totals used
// for both attribution and volume-tier discounting of subsequent calls on
// the same model. Returns the computed cost.
func (t *Tracker) Record(providerModel string, inputTokens, outputTokens int64, nodeID string, at time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	pricing, ok := t.catalog.Lookup(providerModel)
	if !ok {
		pricing = ModelPricing{}
	}
	priorTokens := t.cumulative[providerModel]
	discount := pricing.discountFor(priorTokens)

	cost := (float64(inputTokens)/1000.0)*pricing.InputPer1K + (float64(outputTokens)/1000.0)*pricing.OutputPer1K
	cost *= 1 - discount

	t.calls = append(t.calls, Call{
		ProviderModel: providerModel, InputTokens: inputTokens, OutputTokens: outputTokens,
		CostUSD: cost, NodeID: nodeID, Timestamp: at,
	})
	t.totalCost += cost
	t.byModel[providerModel] += cost
	t.cumulative[providerModel] = priorTokens + inputTokens + outputTokens

	return cost
}

// MarginalStreamCost recomputes the cost of a streaming request's cumulative
// token count so far, without recording a Call — used to project cost for a
// throttle decision before the request completes.
func (t *Tracker) MarginalStreamCost(providerModel string, cumulativeInputTokens, cumulativeOutputTokens int64) float64 {
	pricing, ok := t.catalog.Lookup(providerModel)
	if !ok {
		return 0
	}
	discount := pricing.discountFor(cumulativeInputTokens + cumulativeOutputTokens)
	cost := (float64(cumulativeInputTokens)/1000.0)*pricing.InputPer1K + (float64(cumulativeOutputTokens)/1000.0)*pricing.OutputPer1K
	return cost * (1 - discount)
}

// TotalCost returns cumulative cost recorded so far.
func (t *Tracker) TotalCost() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalCost
}

// CostByModel returns a copy of the per-model cost breakdown.
func (t *Tracker) CostByModel() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.byModel))
	for k, v := range t.byModel {
		out[k] = v
	}
	return out
}

// Calls returns a copy of every recorded call, in recording order.
func (t *Tracker) Calls() []Call {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}
