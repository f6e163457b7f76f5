// Package cost tracks LLM spend, enforces per-scope budgets, and makes
// real-time throttling decisions over streaming metadata.
package cost

import "sync"

// VolumeTier discounts the per-token rate once cumulative usage for a model
// crosses threshold_tokens within the tracking window.
type VolumeTier struct {
	ThresholdTokens  int64
	DiscountFraction float64
}

// ModelPricing carries input/output per-1k-token rates and the volume tiers
// that can discount them, for one (provider, model) pair.
type ModelPricing struct {
	InputPer1K  float64
	OutputPer1K float64
	Tiers       []VolumeTier
}

// discountFor returns the tier's discount fraction applicable at
// cumulativeTokens, i.e. the highest threshold satisfied, or 0 if none.
func (p ModelPricing) discountFor(cumulativeTokens int64) float64 {
	best := 0.0
	bestThreshold := int64(-1)
	for _, t := range p.Tiers {
		if cumulativeTokens >= t.ThresholdTokens && t.ThresholdTokens > bestThreshold {
			best, bestThreshold = t.DiscountFraction, t.ThresholdTokens
		}
	}
	return best
}

// defaultPricing seeds the catalog for the providers this engine streams
// from. Prices are USD per 1k tokens, carried over from the teacher's
// per-1M table divided by 1000.
var defaultPricing = map[string]ModelPricing{
	"openai/gpt-4o": {
		InputPer1K: 0.0025, OutputPer1K: 0.010,
		Tiers: []VolumeTier{{ThresholdTokens: 50_000_000, DiscountFraction: 0.10}},
	},
	"openai/gpt-4o-mini": {
		InputPer1K: 0.00015, OutputPer1K: 0.0006,
	},
	"anthropic/claude-3-5-sonnet-20241022": {
		InputPer1K: 0.003, OutputPer1K: 0.015,
		Tiers: []VolumeTier{{ThresholdTokens: 50_000_000, DiscountFraction: 0.10}},
	},
	"anthropic/claude-3-haiku-20240307": {
		InputPer1K: 0.00025, OutputPer1K: 0.00125,
	},
	"google/gemini-1.5-pro": {
		InputPer1K: 0.00125, OutputPer1K: 0.005,
	},
	"google/gemini-1.5-flash": {
		InputPer1K: 0.000075, OutputPer1K: 0.0003,
	},
}

// Fetcher refreshes pricing from an external source (a provider's pricing
// API, an internal rate sheet). On failure Catalog retains the last-known-good
// entries and records when they went stale.
type Fetcher func() (map[string]ModelPricing, error)

// Catalog is the pluggable, refreshable pricing table consulted by Tracker.
// On a failed Refresh it keeps serving the last-known-good prices rather than
// failing cost calculation, recording how long they've been stale.
type Catalog struct {
	mu      sync.RWMutex
	prices  map[string]ModelPricing
	staleAt map[string]int64 // unix seconds fetch started failing, 0 if fresh
}

// NewCatalog builds a Catalog seeded with the built-in default pricing.
func NewCatalog() *Catalog {
	seeded := make(map[string]ModelPricing, len(defaultPricing))
	for k, v := range defaultPricing {
		seeded[k] = v
	}
	return &Catalog{prices: seeded, staleAt: make(map[string]int64)}
}

// Lookup returns the pricing for "provider/model", or false if unknown.
func (c *Catalog) Lookup(providerModel string) (ModelPricing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[providerModel]
	return p, ok
}

// Set installs or overrides pricing for a single (provider, model) key.
func (c *Catalog) Set(providerModel string, pricing ModelPricing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[providerModel] = pricing
	delete(c.staleAt, providerModel)
}

// Refresh pulls fresh pricing via fetch and merges it in. On error, every
// currently-known key is marked stale as of nowUnix and the existing prices
// are left untouched so callers keep getting last-known-good numbers.
func (c *Catalog) Refresh(fetch Fetcher, nowUnix int64) error {
	fresh, err := fetch()
	if err != nil {
		c.mu.Lock()
		for k := range c.prices {
			if _, already := c.staleAt[k]; !already {
				c.staleAt[k] = nowUnix
			}
		}
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range fresh {
		c.prices[k] = v
		delete(c.staleAt, k)
	}
	return nil
}

// StaleSince reports the unix timestamp pricing for key started being
// served stale (a prior Refresh failed for it), or 0 if it is fresh.
func (c *Catalog) StaleSince(providerModel string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.staleAt[providerModel]
}
