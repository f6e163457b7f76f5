package cost

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/flowcore/wfengine/errs"
)

// DecisionKind is the outcome of a throttle check.
type DecisionKind string

const (
	Allow DecisionKind = "Allow"
	Delay DecisionKind = "Delay"
	Deny  DecisionKind = "Deny"
)

// Decision is the result of CheckStreamingThrottle: either proceed, wait
// Duration before the next chunk is admitted, or abort with Reason.
type Decision struct {
	Kind     DecisionKind
	Duration time.Duration
	Reason   string
}

// StreamMetadata is the per-chunk accounting a streaming provider reports,
// the sole input to throttle decisions.
type StreamMetadata struct {
	Model             string
	Provider          string
	TokenCount        int64
	CumulativeTokens  int64
	ProcessingTimeMS  int64
}

// Throttle evaluates streaming cost metadata against a set of budgets and
// decides whether to let a stream continue, slow it down, or abort it.
// limiter paces Delay decisions so repeated checks in quick succession
// compound toward maxDelay rather than each computing the same scale-based
// wait independently.
type Throttle struct {
	budgets []*Budget
	catalog *Catalog
	limiter *rate.Limiter
	maxDelay time.Duration
}

// NewThrottle builds a Throttle over the given budgets (all applicable
// scopes for a request should be included by the caller), pricing calls
// through catalog. maxDelay caps any single Delay decision.
func NewThrottle(budgets []*Budget, catalog *Catalog, maxDelay time.Duration) *Throttle {
	return &Throttle{
		budgets: budgets, catalog: catalog, maxDelay: maxDelay,
		limiter: rate.NewLimiter(rate.Every(time.Millisecond), 1),
	}
}

// CheckStreamingThrottle decides Allow/Delay/Deny for the next chunk,
// projecting the cost of completing the request at the model's current
// rate against every applicable budget. principal, if non-empty, may bypass
// a Deny if the owning budget has an override on file for it.
func (th *Throttle) CheckStreamingThrottle(meta StreamMetadata, estimatedRemainingTokens int64, principal string) Decision {
	if len(th.budgets) == 0 {
		return Decision{Kind: Allow}
	}

	providerModel := meta.Provider + "/" + meta.Model
	pricing, ok := th.catalog.Lookup(providerModel)
	if !ok {
		return Decision{Kind: Allow}
	}
	ratePerToken := (pricing.InputPer1K + pricing.OutputPer1K) / 2 / 1000.0
	remainingCost := float64(estimatedRemainingTokens) * ratePerToken

	worstFraction := 0.0
	worstBudget := (*Budget)(nil)
	for _, b := range th.budgets {
		projected := b.projectedFraction(remainingCost)
		if projected > worstFraction {
			worstFraction = projected
			worstBudget = b
		}
	}

	switch {
	case worstFraction >= 1.0:
		if worstBudget != nil && th.overrideAllows(worstBudget, principal) {
			return Decision{Kind: Allow}
		}
		scope := ""
		if worstBudget != nil {
			scope = string(worstBudget.Scope)
		}
		return Decision{Kind: Deny, Reason: errs.BudgetExceeded(scope).Error()}
	case worstBudget != nil && worstFraction >= worstBudget.SoftThreshold:
		headroom := 1.0 - worstBudget.SoftThreshold
		over := worstFraction - worstBudget.SoftThreshold
		scale := 1.0
		if headroom > 0 {
			scale = over / headroom
		}
		delay := time.Duration(float64(th.maxDelay) * scale)
		if paced := th.pacedDelay(scale); paced > delay {
			delay = paced
		}
		if delay > th.maxDelay {
			delay = th.maxDelay
		}
		return Decision{Kind: Delay, Duration: delay}
	default:
		return Decision{Kind: Allow}
	}
}

func (th *Throttle) overrideAllows(b *Budget, principal string) bool {
	if principal == "" {
		return false
	}
	return b.hasOverride(principal)
}

// pacedDelay reconfigures limiter's refill interval to maxDelay*scale and
// returns how long the next chunk must wait under that rate, so repeated
// calls in quick succession compound into a longer wait than a single
// scale-based calculation would produce on its own.
func (th *Throttle) pacedDelay(scale float64) time.Duration {
	if scale <= 0 {
		return 0
	}
	interval := time.Duration(float64(th.maxDelay) * scale)
	if interval <= 0 {
		return 0
	}
	th.limiter.SetLimit(rate.Every(interval))
	r := th.limiter.ReserveN(time.Now(), 1)
	if !r.OK() {
		return 0
	}
	return r.Delay()
}
