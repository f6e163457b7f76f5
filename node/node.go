// Package node defines the node implementation contract and the registry
// that catalogs implementations by their stable type identifier.
package node

import (
	"context"

	"github.com/flowcore/wfengine/taskctx"
)

// TypeID is the stable, deterministic identifier of a node implementation.
// Two instances of the same implementation must return the same TypeID.
type TypeID string

// Capabilities advertises what a node implementation supports, consulted by
// the scheduler and by validators that require certain features (e.g. a
// router branch must be able to produce a routing hint on every invocation).
type Capabilities struct {
	SupportsStreaming    bool
	SupportsCancellation bool
}

// Node is a single unit of work in a workflow graph. Implementations are
// registered once per TypeID and may be invoked concurrently across many
// executions, so Process must not hold mutable state keyed by anything other
// than its context argument.
type Node interface {
	// TypeID returns this implementation's stable type identifier.
	TypeID() TypeID

	// Process runs the node against ctx, returning the (possibly mutated)
	// context to merge back into the execution, or an error. Implementations
	// must observe cancellation of the supplied context.Context promptly.
	Process(ctx context.Context, tc *taskctx.Context) (*taskctx.Context, error)

	// Capabilities reports this implementation's feature support.
	Capabilities() Capabilities
}

// Func adapts a plain function to the Node interface, mirroring the
// teacher's NodeFunc adapter for engines with a single-method interface.
type Func struct {
	ID   TypeID
	Run  func(ctx context.Context, tc *taskctx.Context) (*taskctx.Context, error)
	Caps Capabilities
}

// TypeID implements Node.
func (f Func) TypeID() TypeID { return f.ID }

// Process implements Node.
func (f Func) Process(ctx context.Context, tc *taskctx.Context) (*taskctx.Context, error) {
	return f.Run(ctx, tc)
}

// Capabilities implements Node.
func (f Func) Capabilities() Capabilities { return f.Caps }

// RouteKey is the well-known key a router node writes its routing decision
// to, as either a node output (typed RouteDecision, checked first) or a
// metadata string (legacy form, checked second). The scheduler reads this
// key from the context the router returns to decide which single successor
// to enqueue.
const RouteKey = "_route"

// RouteDecision is the typed shape of a router's routing output, preferred
// over the legacy bare metadata string: it leaves room for a router to
// explain its choice without callers having to parse a free-form string.
type RouteDecision struct {
	To     TypeID `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// SetRoute records a router's routing decision as a typed node output
// before it returns.
func SetRoute(tc *taskctx.Context, successor TypeID) error {
	return tc.SetNodeOutput(RouteKey, RouteDecision{To: successor})
}

// SetRouteWithReason is SetRoute plus a human-readable justification,
// useful for routers whose hint depends on several competing signals.
func SetRouteWithReason(tc *taskctx.Context, successor TypeID, reason string) error {
	return tc.SetNodeOutput(RouteKey, RouteDecision{To: successor, Reason: reason})
}

// GetRoute reads the routing decision previously recorded by SetRoute. It
// checks the typed node-output form first, then falls back to a bare
// metadata string under the same key for routers that set it directly via
// tc.SetMetadata(node.RouteKey, "successor_id").
func GetRoute(tc *taskctx.Context) (TypeID, bool) {
	if v, ok := tc.GetNodeOutput(RouteKey); ok {
		var decision RouteDecision
		if err := v.As(&decision); err == nil && decision.To != "" {
			return decision.To, true
		}
	}
	if v, ok := tc.GetMetadata(RouteKey); ok {
		if s := v.String(); s != "" {
			return TypeID(s), true
		}
	}
	return "", false
}
