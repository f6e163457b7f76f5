package telemetry

import "context"

// Emitter receives observability events during workflow execution.
// Implementations must be non-blocking and must not panic; errors should be
// handled internally (logged, dropped, or retried) rather than surfaced to
// the caller driving the workflow.
type Emitter interface {
	// Emit sends a single event. Must not block execution.
	Emit(event Event)

	// EmitBatch sends events in commit order. Returns an error only on
	// catastrophic, non-recoverable configuration problems; per-event
	// delivery failures should be handled internally.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until any buffered events are sent, or ctx is done.
	Flush(ctx context.Context) error
}
