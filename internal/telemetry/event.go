// Package telemetry provides the observability sink used alongside the
// event store: a lightweight, pluggable Emitter for logs/traces/metrics that
// never blocks or fails workflow execution, distinct from eventstore.Store
// which is the system of record for lifecycle events.
package telemetry

// Event is an observability event describing something that happened during
// a workflow run, independent of the persisted lifecycle events appended to
// the event store.
type Event struct {
	RunID  string
	Step   int
	NodeID string
	Msg    string
	Meta   map[string]interface{}
}
