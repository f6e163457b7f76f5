package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowcore/wfengine/eventstore"
	"github.com/flowcore/wfengine/node"
)

// AggregateType is the eventstore aggregate_type recorded for every
// execution's lifecycle stream; the aggregate id is the execution's
// instance id.
const AggregateType = "workflow_execution"

// Lifecycle event types appended, in order, as an execution progresses.
const (
	EventWorkflowStarted   = "WorkflowStarted"
	EventNodeStarted       = "NodeStarted"
	EventNodeCompleted     = "NodeCompleted"
	EventNodeFailed        = "NodeFailed"
	EventWorkflowCompleted = "WorkflowCompleted"
	EventWorkflowFailed    = "WorkflowFailed"
	EventWorkflowCancelled = "WorkflowCancelled"
)

// WorkflowStartedPayload is the Data of an EventWorkflowStarted event.
type WorkflowStartedPayload struct {
	SchemaName    string `json:"schema_name"`
	SchemaVersion string `json:"schema_version"`
	StartNode     string `json:"start_node"`
}

// NodeStartedPayload is the Data of an EventNodeStarted event.
type NodeStartedPayload struct {
	NodeID  string `json:"node_id"`
	Attempt int    `json:"attempt"`
}

// NodeCompletedPayload is the Data of an EventNodeCompleted event.
type NodeCompletedPayload struct {
	NodeID        string `json:"node_id"`
	OutputSummary string `json:"output_summary"`
}

// NodeFailedPayload is the Data of an EventNodeFailed event.
type NodeFailedPayload struct {
	NodeID    string `json:"node_id"`
	Error     string `json:"error"`
	Attempt   int    `json:"attempt"`
	WillRetry bool   `json:"will_retry"`
}

// WorkflowFailedPayload is the Data of an EventWorkflowFailed event.
type WorkflowFailedPayload struct {
	Error string `json:"error"`
}

// recorder appends lifecycle events to an execution's aggregate stream,
// assigning consecutive versions. The dispatch loop and the node goroutines
// of one execution append concurrently, so append holds a mutex across
// reading the current version and appending at it.
type recorder struct {
	mu         sync.Mutex
	store      eventstore.Store
	instanceID string
}

func newRecorder(store eventstore.Store, instanceID string) *recorder {
	return &recorder{store: store, instanceID: instanceID}
}

func (r *recorder) append(ctx context.Context, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, err := r.store.CurrentVersion(ctx, r.instanceID)
	if err != nil {
		return err
	}
	ev := eventstore.NewEvent(uuid.NewString(), r.instanceID, AggregateType, eventType, data)
	_, err = r.store.Append(ctx, r.instanceID, current, []eventstore.Event{ev})
	return err
}

func (r *recorder) workflowStarted(ctx context.Context, schemaName, schemaVersion string, start node.TypeID) error {
	return r.append(ctx, EventWorkflowStarted, WorkflowStartedPayload{
		SchemaName: schemaName, SchemaVersion: schemaVersion, StartNode: string(start),
	})
}

func (r *recorder) nodeStarted(ctx context.Context, nodeID node.TypeID, attempt int) error {
	return r.append(ctx, EventNodeStarted, NodeStartedPayload{NodeID: string(nodeID), Attempt: attempt})
}

func (r *recorder) nodeCompleted(ctx context.Context, nodeID node.TypeID, outputSummary string) error {
	return r.append(ctx, EventNodeCompleted, NodeCompletedPayload{NodeID: string(nodeID), OutputSummary: outputSummary})
}

func (r *recorder) nodeFailed(ctx context.Context, nodeID node.TypeID, cause error, attempt int, willRetry bool) error {
	return r.append(ctx, EventNodeFailed, NodeFailedPayload{
		NodeID: string(nodeID), Error: cause.Error(), Attempt: attempt, WillRetry: willRetry,
	})
}

func (r *recorder) workflowCompleted(ctx context.Context) error {
	return r.append(ctx, EventWorkflowCompleted, struct{}{})
}

func (r *recorder) workflowFailed(ctx context.Context, cause error) error {
	return r.append(ctx, EventWorkflowFailed, WorkflowFailedPayload{Error: cause.Error()})
}

func (r *recorder) workflowCancelled(ctx context.Context) error {
	return r.append(ctx, EventWorkflowCancelled, struct{}{})
}

// now is a seam for tests; production code always uses time.Now().
var now = time.Now
