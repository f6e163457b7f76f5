// Package scheduler drives a validated workflow schema on a task context to
// a terminal state: a ready set of eligible nodes is dispatched concurrently
// (bounded per node type by a semaphore), successes route to successors
// (directly, or through a router's single chosen hint), retryable failures
// back off and re-attempt, and terminal failures or external cancellation
// drain in-flight work and stop. Every lifecycle transition is appended to
// an eventstore.Store aggregate stream named after the execution's instance
// id, mirroring the teacher's pattern of the engine owning persistence and
// emission (graph/engine.go's runConcurrent) generalized from a fixed
// worker pool over a priority frontier to a ready-set-with-router model.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/eventstore"
	"github.com/flowcore/wfengine/internal/telemetry"
	"github.com/flowcore/wfengine/node"
	"github.com/flowcore/wfengine/taskctx"
	"github.com/flowcore/wfengine/workflow"
)

// ExecutionStatus is the lifecycle state of one workflow execution.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "Pending"
	StatusRunning   ExecutionStatus = "Running"
	StatusCompleted ExecutionStatus = "Completed"
	StatusFailed    ExecutionStatus = "Failed"
	StatusCancelled ExecutionStatus = "Cancelled"
)

// StepRecord logs one node invocation attempt for introspection; not
// persisted, rebuilt from the event stream if needed after a restart.
type StepRecord struct {
	NodeID     node.TypeID
	Attempt    int
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

type instance struct {
	mu         sync.Mutex
	id         string
	schema     *workflow.Schema
	context    *taskctx.Context
	status     ExecutionStatus
	startedAt  time.Time
	finishedAt time.Time
	steps      []StepRecord
	err        error
	step       atomic.Int64

	cancelExternal context.CancelFunc
	done           chan struct{}
}

func (i *instance) snapshotStatus() (ExecutionStatus, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status, i.err
}

func (i *instance) recordStep(rec StepRecord) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.steps = append(i.steps, rec)
}

// Engine runs workflow executions against a node.Registry, appending
// lifecycle events to an eventstore.Store and, optionally, mirroring them to
// a telemetry.Emitter and a PrometheusMetrics collector.
type Engine struct {
	registry *node.Registry
	store    eventstore.Store
	emitter  telemetry.Emitter
	metrics  *telemetry.PrometheusMetrics

	defaultNodeTimeout time.Duration

	mu         sync.Mutex
	semaphores map[node.TypeID]chan struct{}
	instances  map[string]*instance
}

// NewEngine builds an Engine. emitter and metrics may be nil.
func NewEngine(registry *node.Registry, store eventstore.Store, emitter telemetry.Emitter, metrics *telemetry.PrometheusMetrics, defaultNodeTimeout time.Duration) *Engine {
	if emitter == nil {
		emitter = telemetry.NullEmitter{}
	}
	return &Engine{
		registry:           registry,
		store:              store,
		emitter:            emitter,
		metrics:            metrics,
		defaultNodeTimeout: defaultNodeTimeout,
		semaphores:         make(map[node.TypeID]chan struct{}),
		instances:          make(map[string]*instance),
	}
}

// Trigger starts schema running against initial asynchronously and returns
// its instance id immediately; use Status to poll progress and events
// appended via the event store for a durable record.
func (e *Engine) Trigger(ctx context.Context, schema *workflow.Schema, initial *taskctx.Context) (string, error) {
	if schema == nil {
		return "", errs.Validation("schema", "must not be nil")
	}
	if initial == nil {
		initial = taskctx.New()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	inst := &instance{
		id:             uuid.NewString(),
		schema:         schema,
		context:        initial,
		status:         StatusPending,
		done:           make(chan struct{}),
		cancelExternal: cancel,
	}

	e.mu.Lock()
	e.instances[inst.id] = inst
	e.mu.Unlock()

	go e.run(runCtx, inst)

	// Propagate the caller's context cancellation (distinct from an explicit
	// Cancel(instanceID) call) without blocking Trigger's return.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	return inst.id, nil
}

// Execute runs schema against initial and blocks until it reaches a
// terminal state, returning the merged context or the terminal error.
func (e *Engine) Execute(ctx context.Context, schema *workflow.Schema, initial *taskctx.Context) (*taskctx.Context, error) {
	id, err := e.Trigger(ctx, schema, initial)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	inst := e.instances[id]
	e.mu.Unlock()

	select {
	case <-inst.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.context, inst.err
}

// Status reports instanceID's current lifecycle state.
func (e *Engine) Status(instanceID string) (ExecutionStatus, error) {
	e.mu.Lock()
	inst, ok := e.instances[instanceID]
	e.mu.Unlock()
	if !ok {
		return "", errs.NotFound("execution " + instanceID)
	}
	status, _ := inst.snapshotStatus()
	return status, nil
}

// Cancel requests cooperative cancellation of instanceID. In-flight nodes
// observe it at their next suspension point (timeout check, retry sleep) and
// surface a Cancelled error; the execution then drains and stops.
func (e *Engine) Cancel(instanceID string) error {
	e.mu.Lock()
	inst, ok := e.instances[instanceID]
	e.mu.Unlock()
	if !ok {
		return errs.NotFound("execution " + instanceID)
	}
	inst.cancelExternal()
	return nil
}

type readyItem struct {
	nodeID node.TypeID
	seq    int64
}

type outcome struct {
	nodeID node.TypeID
	next   []node.TypeID
	err    error
}

func (e *Engine) run(externalCtx context.Context, inst *instance) {
	defer close(inst.done)

	workCtx, cancelWork := context.WithCancel(externalCtx)
	defer cancelWork()

	rec := newRecorder(e.store, inst.id)
	inst.mu.Lock()
	inst.status = StatusRunning
	inst.startedAt = now()
	inst.mu.Unlock()

	if err := rec.workflowStarted(workCtx, inst.schema.Name, inst.schema.Version, inst.schema.Start); err != nil {
		e.finish(inst, rec, workCtx, externalCtx, err)
		return
	}
	e.emitter.Emit(telemetry.Event{RunID: inst.id, Msg: "workflow_started"})

	var seqCounter int64
	ready := []readyItem{{nodeID: inst.schema.Start, seq: seqCounter}}
	inflight := 0
	results := make(chan outcome)
	var failErr error

	for inflight > 0 || (failErr == nil && len(ready) > 0) {
		if failErr == nil {
			sortReady(ready, inst.schema)
			for _, item := range ready {
				cfg, ok := inst.schema.Config(item.nodeID)
				if !ok {
					failErr = errs.NodeNotFound(string(item.nodeID))
					break
				}
				inflight++
				go e.executeNode(workCtx, inst, rec, cfg, results)
			}
			ready = ready[:0]
		} else {
			ready = nil
		}

		if inflight == 0 {
			break
		}

		out := <-results
		inflight--
		if out.err != nil {
			if failErr == nil {
				failErr = out.err
				cancelWork()
			}
			continue
		}
		if failErr == nil {
			for _, n := range out.next {
				seqCounter++
				ready = append(ready, readyItem{nodeID: n, seq: seqCounter})
			}
		}
	}

	e.finish(inst, rec, workCtx, externalCtx, failErr)
}

func sortReady(ready []readyItem, schema *workflow.Schema) {
	for i := 1; i < len(ready); i++ {
		for j := i; j > 0; j-- {
			a, b := ready[j-1], ready[j]
			ca, _ := schema.Config(a.nodeID)
			cb, _ := schema.Config(b.nodeID)
			swap := false
			if ca.Priority < cb.Priority {
				swap = true
			} else if ca.Priority == cb.Priority && a.seq > b.seq {
				swap = true
			}
			if !swap {
				break
			}
			ready[j-1], ready[j] = ready[j], ready[j-1]
		}
	}
}

func (e *Engine) finish(inst *instance, rec *recorder, workCtx context.Context, externalCtx context.Context, runErr error) {
	inst.mu.Lock()
	inst.finishedAt = now()
	inst.mu.Unlock()

	recordCtx := context.Background()

	switch {
	case externalCtx.Err() != nil:
		_ = rec.workflowCancelled(recordCtx)
		e.emitter.Emit(telemetry.Event{RunID: inst.id, Msg: "workflow_cancelled"})
		inst.mu.Lock()
		inst.status = StatusCancelled
		inst.err = errs.Cancelled()
		inst.mu.Unlock()
	case runErr != nil:
		_ = rec.workflowFailed(recordCtx, runErr)
		e.emitter.Emit(telemetry.Event{RunID: inst.id, Msg: "workflow_failed", Meta: map[string]interface{}{"error": runErr.Error()}})
		inst.mu.Lock()
		inst.status = StatusFailed
		inst.err = runErr
		inst.mu.Unlock()
	default:
		_ = rec.workflowCompleted(recordCtx)
		e.emitter.Emit(telemetry.Event{RunID: inst.id, Msg: "workflow_completed"})
		inst.mu.Lock()
		inst.status = StatusCompleted
		inst.mu.Unlock()
	}
}

func (e *Engine) executeNode(ctx context.Context, inst *instance, rec *recorder, cfg *node.Config, results chan<- outcome) {
	impl, err := e.registry.MustLookup(cfg.Type)
	if err != nil {
		results <- outcome{nodeID: cfg.Type, err: err}
		return
	}

	sem := e.semaphoreFor(cfg)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		results <- outcome{nodeID: cfg.Type, err: errs.Cancelled()}
		return
	}
	defer func() { <-sem }()

	maxAttempts := 1
	if cfg.Retry.Enabled() {
		maxAttempts = cfg.Retry.Attempts
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = e.defaultNodeTimeout
	}

	inst.mu.Lock()
	tc := inst.context.Clone()
	inst.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			results <- outcome{nodeID: cfg.Type, err: errs.Cancelled()}
			return
		default:
		}

		step := int(inst.step.Add(1))
		_ = rec.nodeStarted(ctx, cfg.Type, attempt)
		e.emitter.Emit(telemetry.Event{RunID: inst.id, Step: step, NodeID: string(cfg.Type), Msg: "node_started",
			Meta: map[string]interface{}{"attempt": attempt}})

		nodeCtx := ctx
		var nodeCancel context.CancelFunc
		if timeout > 0 {
			nodeCtx, nodeCancel = context.WithTimeout(ctx, timeout)
		}
		start := time.Now()
		result, procErr := impl.Process(nodeCtx, tc)
		latency := time.Since(start)

		if procErr != nil && nodeCtx.Err() == context.DeadlineExceeded {
			procErr = errs.Timeout(string(cfg.Type), timeout)
		}
		if nodeCancel != nil {
			nodeCancel()
		}

		status := "success"
		if procErr != nil {
			status = "error"
		}
		if e.metrics != nil {
			e.metrics.RecordStepLatency(inst.id, string(cfg.Type), latency, status)
		}
		inst.recordStep(StepRecord{NodeID: cfg.Type, Attempt: attempt, StartedAt: start, FinishedAt: time.Now(), Err: procErr})

		if procErr != nil {
			lastErr = procErr
			retryable := errs.Retryable(procErr)
			willRetry := retryable && attempt < maxAttempts
			_ = rec.nodeFailed(ctx, cfg.Type, procErr, attempt, willRetry)
			e.emitter.Emit(telemetry.Event{RunID: inst.id, Step: step, NodeID: string(cfg.Type), Msg: "node_failed",
				Meta: map[string]interface{}{"error": procErr.Error(), "attempt": attempt, "will_retry": willRetry}})

			if !willRetry {
				results <- outcome{nodeID: cfg.Type, err: procErr}
				return
			}
			if e.metrics != nil {
				e.metrics.IncrementRetries(inst.id, string(cfg.Type), "error")
			}
			select {
			case <-time.After(backoffDelay(cfg.Retry, attempt)):
			case <-ctx.Done():
				results <- outcome{nodeID: cfg.Type, err: errs.Cancelled()}
				return
			}
			continue
		}

		tc = result
		inst.mu.Lock()
		inst.context.Merge(tc)
		inst.mu.Unlock()

		_ = rec.nodeCompleted(ctx, cfg.Type, summarizeOutput(tc))
		e.emitter.Emit(telemetry.Event{RunID: inst.id, Step: step, NodeID: string(cfg.Type), Msg: "node_completed"})

		next, routeErr := routeNext(cfg, tc, inst.schema)
		if routeErr != nil {
			results <- outcome{nodeID: cfg.Type, err: routeErr}
			return
		}
		results <- outcome{nodeID: cfg.Type, next: next}
		return
	}

	results <- outcome{nodeID: cfg.Type, err: lastErr}
}

func (e *Engine) semaphoreFor(cfg *node.Config) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	sem, ok := e.semaphores[cfg.Type]
	if !ok {
		n := cfg.MaxConcurrentExecutions
		if n <= 0 {
			n = 1
		}
		sem = make(chan struct{}, n)
		e.semaphores[cfg.Type] = sem
	}
	return sem
}

// routeNext determines the successors eligible to join the ready set after
// cfg's node completed successfully. Routers select exactly one successor
// named by the routing hint they wrote to the context; ordinary nodes add
// every successor whose required inputs are now satisfied.
func routeNext(cfg *node.Config, tc *taskctx.Context, schema *workflow.Schema) ([]node.TypeID, error) {
	if cfg.IsRouter {
		hint, ok := node.GetRoute(tc)
		if !ok {
			return nil, errs.InvalidRouter(string(cfg.Type), "missing routing hint")
		}
		for _, c := range cfg.Connections {
			if c == hint {
				return []node.TypeID{hint}, nil
			}
		}
		return nil, errs.InvalidRouter(string(cfg.Type), fmt.Sprintf("unknown successor %q", hint))
	}

	var next []node.TypeID
	for _, succ := range cfg.Connections {
		succCfg, ok := schema.Config(succ)
		if !ok {
			continue
		}
		if requiredInputsSatisfied(succCfg, tc) {
			next = append(next, succ)
		}
	}
	return next, nil
}

func requiredInputsSatisfied(cfg *node.Config, tc *taskctx.Context) bool {
	for key := range cfg.RequiredInputs {
		if _, ok := tc.GetNodeOutput(key); ok {
			continue
		}
		if _, ok := tc.GetMetadata(key); ok {
			continue
		}
		return false
	}
	return true
}

func summarizeOutput(tc *taskctx.Context) string {
	data, err := tc.Serialize()
	if err != nil {
		return ""
	}
	const maxLen = 256
	if len(data) > maxLen {
		return string(data[:maxLen]) + "..."
	}
	return string(data)
}

// backoffDelay computes initial_delay * backoff_multiplier^(attempt-1),
// capped by max_delay, with +/-20% jitter, per the retry semantics of the
// executor's invocation contract.
func backoffDelay(p node.RetryPolicy, attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	jitter := delay * (rand.Float64()*0.4 - 0.2) //nolint:gosec // timing jitter, not security-sensitive
	d := time.Duration(delay + jitter)
	if d < 0 {
		d = 0
	}
	return d
}
