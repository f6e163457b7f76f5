package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus-compatible metrics for workflow
// execution, namespaced "wfengine_".
//
//   - inflight_nodes (gauge, labels: run_id): nodes executing concurrently.
//   - queue_depth (gauge): the depth last passed to UpdateQueueDepth.
//   - step_latency_ms (histogram, labels: run_id, node_id, status): node
//     execution duration.
//   - retries_total (counter, labels: run_id, node_id, reason): retry
//     attempts consumed.
//   - backpressure_events_total (counter, labels: run_id): backpressure
//     events reported through IncrementBackpressure.
//   - dispatch_failures_total (counter, labels: subscriber_id): subscriber
//     deliveries that exhausted retries and were sent to the DLQ.
//   - budget_exceeded_total (counter, labels: run_id): cost-budget checks
//     that rejected a request.
type PrometheusMetrics struct {
	inflightNodes prometheus.Gauge
	queueDepth    prometheus.Gauge

	stepLatency *prometheus.HistogramVec

	retries          *prometheus.CounterVec
	backpressure     *prometheus.CounterVec
	dispatchFailures *prometheus.CounterVec
	budgetExceeded   *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics registers all workflow metrics with registry. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "wfengine",
		Name:      "inflight_nodes",
		Help:      "Current number of nodes executing concurrently",
	})
	pm.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "wfengine",
		Name:      "queue_depth",
		Help:      "Pending work items waiting to be scheduled",
	})
	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wfengine",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"run_id", "node_id", "status"})
	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wfengine",
		Name:      "retries_total",
		Help:      "Cumulative node retry attempts",
	}, []string{"run_id", "node_id", "reason"})
	pm.backpressure = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wfengine",
		Name:      "backpressure_events_total",
		Help:      "Backpressure events reported by the caller",
	}, []string{"run_id"})
	pm.dispatchFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wfengine",
		Name:      "dispatch_failures_total",
		Help:      "Subscriber deliveries that exhausted retries and were sent to the DLQ",
	}, []string{"subscriber_id"})
	pm.budgetExceeded = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wfengine",
		Name:      "budget_exceeded_total",
		Help:      "Requests rejected because a cost budget was exceeded",
	}, []string{"run_id"})

	return pm
}

// RecordStepLatency records a node's execution duration.
func (pm *PrometheusMetrics) RecordStepLatency(runID, nodeID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.stepLatency.WithLabelValues(runID, nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries records one retry attempt consumed by nodeID.
func (pm *PrometheusMetrics) IncrementRetries(runID, nodeID, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.retries.WithLabelValues(runID, nodeID, reason).Inc()
}

// UpdateQueueDepth sets the current queue depth.
func (pm *PrometheusMetrics) UpdateQueueDepth(depth int) {
	if !pm.isEnabled() {
		return
	}
	pm.queueDepth.Set(float64(depth))
}

// UpdateInflightNodes sets the current concurrently-executing node count.
func (pm *PrometheusMetrics) UpdateInflightNodes(count int) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightNodes.Set(float64(count))
}

// IncrementBackpressure records one backpressure event for runID.
func (pm *PrometheusMetrics) IncrementBackpressure(runID string) {
	if !pm.isEnabled() {
		return
	}
	pm.backpressure.WithLabelValues(runID).Inc()
}

// IncrementDispatchFailures records a subscriber delivery sent to the DLQ.
func (pm *PrometheusMetrics) IncrementDispatchFailures(subscriberID string) {
	if !pm.isEnabled() {
		return
	}
	pm.dispatchFailures.WithLabelValues(subscriberID).Inc()
}

// IncrementBudgetExceeded records a request rejected by a cost budget.
func (pm *PrometheusMetrics) IncrementBudgetExceeded(runID string) {
	if !pm.isEnabled() {
		return
	}
	pm.budgetExceeded.WithLabelValues(runID).Inc()
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// Disable turns off metric recording without unregistering collectors.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
