// Package metrics collects and exposes Prometheus metrics of the coordinator.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/meeting-coordinator/internal/persistence"
)

// Recorder is the metrics surface used by the services and the HTTP layer.
type Recorder interface {
	persistence.Observer
	RecordStatusTransition(from, to string)
	RecordAssignmentChange(action string)
	RecordOptimisticRollback(field string)
	RecordDecodeFailure()
	RecordChatMessage(kind string)
	RecordChatRejected(reason string)
	RecordHTTPRequest(method, route string, status int, elapsed time.Duration)
}

// Collector implements Recorder with Prometheus metrics.
type Collector struct {
	storeOps       *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec
	transitions    *prometheus.CounterVec
	assignments    *prometheus.CounterVec
	rollbacks      *prometheus.CounterVec
	decodeFailures prometheus.Counter
	chatMessages   *prometheus.CounterVec
	chatRejected   *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_store_operations_total",
			Help: "Store calls by collection, operation and outcome.",
		}, []string{"collection", "operation", "outcome"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coordinator_store_operation_seconds",
			Help:    "Store call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection", "operation"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_meeting_transitions_total",
			Help: "Meeting status transitions.",
		}, []string{"from", "to"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_assignment_changes_total",
			Help: "Assignment changes by action.",
		}, []string{"action"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_optimistic_rollbacks_total",
			Help: "Optimistic updates restored after a failed write.",
		}, []string{"field"}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_assignment_decode_failures_total",
			Help: "Stored assignment values that could not be decoded.",
		}),
		chatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_chat_messages_total",
			Help: "Chat messages sent by kind.",
		}, []string{"kind"}),
		chatRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_chat_rejected_total",
			Help: "Chat sends rejected by reason.",
		}, []string{"reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coordinator_http_request_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.storeOps,
		c.storeLatency,
		c.transitions,
		c.assignments,
		c.rollbacks,
		c.decodeFailures,
		c.chatMessages,
		c.chatRejected,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// ObserveStoreOperation records the outcome of a store call.
func (c *Collector) ObserveStoreOperation(collection, operation string, err error, elapsed time.Duration) {
	c.storeOps.WithLabelValues(collection, operation, outcome(err)).Inc()
	c.storeLatency.WithLabelValues(collection, operation).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, persistence.ErrNotFound):
		return "not_found"
	case errors.Is(err, persistence.ErrMissingIndex):
		return "missing_index"
	default:
		return "error"
	}
}

// RecordStatusTransition records a meeting moving between statuses.
func (c *Collector) RecordStatusTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

// RecordAssignmentChange records an assign, clear, confirm or reject.
func (c *Collector) RecordAssignmentChange(action string) {
	c.assignments.WithLabelValues(action).Inc()
}

// RecordOptimisticRollback records a restored optimistic update.
func (c *Collector) RecordOptimisticRollback(field string) {
	c.rollbacks.WithLabelValues(field).Inc()
}

// RecordDecodeFailure records an undecodable assignment value.
func (c *Collector) RecordDecodeFailure() {
	c.decodeFailures.Inc()
}

// RecordChatMessage records a sent chat message.
func (c *Collector) RecordChatMessage(kind string) {
	c.chatMessages.WithLabelValues(kind).Inc()
}

// RecordChatRejected records a refused chat send.
func (c *Collector) RecordChatRejected(reason string) {
	c.chatRejected.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every measurement.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) ObserveStoreOperation(string, string, error, time.Duration) {}
func (Nop) RecordStatusTransition(string, string) {}
func (Nop) RecordAssignmentChange(string) {}
func (Nop) RecordOptimisticRollback(string) {}
func (Nop) RecordDecodeFailure() {}
func (Nop) RecordChatMessage(string) {}
func (Nop) RecordChatRejected(string) {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
