package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CouchbaseOperationsTotal tracks document store operations by outcome
	CouchbaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "couchbase_operations_total",
			Help: "Total number of Couchbase operations",
		},
		[]string{"operation", "status"}, // "add", "get", "query", ... x "success", "document_not_found", ...
	)

	// CouchbaseOperationDuration tracks document store operation duration
	CouchbaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "couchbase_operation_duration_seconds",
			Help:    "Duration of Couchbase operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// WorkloadStepsTotal tracks example workload steps by outcome
	WorkloadStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workload_steps_total",
			Help: "Total number of executed workload steps",
		},
		[]string{"step", "status"}, // "success", "failure"
	)

	// HTTPRequestsTotal tracks requests served by the diagnostics endpoints
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestDuration tracks diagnostics request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPActiveConnections tracks in-flight diagnostics requests
	HTTPActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)
)

// RecordCouchbaseOperation records the outcome of a document store operation
func RecordCouchbaseOperation(operation, status string) {
	CouchbaseOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordCouchbaseOperationDuration records document store operation duration
func RecordCouchbaseOperationDuration(operation string, duration time.Duration) {
	CouchbaseOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordWorkloadStep records the outcome of one example workload step
func RecordWorkloadStep(step string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	WorkloadStepsTotal.WithLabelValues(step, status).Inc()
}

// RecordHTTPRequest records metrics for a served HTTP request
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}
