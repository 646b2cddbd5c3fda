// Package telemetry exposes fleetwatch's Prometheus metrics: HTTP request
// instrumentation, ingestion throughput and buffer occupancy, execution
// and heartbeat counters, alert firings, and websocket client count.
// Grounded on pkg/metrics/metrics.go's package-level Registry plus
// prometheus.NewXVec/MustRegister/promhttp.HandlerFor idiom.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds fleetwatch's application-specific Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetwatch",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetwatch",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "route"})

	logsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Subsystem: "ingestion",
		Name:      "entries_total",
		Help:      "Total log entries accepted or rejected by the ingestion pipeline.",
	}, []string{"outcome"})

	ingestionBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fleetwatch",
		Subsystem: "ingestion",
		Name:      "batch_size",
		Help:      "Size of batches passed to IngestBatch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	bufferOccupancy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetwatch",
		Subsystem: "ingestion",
		Name:      "buffer_occupancy",
		Help:      "Number of log entries currently queued for batch flush.",
	})

	flushLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fleetwatch",
		Subsystem: "ingestion",
		Name:      "flush_duration_seconds",
		Help:      "Duration of a single batch flush to storage.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	executionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Subsystem: "executions",
		Name:      "started_total",
		Help:      "Total job executions started, grouped by trigger type.",
	}, []string{"trigger_type"})

	executionsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Subsystem: "executions",
		Name:      "completed_total",
		Help:      "Total job executions completed, grouped by terminal status.",
	}, []string{"status"})

	executionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetwatch",
		Subsystem: "executions",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of completed job executions.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16),
	}, []string{"status"})

	heartbeatsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Subsystem: "servers",
		Name:      "heartbeats_total",
		Help:      "Total heartbeats processed, grouped by resulting server status.",
	}, []string{"status"})

	serversByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fleetwatch",
		Subsystem: "servers",
		Name:      "count",
		Help:      "Current number of known servers, grouped by status.",
	}, []string{"status"})

	alertsFired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Subsystem: "alerts",
		Name:      "fired_total",
		Help:      "Total alert instances fired, grouped by alert type.",
	}, []string{"alert_type"})

	alertsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Subsystem: "alerts",
		Name:      "resolved_total",
		Help:      "Total alert instances transitioned to a terminal state, grouped by transition.",
	}, []string{"transition"})

	retentionDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Subsystem: "retention",
		Name:      "rows_deleted_total",
		Help:      "Total rows deleted by retention sweeps, grouped by category.",
	}, []string{"category"})

	websocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetwatch",
		Subsystem: "realtime",
		Name:      "websocket_clients",
		Help:      "Current number of connected real-time websocket subscribers.",
	})

	websocketDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Subsystem: "realtime",
		Name:      "dropped_events_total",
		Help:      "Total bus events dropped because a subscriber's channel was full.",
	}, []string{"topic"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		logsIngested,
		ingestionBatchSize,
		bufferOccupancy,
		flushLatency,
		executionsStarted,
		executionsCompleted,
		executionDuration,
		heartbeatsProcessed,
		serversByStatus,
		alertsFired,
		alertsResolved,
		retentionDeleted,
		websocketClients,
		websocketDropped,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics at /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP request/duration instrumentation.
// route should be a low-cardinality label (a mux route template, not the
// raw path) to avoid label explosion from path parameters like log IDs.
func InstrumentHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordLogAccepted increments the accepted-entries counter.
func RecordLogAccepted(n int) {
	logsIngested.WithLabelValues("accepted").Add(float64(n))
}

// RecordLogRejected increments the rejected-entries counter.
func RecordLogRejected(n int) {
	logsIngested.WithLabelValues("rejected").Add(float64(n))
}

// RecordBatchSize observes the size of a batch passed to IngestBatch.
func RecordBatchSize(n int) {
	ingestionBatchSize.Observe(float64(n))
}

// SetBufferOccupancy reports the current queued-entry count.
func SetBufferOccupancy(n int) {
	bufferOccupancy.Set(float64(n))
}

// RecordFlush observes how long a batch flush to storage took.
func RecordFlush(d time.Duration) {
	flushLatency.Observe(d.Seconds())
}

// RecordExecutionStarted increments the started-executions counter.
func RecordExecutionStarted(triggerType string) {
	if triggerType == "" {
		triggerType = "unknown"
	}
	executionsStarted.WithLabelValues(triggerType).Inc()
}

// RecordExecutionCompleted increments the completed-executions counter and
// observes its duration, grouped by terminal status.
func RecordExecutionCompleted(status string, d time.Duration) {
	if status == "" {
		status = "unknown"
	}
	executionsCompleted.WithLabelValues(status).Inc()
	executionDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordHeartbeat increments the heartbeats counter, grouped by the
// server's resulting status.
func RecordHeartbeat(status string) {
	if status == "" {
		status = "unknown"
	}
	heartbeatsProcessed.WithLabelValues(status).Inc()
}

// SetServerCounts replaces the per-status server gauge with fresh counts.
func SetServerCounts(counts map[string]int) {
	serversByStatus.Reset()
	for status, n := range counts {
		serversByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// RecordAlertFired increments the alerts-fired counter for alertType.
func RecordAlertFired(alertType string) {
	if alertType == "" {
		alertType = "unknown"
	}
	alertsFired.WithLabelValues(alertType).Inc()
}

// RecordAlertTransition increments the alerts-resolved counter for a
// terminal transition (e.g. "acknowledge", "resolve", "suppress").
func RecordAlertTransition(transition string) {
	if transition == "" {
		transition = "unknown"
	}
	alertsResolved.WithLabelValues(transition).Inc()
}

// RecordRetentionDeleted adds n to the retention-deleted counter for category.
func RecordRetentionDeleted(category string, n int) {
	if n <= 0 {
		return
	}
	retentionDeleted.WithLabelValues(category).Add(float64(n))
}

// SetWebsocketClients reports the current subscriber count.
func SetWebsocketClients(n int) {
	websocketClients.Set(float64(n))
}

// RecordWebsocketDropped increments the dropped-events counter for topic.
func RecordWebsocketDropped(topic string) {
	if topic == "" {
		topic = "unknown"
	}
	websocketDropped.WithLabelValues(topic).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
