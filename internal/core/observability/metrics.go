package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream OGC calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "operation"},
	)

	publishStageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publish_stage_duration_seconds",
			Help:    "Duration of each layer publishing stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"stage", "outcome"},
	)

	publishResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_results_total",
			Help: "Layer publish attempts by terminal state and error kind.",
		},
		[]string{"state", "kind"},
	)

	docstoreOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_op_total",
			Help: "Document store operations by backend, op and result.",
		},
		[]string{"backend", "op", "result"},
	)

	docstoreOpSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_operation_duration_seconds",
			Help:    "Document store operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"backend", "op"},
	)

	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "layer_events_dropped_total",
			Help: "Lifecycle events dropped because the producer queue was full.",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		publishStageSeconds, publishResults, docstoreOpTotal, docstoreOpSeconds, eventsDropped,
	}
}

// Init registers the package collectors; registering twice on the same registry is a no-op.
func Init(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream, operation string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, operation).Observe(durationSeconds)
}

func ObservePublishStage(stage string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	publishStageSeconds.WithLabelValues(stage, outcome).Observe(durationSeconds)
}

func IncPublishResult(state, kind string) {
	publishResults.WithLabelValues(state, kind).Inc()
}

func ObserveDocstoreOp(backend, op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	docstoreOpTotal.WithLabelValues(backend, op, result).Inc()
	docstoreOpSeconds.WithLabelValues(backend, op).Observe(durationSeconds)
}

func IncEventsDropped() {
	eventsDropped.Inc()
}
