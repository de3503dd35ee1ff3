// Package metrics exposes Prometheus metrics for the evaluation service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aiengineer/rageval/internal/pkg/errors"
)

const namespace = "rageval"

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	// HTTP metrics
	HTTPRequests         *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration         *prometheus.HistogramVec // labels: method, route
	HTTPRequestsInFlight prometheus.Gauge

	// Evaluation metrics
	Evaluations        *prometheus.CounterVec // labels: status
	EvaluatedQueries   prometheus.Counter
	EvaluationDuration prometheus.Histogram

	// Bus metrics
	BusEventsPublished *prometheus.CounterVec   // labels: topic
	BusErrors          *prometheus.CounterVec   // labels: topic
	BusPublishLatency  *prometheus.HistogramVec // labels: topic

	registry *prometheus.Registry
}

// New creates a metrics instance with its own registry, including Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Evaluation runs by outcome",
		}, []string{"status"}),
		EvaluatedQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluated_queries_total",
			Help:      "Queries scored by successful evaluation runs",
		}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Evaluation run latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		BusEventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_published_total",
			Help:      "Events published on the bus",
		}, []string{"topic"}),
		BusErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_errors_total",
			Help:      "Failed bus publishes",
		}, []string{"topic"}),
		BusPublishLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_publish_duration_seconds",
			Help:      "Bus publish latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.HTTPRequestsInFlight,
		m.Evaluations,
		m.EvaluatedQueries,
		m.EvaluationDuration,
		m.BusEventsPublished,
		m.BusErrors,
		m.BusPublishLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordEvaluation records one evaluation run. Failed runs are counted under
// their error code and do not add to the query total.
func (m *Metrics) RecordEvaluation(queries int, duration time.Duration, err error) {
	m.EvaluationDuration.Observe(duration.Seconds())
	if err != nil {
		code := errors.CodeOf(err)
		if code == "" {
			code = errors.CodeInternal
		}
		m.Evaluations.WithLabelValues(code).Inc()
		return
	}
	m.Evaluations.WithLabelValues("ok").Inc()
	m.EvaluatedQueries.Add(float64(queries))
}

// RecordBusPublish records a bus publish.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	m.BusPublishLatency.WithLabelValues(topic).Observe(latency.Seconds())
	if err != nil {
		m.BusErrors.WithLabelValues(topic).Inc()
		return
	}
	m.BusEventsPublished.WithLabelValues(topic).Inc()
}

// RecordHTTP records an HTTP request.
func (m *Metrics) RecordHTTP(method, route string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, statusCode(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
