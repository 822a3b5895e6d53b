// Package metrics exposes Prometheus collectors for the API, the aggregation
// services and the AMQP publisher. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	aggregation     *prometheus.HistogramVec
	rolledForward   prometheus.Counter
	publishFailures *prometheus.CounterVec
	reminders       prometheus.Counter
}

// New creates collectors under namespace and registers them, together with
// the Go runtime and process collectors, on a private registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests per route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency per route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		aggregation: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "aggregation_duration_seconds",
				Help:      "Time spent building net income series per scale",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"scale"},
		),
		rolledForward: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recurring_dates_advanced_total",
				Help:      "Total number of recurring expense dates moved forward",
			},
		),
		publishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "amqp_publish_failures_total",
				Help:      "Total number of failed AMQP publishes per routing key",
			},
			[]string{"routing_key"},
		),
		reminders: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upcoming_reminders_total",
				Help:      "Total number of upcoming expense reminders emitted by the worker",
			},
		),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestLatency,
		m.aggregation,
		m.rolledForward,
		m.publishFailures,
		m.reminders,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

func (m *Metrics) RecordAggregation(scale string, duration time.Duration) {
	if m == nil {
		return
	}
	m.aggregation.WithLabelValues(scale).Observe(duration.Seconds())
}

func (m *Metrics) RecordRolledForward(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rolledForward.Add(float64(n))
}

func (m *Metrics) RecordPublishFailure(routingKey string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(routingKey).Inc()
}

func (m *Metrics) RecordReminders(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reminders.Add(float64(n))
}
