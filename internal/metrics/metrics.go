// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "budgetflow"

// Registry owns its own prometheus.Registry so tests and binaries never
// collide on the global default.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimited     prometheus.Counter
	Suspicious      prometheus.Counter

	Distributions    *prometheus.CounterVec
	DistributedCents *prometheus.CounterVec
	SourceFailures   *prometheus.CounterVec
	IncomeEvents     *prometheus.CounterVec
}

func NewRegistry() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route pattern, method and status code",
			},
			[]string{"route", "method", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route pattern",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"route"},
		),

		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_requests_total",
				Help:      "Requests rejected by the per-client rate limiter",
			},
		),

		Suspicious: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suspicious_requests_total",
				Help:      "Requests flagged by the suspicious request detector",
			},
		),

		Distributions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "distributions_applied_total",
				Help:      "Distributions written to envelope balances by trigger and strategy",
			},
			[]string{"trigger", "strategy"},
		),

		DistributedCents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "distributed_cents_total",
				Help:      "Cents allocated to envelopes by trigger",
			},
			[]string{"trigger"},
		),

		SourceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_source_failures_total",
				Help:      "Notification sources that could not be read",
			},
			[]string{"source"},
		),

		IncomeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "income_events_total",
				Help:      "Detected income handled by the worker by result",
			},
			[]string{"result"},
		),
	}

	m.reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RateLimited,
		m.Suspicious,
		m.Distributions,
		m.DistributedCents,
		m.SourceFailures,
		m.IncomeEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest records one completed HTTP request.
func (m *Registry) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordDistribution records a distribution that changed balances.
func (m *Registry) RecordDistribution(trigger, strategy string, allocatedCents int64) {
	m.Distributions.WithLabelValues(trigger, strategy).Inc()
	if allocatedCents > 0 {
		m.DistributedCents.WithLabelValues(trigger).Add(float64(allocatedCents))
	}
}

func (m *Registry) RecordSourceFailures(sources []string) {
	for _, s := range sources {
		m.SourceFailures.WithLabelValues(s).Inc()
	}
}

// RecordIncomeEvent counts worker outcomes: "processed" or "failed".
func (m *Registry) RecordIncomeEvent(result string) {
	m.IncomeEvents.WithLabelValues(result).Inc()
}

// RegisterCacheStats exposes hit and miss counters read from stats on scrape.
func (m *Registry) RegisterCacheStats(stats func() (hits, misses uint64)) {
	m.reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_hits_total",
			Help:      "Catalog read cache hits",
		}, func() float64 {
			h, _ := stats()
			return float64(h)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_misses_total",
			Help:      "Catalog read cache misses",
		}, func() float64 {
			_, miss := stats()
			return float64(miss)
		}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Gatherer is exposed for tests.
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.reg
}
