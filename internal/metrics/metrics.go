package metrics

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"dreamproxy/internal/backend"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dreamproxy"

// Metrics holds all Prometheus metrics for the proxy
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge

	// Rate limiting metrics
	RateLimitDecisions *prometheus.CounterVec
	QuotaEvictions     *prometheus.CounterVec

	// Upstream metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration prometheus.Histogram
	UpstreamErrors          *prometheus.CounterVec

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// NewWithRegistry creates a Metrics instance with a custom registry
func NewWithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ActiveRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_active",
				Help:      "Number of in-flight HTTP requests",
			},
		),

		RateLimitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limit decisions by result",
			},
			[]string{"result"},
		),
		QuotaEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_evictions_total",
				Help:      "Quota records dropped from memory by reason",
			},
			[]string{"reason"},
		),

		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Upstream responses by status code",
			},
			[]string{"status"},
		),
		UpstreamRequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream call latencies in seconds",
				// model calls run for seconds, not milliseconds
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64, 128},
			},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Upstream calls that produced no usable response",
			},
			[]string{"type"},
		),

		registerer: registerer,
		gatherer:   gatherer,
	}
}

// Gatherer returns the registry metrics are collected from
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// TrackQuotaRecords exports the number of tracked quota records. count is
// evaluated on every scrape.
func (m *Metrics) TrackQuotaRecords(count func() int) error {
	g := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_records",
			Help:      "Number of client quota records held in memory",
		},
		func() float64 { return float64(count()) },
	)
	return m.registerer.Register(g)
}

// RecordDecision counts a rate limit decision
func (m *Metrics) RecordDecision(allowed, degraded bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.RateLimitDecisions.WithLabelValues(result).Inc()
	if degraded {
		m.RateLimitDecisions.WithLabelValues("fallback").Inc()
	}
}

// RecordEviction counts a quota record dropped by the memory store
func (m *Metrics) RecordEviction(reason string) {
	m.QuotaEvictions.WithLabelValues(reason).Inc()
}

// RecordRequest counts a finished inbound request
func (m *Metrics) RecordRequest(method, route string, status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveUpstream records one upstream call. It has the backend.Observer
// signature.
func (m *Metrics) ObserveUpstream(status int, d time.Duration, err error) {
	m.UpstreamRequestDuration.Observe(d.Seconds())
	if status > 0 {
		m.UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	}
	if err != nil {
		m.UpstreamErrors.WithLabelValues(ErrorType(err)).Inc()
	}
}

// ErrorType classifies upstream failures for the errors counter
func ErrorType(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, backend.ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, new(*net.OpError)):
		return "connection"
	default:
		return "other"
	}
}
