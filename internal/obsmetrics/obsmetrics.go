// Package obsmetrics provides Prometheus metrics collection for Watchy,
// following the same CounterVec/HistogramVec/Gauge layout the teacher's
// infrastructure/metrics package uses.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector Watchy registers.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	AuditsTotal        *prometheus.CounterVec
	AuditDuration      *prometheus.HistogramVec
	AuditsInFlight     prometheus.Gauge
	AuditPhaseDuration *prometheus.HistogramVec

	OnchainCallsTotal    *prometheus.CounterVec
	OnchainCallDuration  *prometheus.HistogramVec
	EndpointProbesTotal  *prometheus.CounterVec
	EndpointProbeLatency *prometheus.HistogramVec

	WebhookDeliveriesTotal *prometheus.CounterVec
	SubmissionsTotal       *prometheus.CounterVec

	RateLimitRejectionsTotal *prometheus.CounterVec
	ServiceInfo              *prometheus.GaugeVec
}

// New creates and registers a Metrics instance against the default
// registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against a
// caller-supplied registerer, so tests can use a fresh registry per case.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "watchy_http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"service", "method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watchy_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "watchy_http_requests_in_flight", Help: "Current in-flight HTTP requests"},
		),

		AuditsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "watchy_audits_total", Help: "Total audits by terminal status"},
			[]string{"service", "status"},
		),
		AuditDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watchy_audit_duration_seconds",
				Help:    "Full audit duration in seconds",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 120, 180},
			},
			[]string{"service"},
		),
		AuditsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "watchy_audits_in_flight", Help: "Currently running audits"},
		),
		AuditPhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watchy_audit_phase_duration_seconds",
				Help:    "Per-phase audit duration in seconds",
				Buckets: []float64{.1, .5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"service", "phase"},
		),

		OnchainCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "watchy_onchain_calls_total", Help: "Total on-chain registry reads"},
			[]string{"service", "chain_id", "method", "status"},
		),
		OnchainCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watchy_onchain_call_duration_seconds",
				Help:    "On-chain registry read duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
			},
			[]string{"service", "chain_id", "method"},
		),
		EndpointProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "watchy_endpoint_probes_total", Help: "Total endpoint probes"},
			[]string{"service", "reachable"},
		),
		EndpointProbeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watchy_endpoint_probe_latency_seconds",
				Help:    "Endpoint probe round-trip latency in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service"},
		),

		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "watchy_webhook_deliveries_total", Help: "Total webhook delivery attempts"},
			[]string{"service", "status"},
		),
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "watchy_submissions_total", Help: "Total report submissions"},
			[]string{"service", "target", "status"},
		),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "watchy_rate_limit_rejections_total", Help: "Total requests rejected by rate limiting"},
			[]string{"service"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "watchy_service_info", Help: "Static service build info"},
			[]string{"service", "version"},
		),
	}

	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.AuditsTotal, m.AuditDuration, m.AuditsInFlight, m.AuditPhaseDuration,
		m.OnchainCallsTotal, m.OnchainCallDuration, m.EndpointProbesTotal, m.EndpointProbeLatency,
		m.WebhookDeliveriesTotal, m.SubmissionsTotal, m.RateLimitRejectionsTotal, m.ServiceInfo,
	}
	for _, c := range collectors {
		registerer.MustRegister(c)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0").Set(1)
	return m
}
