package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for appify
type Metrics struct {
	// HTTP API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	RateLimited  prometheus.Counter

	// Upstream (remote actor service) metrics
	UpstreamCalls   *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec
	UpstreamErrors  *prometheus.CounterVec
	SchemaFallbacks prometheus.Counter

	// Run relay metrics
	RelayPolls         *prometheus.CounterVec
	RelayActiveLoops   prometheus.Gauge
	RelaySubscriptions prometheus.Gauge
	RelayConnections   prometheus.Gauge
	RelayEvents        *prometheus.CounterVec

	// Run metrics
	RunsStarted *prometheus.CounterVec
	RunsAborted prometheus.Counter

	// Wizard metrics
	WizardTransitions *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appify_http_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appify_http_request_duration_seconds",
				Help:    "HTTP API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appify_http_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),

		// Upstream metrics
		UpstreamCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appify_upstream_calls_total",
				Help: "Total number of calls to the remote actor service",
			},
			[]string{"operation", "success"},
		),
		UpstreamLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appify_upstream_latency_seconds",
				Help:    "Remote actor service call latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"operation"},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appify_upstream_errors_total",
				Help: "Total number of remote actor service errors",
			},
			[]string{"operation", "error_code"},
		),
		SchemaFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appify_schema_fallbacks_total",
				Help: "Actor details returned without an input schema because the schema fetch failed",
			},
		),

		// Relay metrics
		RelayPolls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appify_relay_polls_total",
				Help: "Total number of run status polls",
			},
			[]string{"success"},
		),
		RelayActiveLoops: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appify_relay_active_loops",
				Help: "Number of run poll loops currently running",
			},
		),
		RelaySubscriptions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appify_relay_subscriptions",
				Help: "Number of live run subscriptions",
			},
		),
		RelayConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appify_relay_connections",
				Help: "Number of open real-time connections",
			},
		),
		RelayEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appify_relay_events_total",
				Help: "Total number of events delivered to subscribers",
			},
			[]string{"type"},
		),

		// Run metrics
		RunsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appify_runs_started_total",
				Help: "Total number of actor runs started",
			},
			[]string{"with_updates"},
		),
		RunsAborted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appify_runs_aborted_total",
				Help: "Total number of abort requests forwarded",
			},
		),

		// Wizard metrics
		WizardTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appify_wizard_transitions_total",
				Help: "Total number of wizard step transitions",
			},
			[]string{"from", "to"},
		),

		// Error metrics
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appify_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// ObserveUpstream records one upstream call. errorCode is empty on success.
func (m *Metrics) ObserveUpstream(operation string, elapsed time.Duration, errorCode string) {
	if m == nil {
		return
	}
	m.UpstreamCalls.WithLabelValues(operation, strconv.FormatBool(errorCode == "")).Inc()
	m.UpstreamLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
	if errorCode != "" {
		m.UpstreamErrors.WithLabelValues(operation, errorCode).Inc()
		m.Errors.WithLabelValues(errorCode, "proxy").Inc()
	}
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObservePoll records one relay status poll.
func (m *Metrics) ObservePoll(success bool) {
	if m == nil {
		return
	}
	m.RelayPolls.WithLabelValues(strconv.FormatBool(success)).Inc()
}
