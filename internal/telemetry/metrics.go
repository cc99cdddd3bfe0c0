package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors for the gateway. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	accessResolutions *prometheus.CounterVec
	tokensConsumed    prometheus.Counter
	modelCalls        *prometheus.HistogramVec
	providerErrors    *prometheus.CounterVec
	conversations     prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		accessResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutor_access_resolutions_total",
				Help: "Credential resolutions by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		tokensConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tutor_free_tokens_consumed_total",
			Help: "Free tokens consumed by metered requests.",
		}),
		modelCalls: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tutor_model_call_duration_seconds",
				Help:    "Model provider call latency.",
				Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider", "outcome"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutor_provider_errors_total",
				Help: "Classified provider failures.",
			},
			[]string{"provider", "kind"},
		),
		conversations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tutor_conversations_started_total",
			Help: "Tutoring conversations created.",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutor_http_requests_total",
				Help: "Total count of HTTP requests received.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tutor_http_request_duration_seconds",
				Help:    "Histogram of request durations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tutor_http_inflight_requests",
			Help: "Number of requests currently being handled.",
		}),
	}

	reg.MustRegister(
		m.accessResolutions,
		m.tokensConsumed,
		m.modelCalls,
		m.providerErrors,
		m.conversations,
		m.httpRequests,
		m.httpDuration,
		m.httpInFlight,
	)
	return m
}

// AccessResolved records a credential resolution.
func (m *Metrics) AccessResolved(source, outcome string) {
	if m == nil {
		return
	}
	m.accessResolutions.WithLabelValues(source, outcome).Inc()
}

// TokenConsumed records one free-token decrement.
func (m *Metrics) TokenConsumed() {
	if m == nil {
		return
	}
	m.tokensConsumed.Inc()
}

// ModelCall records the latency of a provider call.
func (m *Metrics) ModelCall(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
}

// ProviderError records a classified provider failure.
func (m *Metrics) ProviderError(provider, kind string) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider, kind).Inc()
}

// ConversationStarted records a new conversation.
func (m *Metrics) ConversationStarted() {
	if m == nil {
		return
	}
	m.conversations.Inc()
}

// RequestStarted tracks an in-flight request; call the returned func when done.
func (m *Metrics) RequestStarted() func(method, route string, status int) {
	if m == nil {
		return func(string, string, int) {}
	}
	m.httpInFlight.Inc()
	start := time.Now()
	return func(method, route string, status int) {
		m.httpInFlight.Dec()
		labels := []string{method, route, strconv.Itoa(status)}
		m.httpRequests.WithLabelValues(labels...).Inc()
		m.httpDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
