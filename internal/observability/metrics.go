package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Breaker states as exported on learnease_breaker_state.
const (
	BreakerClosed   = 0
	BreakerOpen     = 1
	BreakerHalfOpen = 2
)

// Metrics owns its registry so tests can build independent instances.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	providerTokens   *prometheus.CounterVec

	generationAttempts *prometheus.CounterVec
	generationRuns     *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	generationInflight *prometheus.GaugeVec

	flowRejections *prometheus.CounterVec
	flowReconciled *prometheus.CounterVec

	breakerState       prometheus.Gauge
	breakerTransitions *prometheus.CounterVec
	breakerRejections  prometheus.Counter

	eventsPublished *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "learnease_api_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "learnease_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "learnease_api_inflight_requests",
			Help: "HTTP requests currently being served",
		}),

		providerRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "learnease_provider_requests_total",
			Help: "Text-generation provider calls by model and status",
		}, []string{"model", "status"}),
		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "learnease_provider_request_duration_seconds",
			Help:    "Text-generation provider call latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"model"}),
		providerTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "learnease_provider_tokens_total",
			Help: "Tokens reported by the provider",
		}, []string{"model", "direction"}),

		generationAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "learnease_generation_attempts_total",
			Help: "Generation attempts by flow, model and outcome bucket",
		}, []string{"flow", "model", "outcome"}),
		generationRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "learnease_generation_runs_total",
			Help: "Finished generation runs by flow, final status and code",
		}, []string{"flow", "status", "code"}),
		generationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "learnease_generation_run_duration_seconds",
			Help:    "Wall time of a generation run",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"flow", "status"}),
		generationInflight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "learnease_generation_inflight",
			Help: "Generation runs currently executing",
		}, []string{"flow"}),

		flowRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "learnease_flow_rejections_total",
			Help: "Rejected flow transitions by flow and code",
		}, []string{"flow", "code"}),
		flowReconciled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "learnease_flow_reconciled_total",
			Help: "Stale processing flows moved to failed",
		}, []string{"flow"}),

		breakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "learnease_breaker_state",
			Help: "Provider circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),
		breakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "learnease_breaker_transitions_total",
			Help: "Circuit breaker state changes by target state",
		}, []string{"to"}),
		breakerRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "learnease_breaker_rejections_total",
			Help: "Provider calls refused by the open circuit breaker",
		}),

		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "learnease_flow_events_published_total",
			Help: "Flow status events published to the realtime bus",
		}, []string{"result"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	code := strconv.Itoa(status)
	m.apiRequests.WithLabelValues(method, route, code).Inc()
	m.apiLatency.WithLabelValues(method, route, code).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveProviderRequest(model, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = labelOr(model, "unknown")
	m.providerRequests.WithLabelValues(model, labelOr(status, "0")).Inc()
	if dur > 0 {
		m.providerLatency.WithLabelValues(model).Observe(dur.Seconds())
	}
	if inputTokens > 0 {
		m.providerTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.providerTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) IncGenerationAttempt(flow, model, outcome string) {
	if m == nil {
		return
	}
	m.generationAttempts.WithLabelValues(labelOr(flow, "unknown"), labelOr(model, "unknown"), labelOr(outcome, "unknown")).Inc()
}

func (m *Metrics) ObserveGenerationRun(flow, status, code string, dur time.Duration) {
	if m == nil {
		return
	}
	flow = labelOr(flow, "unknown")
	m.generationRuns.WithLabelValues(flow, status, labelOr(code, "none")).Inc()
	m.generationDuration.WithLabelValues(flow, status).Observe(dur.Seconds())
}

func (m *Metrics) GenerationInflightAdd(flow string, delta float64) {
	if m == nil {
		return
	}
	m.generationInflight.WithLabelValues(labelOr(flow, "unknown")).Add(delta)
}

func (m *Metrics) IncFlowRejection(flow, code string) {
	if m == nil {
		return
	}
	m.flowRejections.WithLabelValues(labelOr(flow, "unknown"), labelOr(code, "unknown")).Inc()
}

func (m *Metrics) IncFlowReconciled(flow string) {
	if m == nil {
		return
	}
	m.flowReconciled.WithLabelValues(labelOr(flow, "unknown")).Inc()
}

func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.breakerState.Set(float64(state))
	m.breakerTransitions.WithLabelValues(breakerStateName(state)).Inc()
}

func (m *Metrics) IncBreakerRejection() {
	if m == nil {
		return
	}
	m.breakerRejections.Inc()
}

func (m *Metrics) IncEventPublished(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(result).Inc()
}

func breakerStateName(state int) string {
	switch state {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

func labelOr(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}
