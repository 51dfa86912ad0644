package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can take it as an optional dependency.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsActive  prometheus.Gauge

	// Pipeline metrics
	GenerationsTotal     *prometheus.CounterVec
	GenerationDuration   *prometheus.HistogramVec
	TestCasesGenerated   *prometheus.CounterVec
	DispatchAttempts     *prometheus.CounterVec
	DispatchDuration     *prometheus.HistogramVec
	CacheLookups         *prometheus.CounterVec
	OCRFailures          prometheus.Counter
	SessionsCreated      prometheus.Counter
	CircuitBreakerStates *prometheus.GaugeVec
}

// NewMetrics creates a metrics instance registered on its own registry
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.NewRegistry())
}

// NewMetricsWithRegistry registers all metrics on reg
func NewMetricsWithRegistry(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "casegen"
	}
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_active",
				Help:      "Number of active HTTP requests",
			},
		),

		// Pipeline metrics
		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of generation requests by outcome",
			},
			[]string{"backend", "status"},
		),
		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "End-to-end generation duration in seconds",
				Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 20, 40, 60, 120, 240},
			},
			[]string{"backend"},
		),
		TestCasesGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "test_cases_generated_total",
				Help:      "Total number of test cases produced",
			},
			[]string{"backend", "type"},
		),
		DispatchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_attempts_total",
				Help:      "Total number of backend calls by outcome",
			},
			[]string{"backend", "outcome"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Backend call duration in seconds",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
			},
			[]string{"backend"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Result cache lookups by result",
			},
			[]string{"result"},
		),
		OCRFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ocr_failures_total",
				Help:      "Screenshots whose OCR failed and were replaced by empty text",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_created_total",
				Help:      "Total number of regeneration sessions created",
			},
		),
		CircuitBreakerStates: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Backend circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"backend"},
		),
	}

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordGeneration records the outcome of one Generate call
func (m *Metrics) RecordGeneration(backend, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(backend, status).Inc()
	m.GenerationDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordTestCases records generated test cases by normalized type
func (m *Metrics) RecordTestCases(backend, testType string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.TestCasesGenerated.WithLabelValues(backend, testType).Add(float64(count))
}

// RecordDispatch records a single backend attempt
func (m *Metrics) RecordDispatch(backend, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DispatchAttempts.WithLabelValues(backend, outcome).Inc()
	m.DispatchDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordOCRFailure records a screenshot whose OCR failed
func (m *Metrics) RecordOCRFailure() {
	if m == nil {
		return
	}
	m.OCRFailures.Inc()
}

// RecordSessionCreated records a new session
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// SetCircuitBreakerState publishes a breaker state as a number
func (m *Metrics) SetCircuitBreakerState(backend string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerStates.WithLabelValues(backend).Set(float64(state))
}

// HTTPMiddleware returns middleware for recording HTTP metrics. Paths are
// recorded as chi route patterns to keep label cardinality bounded.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsActive.Inc()
		defer m.HTTPRequestsActive.Dec()

		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		m.RecordHTTPRequest(r.Method, path, status, time.Since(start))
	})
}
