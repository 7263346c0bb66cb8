package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exposed on /metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         prometheus.Counter

	// Decision metrics
	decisionsTotal *prometheus.CounterVec

	// Rule metrics
	rulesLoaded prometheus.Gauge
	ruleReloads *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_http_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_decisions_total",
				Help: "Total number of decision cards returned by decision and risk level",
			},
			[]string{"decision", "risk_level"},
		),

		rulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_rules_loaded",
				Help: "Number of policy rules in the active snapshot",
			},
		),

		ruleReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_rule_reloads_total",
				Help: "Total number of rule file reload attempts by status",
			},
			[]string{"status"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.rateLimited,
		m.decisionsTotal,
		m.rulesLoaded,
		m.ruleReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRateLimited records a rejected request.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

// RecordDecision records a returned decision card.
func (m *Metrics) RecordDecision(decision, riskLevel string) {
	m.decisionsTotal.WithLabelValues(decision, riskLevel).Inc()
}

// SetRulesLoaded updates the active rule count.
func (m *Metrics) SetRulesLoaded(n int) {
	m.rulesLoaded.Set(float64(n))
}

// RecordRuleReload records a rule file reload attempt. It matches the
// signature of the rule store's reload hook.
func (m *Metrics) RecordRuleReload(rules int, err error) {
	if err != nil {
		m.ruleReloads.WithLabelValues("error").Inc()
		return
	}
	m.ruleReloads.WithLabelValues("success").Inc()
	m.SetRulesLoaded(rules)
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsMiddleware creates HTTP middleware that records request metrics
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(r.Method, endpointName(r.URL.Path), strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// endpointName keeps label cardinality bounded.
func endpointName(path string) string {
	switch path {
	case evaluatePath:
		return "evaluate"
	case healthPath:
		return "health"
	case metricsPath:
		return "metrics"
	default:
		return "unknown"
	}
}
