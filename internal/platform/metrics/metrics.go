// Package metrics exposes Prometheus collectors for the portal server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build independent instances.
// All recording methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	transitionsTotal    *prometheus.CounterVec
	authAttemptsTotal   *prometheus.CounterVec
	aiRequestsTotal     *prometheus.CounterVec
	refillWarnings      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_status_transitions_total",
				Help: "Applied appointment and test booking status transitions",
			},
			[]string{"entity", "from", "to"},
		),
		authAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_auth_attempts_total",
				Help: "Sign-in attempts by role and outcome",
			},
			[]string{"role", "status"},
		),
		aiRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_ai_requests_total",
				Help: "Calls to the generative-text provider by purpose and outcome",
			},
			[]string{"purpose", "status"},
		),
		refillWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_refill_warnings_total",
			Help: "Refill warnings published by the reminder sweep",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.transitionsTotal,
		m.authAttemptsTotal,
		m.aiRequestsTotal,
		m.refillWarnings,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware records request counts and latency keyed by the matched route,
// so path parameters do not explode label cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) RecordTransition(entity, from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(entity, from, to).Inc()
}

func (m *Metrics) RecordAuthAttempt(role string, success bool) {
	if m == nil {
		return
	}
	m.authAttemptsTotal.WithLabelValues(role, outcome(success)).Inc()
}

func (m *Metrics) RecordAIRequest(purpose string, success bool) {
	if m == nil {
		return
	}
	m.aiRequestsTotal.WithLabelValues(purpose, outcome(success)).Inc()
}

func (m *Metrics) RecordRefillWarning() {
	if m == nil {
		return
	}
	m.refillWarnings.Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
