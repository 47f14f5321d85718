package httpserver

import (
	"strconv"
	"time"

	"github.com/goldkiwi/storefront/internal/core/domain/flow"
	"github.com/goldkiwi/storefront/internal/core/ports"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the server's collectors on its own registry. It also counts
// flow operations for the flow service.
type Metrics struct {
	gatherer        prometheus.Gatherer
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	flowOperations  *prometheus.CounterVec
}

var _ ports.FlowMetrics = (*Metrics)(nil)

// NewMetrics registers the collectors on reg. A nil reg gets a fresh
// registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "The total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "The HTTP request latencies in seconds",
			},
			[]string{"method", "endpoint"},
		),
		flowOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_flow_operations_total",
				Help: "Verification flow operations by kind, operation and outcome",
			},
			[]string{"kind", "operation", "outcome"},
		),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.flowOperations)
	return m
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveOperation(kind flow.Kind, op string, outcome string) {
	m.flowOperations.WithLabelValues(string(kind), op, outcome).Inc()
}

// LogMetricsInitialization logs that metrics have been initialized
func (s *Server) LogMetricsInitialization() {
	s.logger.WithFields(map[string]interface{}{
		"http_requests_total":                "Counter for HTTP requests by method, endpoint, status",
		"http_request_duration":              "Histogram for HTTP request duration by method, endpoint",
		"verification_flow_operations_total": "Counter for flow operations by kind, operation, outcome",
		"metrics_endpoint":                   "/metrics",
	}).Debug("Available Prometheus metrics")
}

func (s *Server) metricsEndpoint(c echo.Context) error {
	s.logger.Debug("Serving Prometheus metrics")
	promhttp.HandlerFor(s.metrics.gatherer, promhttp.HandlerOpts{}).ServeHTTP(c.Response(), c.Request())
	return nil
}
