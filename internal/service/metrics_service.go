package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the auth API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	loginTotal      *prometheus.CounterVec
	refreshTotal    *prometheus.CounterVec
	revocationTotal *prometheus.CounterVec
}

// NewMetricsService registers the core collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	loginTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by outcome",
	}, []string{"result"})

	refreshTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_refresh_total",
		Help: "Refresh token exchanges by outcome",
	}, []string{"result"})

	revocationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_revocations_total",
		Help: "Refresh token revocations by scope",
	}, []string{"scope"})

	registry.MustRegister(requestDuration, requestTotal, loginTotal, refreshTotal, revocationTotal)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		loginTotal:      loginTotal,
		refreshTotal:    refreshTotal,
		revocationTotal: revocationTotal,
	}
}

// Handler exposes the /metrics endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records a completed request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// IncLogin counts a login attempt outcome: ok, denied or error.
func (s *MetricsService) IncLogin(result string) {
	s.loginTotal.WithLabelValues(result).Inc()
}

// IncRefresh counts a refresh outcome: ok, not_found, inactive or error.
func (s *MetricsService) IncRefresh(result string) {
	s.refreshTotal.WithLabelValues(result).Inc()
}

// IncRevocation counts a revocation by scope: single or cascade.
func (s *MetricsService) IncRevocation(scope string) {
	s.revocationTotal.WithLabelValues(scope).Inc()
}
