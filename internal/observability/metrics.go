package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authzDecisions  *prometheus.CounterVec
	permCacheHits   prometheus.Counter
	permCacheMisses prometheus.Counter
	resolveDuration prometheus.Histogram
}

// NewMetrics initialises the registry and the base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "havenlist_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "havenlist_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "havenlist_authz_decisions_total",
		Help: "Authorization decisions by outcome.",
	}, []string{"outcome"})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "havenlist_perm_cache_hits_total",
		Help: "Permission cache hits.",
	})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "havenlist_perm_cache_misses_total",
		Help: "Permission cache misses.",
	})
	resolve := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "havenlist_perm_resolve_duration_seconds",
		Help:    "Duration of effective permission resolution on cache miss.",
		Buckets: prometheus.DefBuckets,
	})
	registry.MustRegister(requests, duration, decisions, cacheHits, cacheMisses, resolve)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		authzDecisions:  decisions,
		permCacheHits:   cacheHits,
		permCacheMisses: cacheMisses,
		resolveDuration: resolve,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// AuthzDecision counts one authorization decision.
func (m *Metrics) AuthzDecision(outcome string) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(outcome).Inc()
}

// PermCacheHit counts one permission cache hit.
func (m *Metrics) PermCacheHit() {
	if m == nil {
		return
	}
	m.permCacheHits.Inc()
}

// PermCacheMiss counts one permission cache miss.
func (m *Metrics) PermCacheMiss() {
	if m == nil {
		return
	}
	m.permCacheMisses.Inc()
}

// ObserveResolveDuration records the duration of one live resolution.
func (m *Metrics) ObserveResolveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.resolveDuration.Observe(d.Seconds())
}

// Registerer exposes the registry for registering custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
