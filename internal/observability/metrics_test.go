package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.PermCacheHit()
	metrics.PermCacheMiss()
	metrics.ObserveResolveDuration(5 * time.Millisecond)

	body := scrape(t, metrics)
	if !strings.Contains(body, "havenlist_perm_cache_hits_total 1") {
		t.Fatalf("expected cache hit counter, got: %s", body)
	}
	if !strings.Contains(body, "havenlist_perm_cache_misses_total 1") {
		t.Fatalf("expected cache miss counter, got: %s", body)
	}
	if !strings.Contains(body, "havenlist_perm_resolve_duration_seconds_bucket") {
		t.Fatalf("expected resolve duration histogram, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "havenlist_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "havenlist_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestMetricsAuthzDecisionOutcomes(t *testing.T) {
	metrics := NewMetrics()
	metrics.AuthzDecision("allow")
	metrics.AuthzDecision("allow")
	metrics.AuthzDecision("deny_forbidden")

	body := scrape(t, metrics)
	if !strings.Contains(body, "havenlist_authz_decisions_total{outcome=\"allow\"} 2") {
		t.Fatalf("expected allow count, got: %s", body)
	}
	if !strings.Contains(body, "havenlist_authz_decisions_total{outcome=\"deny_forbidden\"} 1") {
		t.Fatalf("expected deny count, got: %s", body)
	}
}

func TestNilMetricsIsInert(t *testing.T) {
	var metrics *Metrics
	metrics.AuthzDecision("allow")
	metrics.PermCacheHit()
	metrics.PermCacheMiss()
	metrics.ObserveResolveDuration(time.Millisecond)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics handler, got %d", rr.Code)
	}

	if handler := metrics.Middleware(http.NotFoundHandler()); handler == nil {
		t.Fatal("expected passthrough middleware from nil metrics")
	}
}
