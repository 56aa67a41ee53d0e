package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservabilityLabelsByRoutePattern(t *testing.T) {
	obs := NewObservability(ObservabilityConfig{Enabled: true, MetricsPrefix: "test_http"}, nil)
	r := chi.NewRouter()
	r.Use(obs.Middleware)
	r.Get("/v1/users/{user}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, user := range []string{"alice", "bob"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/users/"+user, nil))
	}
	got := testutil.ToFloat64(obs.requests.WithLabelValues("/v1/users/{user}", http.MethodGet, http.StatusText(http.StatusTeapot)))
	if got != 2 {
		t.Fatalf("expected 2 requests under the route pattern, got %v", got)
	}

	rec := httptest.NewRecorder()
	obs.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "test_http_request_duration_seconds") {
		t.Fatalf("metrics output missing duration histogram")
	}
}

func TestObservabilityDisabledPassesThrough(t *testing.T) {
	obs := NewObservability(ObservabilityConfig{Enabled: false, MetricsPrefix: "off_http"}, nil)
	handler := obs.Middleware(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if n := testutil.CollectAndCount(obs.requests); n != 0 {
		t.Fatalf("expected no samples when disabled, got %d", n)
	}
}
