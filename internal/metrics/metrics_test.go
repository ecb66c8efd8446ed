package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/api/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs/abc", http.NoBody))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/runs/{id}", "404"))
	if got < 1 {
		t.Errorf("expected request counted under route pattern, got %f", got)
	}
}

func TestRegisterPipelineMetricsTwice(t *testing.T) {
	RegisterPipelineMetrics()
	RegisterPipelineMetrics()

	EntriesSkippedTotal.Add(2)
	if got := testutil.ToFloat64(EntriesSkippedTotal); got < 2 {
		t.Errorf("expected counter >= 2, got %f", got)
	}
}
