package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pario-ai/quotaguard/pkg/models"
)

func TestRegisterTwice(t *testing.T) {
	Register()
	Register()
}

func TestObserveBudget(t *testing.T) {
	ObserveBudget(models.UsageStats{Limit: 25, Used: 20, Remaining: 5, AdminOverride: true})

	if v := testutil.ToFloat64(BudgetCalls.WithLabelValues("remaining")); v != 5 {
		t.Errorf("expected remaining 5, got %f", v)
	}
	if v := testutil.ToFloat64(BudgetCalls.WithLabelValues("limit")); v != 25 {
		t.Errorf("expected limit 25, got %f", v)
	}
	if v := testutil.ToFloat64(BudgetOverride); v != 1 {
		t.Errorf("expected override 1, got %f", v)
	}
	if v := testutil.ToFloat64(BudgetDegraded); v != 0 {
		t.Errorf("expected degraded 0, got %f", v)
	}
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/v1/plain", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/items/{id}", "418"))
	for _, id := range []string{"1", "2"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/items/"+id, http.NoBody))
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/items/{id}", "418")); got != before+2 {
		t.Errorf("expected 2 requests under one pattern, got %f", got-before)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/plain", http.NoBody))
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/plain", "200")); got < 1 {
		t.Errorf("implicit 200 not recorded, got %f", got)
	}
}
