package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/tillpoint/internal/shared"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/sales")
	req := httptest.NewRequest(http.MethodPost, "/api/sales", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `tillpoint_http_requests_total{code="418",route="/api/sales"} 1`)
	require.Contains(t, body, `tillpoint_http_request_duration_seconds_bucket{route="/api/sales"`)
}

func TestObserveLedgerAndJobs(t *testing.T) {
	metrics := NewMetrics()
	var recorder shared.LedgerRecorder = metrics
	recorder.ObserveLedger("sale.create", nil)
	recorder.ObserveLedger("sale.create", &shared.InsufficientStockError{Shortages: []shared.Shortage{{SKU: "A"}}})
	recorder.ObserveLedger("sale.void", shared.Errorf(shared.ErrInvalidState, "op", "already voided"))
	metrics.ObserveJob("backup:run", time.Now(), errors.New("disk full"))

	body := scrape(t, metrics)
	require.Contains(t, body, `tillpoint_ledger_operations_total{operation="sale.create",outcome="ok"} 1`)
	require.Contains(t, body, `tillpoint_ledger_operations_total{operation="sale.create",outcome="insufficient_stock"} 1`)
	require.Contains(t, body, `tillpoint_ledger_operations_total{operation="sale.void",outcome="rejected"} 1`)
	require.Contains(t, body, `tillpoint_jobs_total{outcome="error",task="backup:run"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveLedger("x", nil)
	m.ObserveJob("x", time.Now(), nil)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	require.NotNil(t, m.Middleware(next))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
