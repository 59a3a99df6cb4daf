package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

func TestObserveDispatchAndSuspension(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveDispatch("cycle", "sent")
	m.ObserveDispatch("cycle", "sent")
	m.ObserveDispatch("test", "failed")
	m.SetAlertsSuspended(true)

	if got := testutil.ToFloat64(m.DispatchTotal.WithLabelValues("cycle", "sent")); got != 2 {
		t.Fatalf("expected 2 sent dispatches, got %v", got)
	}
	if got := testutil.ToFloat64(m.AlertsSuspended); got != 1 {
		t.Fatalf("expected suspended gauge 1, got %v", got)
	}

	m.SetAlertsSuspended(false)
	if got := testutil.ToFloat64(m.AlertsSuspended); got != 0 {
		t.Fatalf("expected suspended gauge 0, got %v", got)
	}
}

func TestPublishCycleSetsGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	age := 90
	err := m.PublishCycle(context.Background(), port.CycleMetrics{
		CollectedAt:       time.Unix(1741615500, 0),
		Flags:             valueobject.AnomalyFlags{QueryBad: true},
		RunningOver:       3,
		RefreshAgeMinutes: &age,
		OpenTickets:       2,
		CollectorErrors:   1,
		Duration:          2 * time.Second,
	})
	if err != nil {
		t.Fatalf("PublishCycle failed: %v", err)
	}

	if got := testutil.ToFloat64(m.RunningOver); got != 3 {
		t.Errorf("expected running over 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.RefreshAgeMinutes); got != 90 {
		t.Errorf("expected refresh age 90, got %v", got)
	}
	if got := testutil.ToFloat64(m.AnomalyActive.WithLabelValues("queries")); got != 1 {
		t.Errorf("expected queries active, got %v", got)
	}
	if got := testutil.ToFloat64(m.AnomalyActive.WithLabelValues("refresh")); got != 0 {
		t.Errorf("expected refresh inactive, got %v", got)
	}
	if got := testutil.ToFloat64(m.CollectorErrors); got != 1 {
		t.Errorf("expected 1 collector error, got %v", got)
	}

	_ = m.PublishCycle(context.Background(), port.CycleMetrics{CollectedAt: time.Now()})
	if got := testutil.ToFloat64(m.RefreshAgeMinutes); got != -1 {
		t.Errorf("expected unknown refresh age -1, got %v", got)
	}
	if got := testutil.ToFloat64(m.CyclesTotal); got != 2 {
		t.Errorf("expected 2 cycles, got %v", got)
	}
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	m := New(prometheus.NewRegistry())
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts/test", nil))

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/v1/alerts/*", "POST", "429")); got != 1 {
		t.Fatalf("expected 1 request recorded, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveDispatch("cycle", "healthy")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `monitor_dispatch_total{outcome="healthy",trigger="cycle"} 1`) {
		t.Fatalf("expected dispatch counter in exposition, got:\n%s", rec.Body.String())
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := map[string]string{
		"/":                      "/dashboard",
		"/ws":                    "/ws",
		"/static/app.js":         "/static/*",
		"/api/v1/alerts/resume":  "/api/v1/alerts/*",
		"/api/v1/history":        "/api/v1/history",
		"/api/v1/kestra/trigger": "/api/v1/kestra/*",
		"/api/v1/status":         "/api/v1/*",
		"/favicon.ico":           "other",
	}
	for path, want := range tests {
		if got := normalizeRoute(path); got != want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", path, got, want)
		}
	}
}
