package cycle

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandlerReadyz(t *testing.T) {
	runner := newTestRunner(&fakeExecutor{}, nil)
	routes := NewHandler(runner).Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first cycle, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cycle/run", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from run, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ready after cycle, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerRunFailure(t *testing.T) {
	runner := newTestRunner(&fakeExecutor{err: errors.New("boom")}, nil)
	routes := NewHandler(runner).Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cycle/run", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestHandlerMethodChecks(t *testing.T) {
	routes := NewHandler(newTestRunner(&fakeExecutor{}, nil)).Routes()

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/healthz"},
		{http.MethodPost, "/readyz"},
		{http.MethodPost, "/api/v1/cycle/summary"},
		{http.MethodGet, "/api/v1/cycle/run"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			routes.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != http.StatusMethodNotAllowed {
				t.Fatalf("expected 405, got %d", rec.Code)
			}
		})
	}
}

func TestHandlerSummary(t *testing.T) {
	routes := NewHandler(newTestRunner(&fakeExecutor{}, nil)).Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cycle/summary", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}
