package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type httpRecord struct {
	method, route string
	status        int
}

type recordingHTTPMetrics struct {
	records []httpRecord
}

func (m *recordingHTTPMetrics) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	m.records = append(m.records, httpRecord{method: method, route: route, status: status})
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	m := &recordingHTTPMetrics{}
	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(m))
	r.Get("/api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/items/42", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	if len(m.records) != 2 {
		t.Fatalf("records = %d, want 2", len(m.records))
	}
	if got := m.records[0]; got.route != "/api/items/{id}" || got.status != http.StatusAccepted || got.method != "GET" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got := m.records[1]; got.route != unmatchedRoute || got.status != http.StatusNotFound {
		t.Errorf("unexpected record for unknown route: %+v", got)
	}
}

func TestRecoveryMiddleware_ReturnsJSON500(t *testing.T) {
	captureLogs(t)
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("unexpected")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeErrorBody(t, w)
	if body.OK || body.Code != "INTERNAL_ERROR" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	tests := []struct {
		hsts     bool
		wantHSTS bool
	}{
		{hsts: false, wantHSTS: false},
		{hsts: true, wantHSTS: true},
	}

	for _, tt := range tests {
		handler := NewSecurityHeadersMiddleware(tt.hsts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Errorf("X-Content-Type-Options = %q", got)
		}
		if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
			t.Errorf("X-Frame-Options = %q", got)
		}
		if got := w.Header().Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
			t.Errorf("hsts=%v: HSTS present = %v", tt.hsts, got)
		}
	}
}
