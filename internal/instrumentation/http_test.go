package instrumentation

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPMiddleware_RecordsStatus(t *testing.T) {
	m, reader := newTestMetrics(t, false)

	handler := m.HTTPMiddleware("/callback", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("code") == "" {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	for _, target := range []string{"/callback", "/callback?code=x", "/callback?code=y"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	}

	got := sumByAttr(t, reader, "http_requests_total", attrStatus)
	if got["404"] != 1 || got["200"] != 2 {
		t.Errorf("unexpected status counts: %v", got)
	}
	paths := sumByAttr(t, reader, "http_requests_total", attrPath)
	if paths["/callback"] != 3 {
		t.Errorf("expected route label only, got %v", paths)
	}
}

func TestHTTPMiddleware_NilMetrics(t *testing.T) {
	var m *Metrics
	handler := m.HTTPMiddleware("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}
