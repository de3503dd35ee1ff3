package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMiddleware(t *testing.T) {
	m := New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/evaluation/judgments/{query_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /v1/evaluation/prf1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})
	wrapped := HTTPMiddleware(m, mux)

	for _, path := range []string{"/v1/evaluation/judgments/q1", "/v1/evaluation/judgments/q2"} {
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/evaluation/prf1", nil))

	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "GET /v1/evaluation/judgments/{query_id}", "404"))
	if got != 2 {
		t.Errorf("judgments requests = %v, want 2", got)
	}
	got = testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodPost, "POST /v1/evaluation/prf1", "200"))
	if got != 1 {
		t.Errorf("prf1 requests = %v, want 1", got)
	}
	if v := testutil.ToFloat64(m.HTTPRequestsInFlight); v != 0 {
		t.Errorf("in-flight = %v, want 0", v)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/v1/evaluation/prf1", "/v1/evaluation/prf1"},
		{"/v1/evaluation/judgments", "/v1/evaluation/judgments"},
		{"/v1/evaluation/judgments/q-17", "/v1/evaluation/judgments/{query_id}"},
		{"/v1/evaluation/judgments/q/extra", "other"},
		{"/wp-admin", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizePath(tt.input); got != tt.expected {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "200"},
		{201, "2xx"},
		{429, "429"},
		{418, "4xx"},
		{599, "5xx"},
		{700, "700"},
	}

	for _, tt := range tests {
		if got := statusCode(tt.code); got != tt.want {
			t.Errorf("statusCode(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	w.WriteHeader(http.StatusAccepted)
	w.WriteHeader(http.StatusTeapot)

	if w.statusCode != http.StatusAccepted {
		t.Errorf("statusCode = %d, want %d", w.statusCode, http.StatusAccepted)
	}
}
