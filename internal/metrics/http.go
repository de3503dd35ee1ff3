package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// HTTPMiddleware wraps an HTTP handler to collect metrics.
// It records request count and duration, and tracks in-flight requests.
//
// Usage:
//
//	handler := metrics.HTTPMiddleware(m, mux)
func HTTPMiddleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		m.RecordHTTP(r.Method, route(r), wrapped.statusCode, time.Since(start))
	})
}

// route returns a low-cardinality label for r. ServeMux records the matched
// pattern on the request; unmatched requests fall back to normalizePath.
func route(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return normalizePath(r.URL.Path)
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code and calls the underlying WriteHeader.
func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write ensures status code is set before writing.
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(w.statusCode)
	}
	return w.ResponseWriter.Write(b)
}

var judgmentsPath = regexp.MustCompile(`^/v1/evaluation/judgments/[^/]+$`)

// normalizePath maps paths to route labels, replacing path parameters with
// placeholders. Unknown paths collapse to "other".
//
// Examples:
//   - /v1/evaluation/judgments/q17 -> /v1/evaluation/judgments/{query_id}
//   - /does/not/exist -> other
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/echo", "/metrics",
		"/v1/evaluation/prf1",
		"/v1/evaluation/recall",
		"/v1/evaluation/batch-recall",
		"/v1/evaluation/evaluate",
		"/v1/evaluation/judgments":
		return path
	}

	if judgmentsPath.MatchString(path) {
		return "/v1/evaluation/judgments/{query_id}"
	}
	return "other"
}

// statusCode converts an HTTP status code to a metric label.
// Uncommon codes are grouped by class.
func statusCode(code int) string {
	switch code {
	case 200, 204, 400, 404, 405, 413, 429, 500, 503, 504:
		return strconv.Itoa(code)
	}

	if code >= 100 && code < 600 {
		return fmt.Sprintf("%dxx", code/100)
	}
	return strconv.Itoa(code)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker if the underlying ResponseWriter supports it.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
}
