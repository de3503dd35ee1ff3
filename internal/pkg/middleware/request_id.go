package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/aiengineer/rageval/internal/pkg/logger"
	"github.com/aiengineer/rageval/internal/pkg/security"
)

// RequestIDHeader is the header carrying the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength caps client-supplied IDs echoed into logs and headers.
const maxRequestIDLength = 64

// RequestID reuses an incoming X-Request-ID or generates one, echoes it on
// the response and stores it on the request context for logger.WithContext.
// Incoming IDs that are too long or contain control characters are replaced.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if len(id) > maxRequestIDLength || security.ValidateID("request_id", id) != nil {
			id = GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
	})
}

// GenerateRequestID generates a short unique request ID.
func GenerateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
