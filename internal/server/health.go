package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/aiengineer/rageval/internal/pkg/errors"
)

// MaxEchoRunes is the longest message /echo accepts.
const MaxEchoRunes = 4000

// HealthHandler serves the liveness and echo endpoints.
type HealthHandler struct {
	version string
}

// NewHealthHandler creates a handler reporting version on /health.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version}
}

// RegisterRoutes registers /health and /echo.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /echo", h.handleEcho)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// EchoMessage is both the request and response body of POST /echo.
type EchoMessage struct {
	Message *string `json:"message"`
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

func (h *HealthHandler) handleEcho(w http.ResponseWriter, r *http.Request) {
	var req EchoMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		errors.WriteErrorWithStatus(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if req.Message == nil {
		errors.WriteError(w, errors.ValidationError("message is required").WithDetail("field", "message"))
		return
	}

	n := utf8.RuneCountInString(*req.Message)
	if n < 1 || n > MaxEchoRunes {
		errors.WriteError(w, errors.ValidationError(
			fmt.Sprintf("message must be between 1 and %d characters, got %d", MaxEchoRunes, n),
		).WithDetail("field", "message"))
		return
	}

	writeJSON(w, http.StatusOK, req)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
