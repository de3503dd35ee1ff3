package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aiengineer/rageval/internal/config"
	"github.com/aiengineer/rageval/internal/evaluation"
	"github.com/aiengineer/rageval/internal/judgments"
	apperrors "github.com/aiengineer/rageval/internal/pkg/errors"
	"github.com/aiengineer/rageval/internal/pkg/middleware"
)

func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Version = "test-1.0"
	return cfg
}

func newTestServer(t *testing.T, appCfg *config.Config) *Server {
	t.Helper()
	s, err := New(context.Background(), FromAppConfig(appCfg), appCfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func request(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testAppConfig(t))

	rec := request(t, s.Handler(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Version != "test-1.0" {
		t.Errorf("body = %+v", body)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("response missing request ID header")
	}
}

func TestEcho(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"hello", `{"message":"hello"}`, http.StatusOK, ""},
		{"multibyte at limit", `{"message":"` + strings.Repeat("é", MaxEchoRunes) + `"}`, http.StatusOK, ""},
		{"empty message", `{"message":""}`, http.StatusBadRequest, apperrors.CodeValidation},
		{"missing message", `{}`, http.StatusBadRequest, apperrors.CodeValidation},
		{"too long", `{"message":"` + strings.Repeat("a", MaxEchoRunes+1) + `"}`, http.StatusBadRequest, apperrors.CodeValidation},
		{"malformed json", `{"message":`, http.StatusBadRequest, apperrors.CodeInvalidRequest},
	}

	s := newTestServer(t, testAppConfig(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := request(t, s.Handler(), http.MethodPost, "/echo", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}

			if tt.wantCode == "" {
				var got, sent map[string]string
				_ = json.Unmarshal([]byte(tt.body), &sent)
				if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if got["message"] != sent["message"] || len(got) != 1 {
					t.Errorf("echo = %v, want %v", got, sent)
				}
				return
			}

			var resp apperrors.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestEvaluationRoutes_Wrapped(t *testing.T) {
	s := newTestServer(t, testAppConfig(t))

	rec := request(t, s.Handler(), http.MethodPost, "/v1/evaluation/prf1", `{"tp":5,"fp":0,"fn":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var body struct {
		Data struct {
			Precision float64 `json:"precision"`
			Recall    float64 `json:"recall"`
			F1        float64 `json:"f1"`
		} `json:"data"`
		Meta ResponseMeta `json:"meta"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Precision != 1 || body.Data.Recall != 1 || body.Data.F1 != 1 {
		t.Errorf("data = %+v", body.Data)
	}
	if body.Meta.RequestID == "" || body.Meta.RequestID != rec.Header().Get(middleware.RequestIDHeader) {
		t.Errorf("meta request_id = %q, header = %q", body.Meta.RequestID, rec.Header().Get(middleware.RequestIDHeader))
	}
}

func TestEvaluationRoutes_ConfiguredDefaultK(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Eval.DefaultK = 1
	s := newTestServer(t, cfg)

	rec := request(t, s.Handler(), http.MethodPost, "/v1/evaluation/recall", `{"ground_truth":["a","b"],"ranked":["x","a","b"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var body struct {
		Data evaluation.RecallResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if want := (evaluation.RecallResponse{Hits: 0, K: 1, Recall: 0}); body.Data != want {
		t.Errorf("data = %+v, want %+v", body.Data, want)
	}
}

func TestEvaluationRoutes_ErrorsNotWrapped(t *testing.T) {
	s := newTestServer(t, testAppConfig(t))

	rec := request(t, s.Handler(), http.MethodPost, "/v1/evaluation/batch-recall",
		`{"ground_truths":[["a"]],"ranked_lists":[],"k":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp apperrors.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != apperrors.CodeLengthMismatch {
		t.Errorf("code = %s, want %s", resp.Code, apperrors.CodeLengthMismatch)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testAppConfig(t))
	h := s.Handler()

	request(t, h, http.MethodPost, "/v1/evaluation/evaluate", `{"name":"m","queries":[{"id":"q","ranked":["a"],"relevant":["a"]}]}`)
	request(t, h, http.MethodGet, "/health", "")

	rec := request(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`rageval_evaluations_total{status="ok"} 1`,
		"rageval_evaluated_queries_total 1",
		`rageval_http_requests_total{method="GET",route="/health",status="200"} 1`,
		`rageval_bus_events_published_total{topic="evaluation.completed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Observability.MetricsEnabled = false
	s := newTestServer(t, cfg)

	rec := request(t, s.Handler(), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Security.RateLimit = 1
	cfg.Security.RateBurst = 2
	s := newTestServer(t, cfg)
	h := s.Handler()

	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, request(t, h, http.MethodGet, "/health", "").Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("first two requests = %v, want 200s", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", codes[2])
	}
}

func TestNew_InvalidBackends(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Bus.Type = "nats"

	if _, err := New(context.Background(), FromAppConfig(cfg), cfg, nil); err == nil {
		t.Error("New() error = nil for unknown bus type")
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Host = "127.0.0.1"
	srvCfg := FromAppConfig(cfg)
	srvCfg.Port = 18765

	s, err := New(context.Background(), srvCfg, cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:18765")
	if err != nil {
		t.Fatalf("port still held after shutdown: %v", err)
	}
	_ = ln.Close()
}

func TestStart_ListenFailureReleasesServices(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer ln.Close()

	cfg := testAppConfig(t)
	cfg.Host = "127.0.0.1"
	srvCfg := FromAppConfig(cfg)
	srvCfg.Port = ln.Addr().(*net.TCPAddr).Port

	s, err := New(context.Background(), srvCfg, cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() error = nil on a port already in use")
	}

	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if started {
		t.Error("server still marked started after listen failure")
	}
	err = s.judgments.Add(context.Background(), []judgments.Judgment{{QueryID: "q", DocID: "d"}})
	if apperrors.CodeOf(err) != apperrors.CodeUnavailable {
		t.Errorf("judgments.Add() after failed Start error = %v, want SERVICE_UNAVAILABLE", err)
	}
}
