// Package server provides the HTTP server that wires all services together.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aiengineer/rageval/internal/bus"
	"github.com/aiengineer/rageval/internal/config"
	"github.com/aiengineer/rageval/internal/evaluation"
	"github.com/aiengineer/rageval/internal/judgments"
	"github.com/aiengineer/rageval/internal/metrics"
	"github.com/aiengineer/rageval/internal/pkg/logger"
	"github.com/aiengineer/rageval/internal/pkg/middleware"
	"github.com/aiengineer/rageval/internal/pkg/security"
)

// Server is the main HTTP server that wires all services together.
type Server struct {
	cfg        Config
	log        *logger.Logger
	httpServer *http.Server
	handler    http.Handler

	// Services
	bus       bus.Bus
	judgments judgments.Store
	metrics   *metrics.Metrics
	evaluator *evaluation.Evaluator
	limiter   *middleware.RateLimiter

	mu        sync.RWMutex
	started   bool
	closeOnce sync.Once
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is reported by /health.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8000,
		Version:         config.DefaultVersion,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// FromAppConfig derives server settings from the application config.
func FromAppConfig(appCfg *config.Config) Config {
	cfg := DefaultConfig()
	cfg.Host = appCfg.Host
	cfg.Port = appCfg.Port
	if appCfg.Version != "" {
		cfg.Version = appCfg.Version
	}
	return cfg
}

// New creates a new server with all dependencies built from appCfg.
func New(ctx context.Context, cfg Config, appCfg *config.Config, log *logger.Logger) (*Server, error) {
	if cfg.Port == 0 {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
	}

	store, err := judgments.New(ctx, judgments.Config{
		Type:       appCfg.Judgments.Type,
		RedisURL:   appCfg.Judgments.RedisURL,
		KeyPrefix:  appCfg.Judgments.KeyPrefix,
		SQLitePath: appCfg.Judgments.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create judgments store: %w", err)
	}
	s.judgments = store
	log.Info("Judgments store ready",
		"type", appCfg.Judgments.Type,
		"redis_url", security.MaskURL(appCfg.Judgments.RedisURL),
	)

	b, err := bus.New(bus.Config{
		Type:         appCfg.Bus.Type,
		KafkaBrokers: appCfg.Bus.KafkaBrokers,
		KafkaGroup:   appCfg.Bus.KafkaGroup,
	}, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	s.bus = bus.NewInstrumentedBus(b, s.metrics)

	if err := s.bus.Subscribe(ctx, bus.TopicEvaluationCompleted, s.onEvaluationCompleted); err != nil {
		s.closeServices()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", bus.TopicEvaluationCompleted, err)
	}

	s.evaluator = evaluation.NewEvaluator(s.judgments, s.bus, s.metrics, log, evaluation.Config{
		Ks:       appCfg.Eval.Ks,
		DefaultK: appCfg.Eval.DefaultK,
	})

	if appCfg.Security.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(appCfg.Security.RateLimit),
			Burst:             appCfg.Security.RateBurst,
		})
	}

	metricsPath := ""
	if appCfg.Observability.MetricsEnabled {
		metricsPath = appCfg.Observability.MetricsPath
	}
	s.handler = s.setupRoutes(metricsPath)

	return s, nil
}

// onEvaluationCompleted logs completed runs announced on the bus.
func (s *Server) onEvaluationCompleted(_ context.Context, event bus.Event) error {
	s.log.Debug("Evaluation event", "event_id", event.ID, "source", event.Source)
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", "addr", addr, "version", s.cfg.Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.mu.Lock()
		s.started = false
		s.closeServices()
		s.mu.Unlock()
		return fmt.Errorf("http server on %s: %w", addr, err)
	case <-ctx.Done():
		return s.Shutdown(context.WithoutCancel(ctx))
	}
}

// Shutdown gracefully stops the server and releases its services.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.closeServices()
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Error("HTTP shutdown error")
		shutdownErr = err
	}

	s.closeServices()

	s.started = false
	s.log.Info("Server stopped")

	return shutdownErr
}

func (s *Server) closeServices() {
	s.closeOnce.Do(s.doCloseServices)
}

func (s *Server) doCloseServices() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.log.WithError(err).Warn("Bus close error")
		}
	}
	if s.judgments != nil {
		if err := s.judgments.Close(); err != nil {
			s.log.WithError(err).Warn("Judgments store close error")
		}
	}
}

// setupRoutes configures all HTTP routes and the middleware chain.
func (s *Server) setupRoutes(metricsPath string) http.Handler {
	mux := http.NewServeMux()

	NewHealthHandler(s.cfg.Version).RegisterRoutes(mux)
	evaluation.NewHandler(s.evaluator).RegisterRoutes(mux)
	if metricsPath != "" {
		mux.Handle("GET "+metricsPath, s.metrics.Handler())
	}

	var handler http.Handler = ResponseWrapperMiddleware(mux)
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = middleware.Recover(s.log)(handler)
	handler = wrapWithLogging(handler, s.log)
	handler = middleware.RequestID(handler)
	return metrics.HTTPMiddleware(s.metrics, handler)
}

// wrapWithLogging logs every request at debug level.
func wrapWithLogging(handler http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		handler.ServeHTTP(wrapped, r)

		log.WithContext(r.Context()).Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

