// Package server exposes the evaluation pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/gatekeeper/internal/governance"
	"github.com/polisai/gatekeeper/pkg/domain"
)

const (
	evaluatePath = "/v1/evaluate"
	healthPath   = "/healthz"
	metricsPath  = "/metrics"

	// RuleCountHeader reports the size of the active rule snapshot on /healthz.
	RuleCountHeader = "X-Gatekeeper-Rules"

	maxRequestBodyBytes    = 1 << 20
	defaultShutdownTimeout = 10 * time.Second
)

// Evaluator is the pipeline surface the server needs.
type Evaluator interface {
	Evaluate(ctx context.Context, request string) (domain.DecisionCard, error)
	Rules() []domain.PolicyRule
}

// Config holds the HTTP service settings.
type Config struct {
	Address         string
	ShutdownTimeout time.Duration
	RateLimit       governance.RateLimiterConfig
}

// Server serves POST /v1/evaluate, /healthz and /metrics.
type Server struct {
	cfg       Config
	evaluator Evaluator
	metrics   *Metrics
	limiter   *governance.RateLimiter
	logger    *slog.Logger
	handler   http.Handler
}

type evaluateRequest struct {
	Request string `json:"request"`
}

// New creates a server. A nil metrics gets a fresh registry.
func New(cfg Config, evaluator Evaluator, metrics *Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		cfg:       cfg,
		evaluator: evaluator,
		metrics:   metrics,
		limiter:   governance.NewRateLimiter(cfg.RateLimit),
		logger:    logger,
	}
	metrics.SetRulesLoaded(len(evaluator.Rules()))

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+evaluatePath, s.handleEvaluate)
	mux.HandleFunc("GET "+healthPath, s.handleHealth)
	mux.Handle("GET "+metricsPath, metrics.Handler())

	limited := &rateLimitMiddleware{limiter: s.limiter, metrics: metrics, logger: logger}
	var handler http.Handler = mux
	handler = metrics.MetricsMiddleware(handler)
	handler = limited.Wrap(handler)
	handler = requestIDMiddleware(handler)
	s.handler = otelhttp.NewHandler(handler, "gatekeeper.http")

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gatekeeper server listening", "address", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down gatekeeper server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	s.logger.Info("shutdown complete")
	return nil
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFromContext(r.Context())

	var body evaluateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(&body); err != nil {
		s.logger.Warn("invalid evaluation request", "request_id", requestID, "error", err)
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a JSON object with a request field")
		return
	}
	if strings.TrimSpace(body.Request) == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", domain.ErrInvalidRequest.Error()+": request text is empty")
		return
	}

	card, err := s.evaluator.Evaluate(r.Context(), body.Request)
	if err != nil {
		s.logger.Warn("evaluation aborted", "request_id", requestID, "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "EVALUATION_ABORTED", "evaluation was cancelled")
		return
	}
	s.metrics.RecordDecision(string(card.Decision), string(card.RiskLevel))

	s.logger.Info("evaluation served",
		"request_id", requestID,
		"decision", string(card.Decision),
		"risk_level", string(card.RiskLevel),
		"matched", len(card.MatchedPolicies),
	)
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	n := len(s.evaluator.Rules())
	s.metrics.SetRulesLoaded(n)
	w.Header().Set(RuleCountHeader, strconv.Itoa(n))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, domain.ErrorResponse{
		Code:    code,
		Message: message,
		TraceID: RequestIDFromContext(r.Context()),
	})
}
