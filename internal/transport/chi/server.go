// Package chi exposes the conversational API over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omnisource/internal/domain"
	healthuc "github.com/kailas-cloud/omnisource/internal/usecase/health"
	orchestratoruc "github.com/kailas-cloud/omnisource/internal/usecase/orchestrator"
)

// Error codes returned in the JSON error body.
const (
	CodeBadRequest        = "bad_request"
	CodeInvalidInput      = "invalid_input"
	CodeTurnNotFound      = "turn_not_found"
	CodeRateLimited       = "rate_limited"
	CodeReasoningError    = "reasoning_unavailable"
	CodeConversationError = "conversation_store_error"
	CodeInternalError     = "internal_error"
)

// ErrorResponse is the uniform JSON error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Chat runs conversational turns and records feedback.
type Chat interface {
	Ask(ctx context.Context, sessionID, text string) (*orchestratoruc.Result, error)
	SubmitFeedback(ctx context.Context, sessionID, turnID string, rating int) error
}

// Analytics reads the usage summary.
type Analytics interface {
	Summary(ctx context.Context) (*domain.UsageSummary, error)
}

// Health aggregates collaborator probes.
type Health interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	chat          Chat
	analytics     Analytics
	health        Health
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(chat Chat, analytics Analytics, health Health, logger *zap.Logger) *Server {
	s := &Server{
		chat:      chat,
		analytics: analytics,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeInvalidInput),
		sentinelHandler(domain.ErrTurnNotFound, http.StatusNotFound, CodeTurnNotFound),
		sentinelHandler(domain.ErrReasoningRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrReasoningUnavailable, http.StatusBadGateway, CodeReasoningError),
		sentinelHandler(domain.ErrConversationStore, http.StatusInternalServerError, CodeConversationError),
	}
	return s
}

// Routes registers the API on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/chat", s.HandleChat)
	r.Post("/feedback", s.HandleFeedback)
	r.Get("/analytics/summary", s.HandleAnalyticsSummary)
	r.Get("/health", s.HandleHealth)
	r.Get("/metrics", s.HandleMetrics)
}

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse is the completed-turn payload.
type ChatResponse struct {
	TurnID              string            `json:"turn_id"`
	Answer              string            `json:"answer"`
	Citations           []domain.Citation `json:"citations"`
	Route               []string          `json:"route"`
	LatencyMS           int64             `json:"latency_ms"`
	UnverifiedCitations bool              `json:"unverified_citations,omitempty"`
}

// HandleChat handles POST /chat.
func (s *Server) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := s.chat.Ask(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	citations := result.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		TurnID:              result.TurnID,
		Answer:              result.Answer,
		Citations:           citations,
		Route:               result.Route,
		LatencyMS:           result.LatencyMS,
		UnverifiedCitations: result.Unverified,
	})
}

// FeedbackRequest is the POST /feedback body.
type FeedbackRequest struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	Rating    int    `json:"rating"`
}

// HandleFeedback handles POST /feedback.
func (s *Server) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := s.chat.SubmitFeedback(r.Context(), req.SessionID, req.TurnID, req.Rating); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleAnalyticsSummary handles GET /analytics/summary.
func (s *Server) HandleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.analytics.Summary(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HandleHealth handles GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// HandleMetrics handles GET /metrics.
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidInput,
		domain.ErrTurnNotFound,
		domain.ErrReasoningRateLimited,
		domain.ErrReasoningUnavailable,
		domain.ErrConversationStore,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
