// Package chi exposes the pricing engine over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/donizo/pricing-engine/internal/domain"
	logpkg "github.com/donizo/pricing-engine/internal/logger"
	feedbackuc "github.com/donizo/pricing-engine/internal/usecase/feedback"
	healthuc "github.com/donizo/pricing-engine/internal/usecase/health"
)

// Searcher ranks catalog materials for the material-price endpoint.
type Searcher interface {
	Search(ctx context.Context, f domain.QueryFilter) ([]domain.RankedMatch, error)
}

// Estimator builds priced proposals from transcripts.
type Estimator interface {
	Generate(ctx context.Context, transcript, regionHint, buildTypeHint string) (domain.Proposal, error)
}

// FeedbackSink records quote verdicts.
type FeedbackSink interface {
	Submit(ctx context.Context, sub feedbackuc.Submission) (feedbackuc.Receipt, error)
}

// HealthChecker aggregates component availability.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers for the pricing API.
type Server struct {
	search        Searcher
	proposals     Estimator
	feedback      FeedbackSink
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search Searcher,
	proposals Estimator,
	feedback FeedbackSink,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:    search,
		proposals: proposals,
		feedback:  feedback,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidFilter, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrNoMatchFound, http.StatusNotFound, "no_match_found"),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, "vector_dim_mismatch"),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, "embedding_unavailable"),
		sentinelHandler(domain.ErrCatalogUnavailable, http.StatusServiceUnavailable, "catalog_unavailable"),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"),
	}
	return s
}

// Routes registers all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.HealthCheck)
	r.Get("/material-price", s.MaterialPrice)
	r.Post("/generate-proposal", s.GenerateProposal)
	r.Post("/feedback", s.Feedback)
	r.Get("/metrics", s.Metrics)
}

// MaterialPrice handles GET /material-price.
func (s *Server) MaterialPrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.QueryFilter{
		Query:  q.Get("query"),
		Region: q.Get("region"),
		Unit:   q.Get("unit"),
		Vendor: q.Get("vendor"),
	}

	if v := q.Get("quality_score_min"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "quality_score_min must be an integer")
			return
		}
		filter.MinQuality = &n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be an integer")
			return
		}
		filter.Limit = n
	}

	matches, err := s.search.Search(r.Context(), filter)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if len(matches) == 0 {
		s.handleDomainError(w, r, fmt.Errorf("no materials found: %w", domain.ErrNoMatchFound))
		return
	}

	if q.Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		if err := writeMaterialsCSV(w, matches); err != nil {
			s.logger.Error("write csv", zap.Error(err))
		}
		return
	}

	writeJSON(w, http.StatusOK, materialsToOut(matches))
}

// GenerateProposal handles POST /generate-proposal.
func (s *Server) GenerateProposal(w http.ResponseWriter, r *http.Request) {
	var req proposalIn
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Transcript == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Transcript is required")
		return
	}

	p, err := s.proposals.Generate(r.Context(), req.Transcript, req.Region, req.BuildType)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, proposalToOut(p))
}

// Feedback handles POST /feedback.
func (s *Server) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackIn
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	receipt, err := s.feedback.Submit(r.Context(), feedbackuc.Submission{
		TaskID:          req.TaskID,
		QuoteID:         req.QuoteID,
		UserType:        req.UserType,
		Verdict:         req.Verdict,
		Comment:         req.Comment,
		TargetComponent: req.TargetComponent,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	plan := receipt.AdaptationPlan
	if plan == nil {
		plan = []string{}
	}
	writeJSON(w, http.StatusOK, feedbackOut{
		Status:         "recorded",
		FeedbackID:     receipt.ID,
		AdaptationPlan: plan,
	})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidFilter,
		domain.ErrNoMatchFound,
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingUnavailable,
		domain.ErrCatalogUnavailable,
		context.DeadlineExceeded,
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

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	// The logging middleware stores a request-scoped logger carrying the
	// request id; error entries correlate with the wide event through it.
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
