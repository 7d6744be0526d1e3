package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/donizo/pricing-engine/internal/config"
	"github.com/donizo/pricing-engine/internal/domain"
	"github.com/donizo/pricing-engine/internal/embed/embcache"
	"github.com/donizo/pricing-engine/internal/embed/remote"
	"github.com/donizo/pricing-engine/internal/embed/simulated"
	logpkg "github.com/donizo/pricing-engine/internal/logger"
	"github.com/donizo/pricing-engine/internal/metrics"
	"github.com/donizo/pricing-engine/internal/repository/catalog"
	feedbackrepo "github.com/donizo/pricing-engine/internal/repository/feedback"
	chiTransport "github.com/donizo/pricing-engine/internal/transport/chi"
	feedbackuc "github.com/donizo/pricing-engine/internal/usecase/feedback"
	healthuc "github.com/donizo/pricing-engine/internal/usecase/health"
	proposaluc "github.com/donizo/pricing-engine/internal/usecase/proposal"
	searchuc "github.com/donizo/pricing-engine/internal/usecase/search"
	"github.com/donizo/pricing-engine/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting pricing engine API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("embedding_mode", cfg.Embedding.Mode),
		zap.String("search_mode", cfg.Search.Mode),
	)

	store, err := catalog.NewStore(catalog.Config{
		Addrs:      cfg.Database.Addrs,
		Password:   cfg.Database.Password,
		KeyPrefix:  cfg.Database.KeyPrefix,
		Dimensions: cfg.Embedding.Dimensions,
		OpTimeout:  time.Duration(cfg.Database.OpTimeoutSec) * time.Second,
	})
	if err != nil {
		logger.Fatal("Failed to create catalog store", zap.Error(err))
	}
	defer store.Close()

	// Wait for the catalog store to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Catalog store not ready", zap.Error(err))
	}
	logger.Info("Connected to catalog store")

	if err := store.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure catalog index", zap.Error(err))
	}

	// Register engine metrics explicitly (no init())
	metrics.RegisterEngineMetrics()

	// Build embedder chain — composition root
	embedder, err := buildEmbedder(cfg.Embedding, logger)
	if err != nil {
		logger.Fatal("Failed to create embedder", zap.Error(err))
	}
	logger.Info("Embedder created",
		zap.String("mode", cfg.Embedding.Mode),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Create use case services
	searchCfg := searchuc.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		MinScore:     cfg.Search.MinScore,
		Thresholds:   domain.Thresholds{High: cfg.Search.Tiers.High, Medium: cfg.Search.Tiers.Medium},
		UnitSynonyms: cfg.Search.UnitSynonyms,
	}
	var searchSvc *searchuc.Service
	switch cfg.Search.Mode {
	case "recency":
		searchSvc = searchuc.NewRecencyRanked(store, searchCfg)
	default:
		searchSvc = searchuc.NewVectorRanked(store, embedder, searchCfg)
	}

	proposalSvc := proposaluc.New(searchSvc, proposalConfig(cfg), logger)
	feedbackSvc := feedbackuc.New(feedbackrepo.New(store.Client(), cfg.Database.KeyPrefix), logger)
	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embedder))

	server := chiTransport.NewServer(searchSvc, proposalSvc, feedbackSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: provider -> cache.
func buildEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (domain.Embedder, error) {
	var base domain.Embedder
	switch cfg.Mode {
	case "remote":
		base = remote.NewEmbedder(&remote.Config{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
			MaxRetries: cfg.MaxRetries,
			BackoffCap: time.Duration(cfg.BackoffCapSec) * time.Second,
			Logger:     logger,
		})
	default:
		base = simulated.New(cfg.Dimensions)
	}

	return embcache.New(base, cfg.CacheCapacity, metrics.EmbeddingCacheTotal, logger)
}

func proposalConfig(cfg config.Config) proposaluc.Config {
	tasks := make([]proposaluc.TaskRule, len(cfg.Proposal.Tasks))
	for i, t := range cfg.Proposal.Tasks {
		tasks[i] = proposaluc.TaskRule{
			Label:          t.Label,
			Keywords:       t.Keywords,
			BaseLaborHours: t.BaseLaborHours,
		}
	}

	return proposaluc.Config{
		Regions:          cfg.Pricing.Regions,
		DefaultRegion:    cfg.Pricing.DefaultRegion,
		VATNewBuild:      cfg.Pricing.VATNewBuild,
		VATRenovation:    cfg.Pricing.VATRenovation,
		ContractorMargin: cfg.Pricing.ContractorMargin,
		HourlyRate:       cfg.Pricing.HourlyRate,
		Tasks:            tasks,
		DefaultTask: proposaluc.TaskRule{
			Label:          cfg.Proposal.DefaultTask.Label,
			Keywords:       cfg.Proposal.DefaultTask.Keywords,
			BaseLaborHours: cfg.Proposal.DefaultTask.BaseLaborHours,
		},
		Fallback: proposaluc.Fallback{
			Vendor:       cfg.Proposal.Fallback.Vendor,
			Note:         cfg.Proposal.Fallback.Note,
			UnitPrice:    cfg.Proposal.Fallback.UnitPrice,
			QualityScore: cfg.Proposal.Fallback.QualityScore,
		},
	}
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
