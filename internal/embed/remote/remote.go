// Package remote calls an OpenAI-compatible embedding service over HTTP.
package remote

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/donizo/pricing-engine/internal/domain"
	"github.com/donizo/pricing-engine/internal/metrics"
)

// Config holds the embedding service settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	MaxRetries int
	BackoffCap time.Duration
	Logger     *zap.Logger
}

// Embedder is an embedding provider backed by a remote service.
// Rate limits and server errors are retried with capped exponential
// backoff; a rate-limit response with a numeric Retry-After header sleeps
// for exactly that long instead.
type Embedder struct {
	client     *resty.Client
	model      string
	dimensions int
	maxRetries int
	backoffCap time.Duration
	logger     *zap.Logger

	// jitter is split out so tests can collapse backoff to zero.
	jitter func() time.Duration
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewEmbedder creates a remote embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Embedder{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxRetries: cfg.MaxRetries,
		backoffCap: cfg.BackoffCap,
		logger:     cfg.Logger,
		jitter: func() time.Duration {
			return time.Duration(rand.Float64() * 0.5 * float64(time.Second))
		},
	}
}

// Embed implements domain.Embedder. All terminal failures wrap
// domain.ErrEmbeddingUnavailable.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		vec, retryIn, err := e.tryOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		if retryIn < 0 {
			return nil, err
		}
		if attempt == e.maxRetries {
			break
		}

		e.logger.Warn("Embedding request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", e.maxRetries),
			zap.Error(err),
		)

		if retryIn == 0 {
			retryIn = e.backoff(attempt)
		}
		if err := sleepCtx(ctx, retryIn); err != nil {
			return nil, fmt.Errorf("embedding retry aborted: %w", err)
		}
	}

	return nil, fmt.Errorf("embedding retries exhausted after %d attempts: %w",
		e.maxRetries, domain.ErrEmbeddingUnavailable)
}

// tryOnce performs one request. The returned duration is -1 for fatal
// errors, 0 for retryable errors without a server hint, and positive when
// the server supplied a Retry-After delay.
func (e *Embedder) tryOnce(ctx context.Context, text string) ([]float32, time.Duration, error) {
	start := time.Now()

	var out embeddingResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(embeddingRequest{Model: e.model, Input: []string{text}}).
		SetResult(&out).
		Post("/embeddings")

	if err != nil {
		if ctx.Err() != nil {
			e.observe("error")
			return nil, -1, fmt.Errorf("embedding request: %w", ctx.Err())
		}
		e.observe("error")
		metrics.EmbeddingRetriesTotal.WithLabelValues("network").Inc()
		return nil, 0, fmt.Errorf("embedding request: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests:
		e.observe("rate_limited")
		metrics.EmbeddingRetriesTotal.WithLabelValues("rate_limited").Inc()
		return nil, retryAfter(resp), fmt.Errorf("embedding service rate limited (429)")

	case code >= 500:
		e.observe("error")
		metrics.EmbeddingRetriesTotal.WithLabelValues("server_error").Inc()
		return nil, 0, fmt.Errorf("embedding service error (%d)", code)

	case code >= 400:
		e.observe("error")
		return nil, -1, fmt.Errorf("embedding client error (%d): %s: %w",
			code, resp.String(), domain.ErrEmbeddingUnavailable)
	}

	metrics.EmbeddingRequestDuration.WithLabelValues("remote", e.model).
		Observe(time.Since(start).Seconds())

	if len(out.Data) == 0 {
		e.observe("error")
		return nil, -1, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingUnavailable)
	}
	vec := out.Data[0].Embedding
	if e.dimensions > 0 && len(vec) != e.dimensions {
		e.observe("error")
		return nil, -1, fmt.Errorf("embedding has %d dimensions, want %d: %w",
			len(vec), e.dimensions, domain.ErrVectorDimMismatch)
	}

	e.observe("success")
	return vec, -1, nil
}

// backoff returns min(2^attempt, cap) seconds plus uniform jitter in [0, 0.5)s.
func (e *Embedder) backoff(attempt int) time.Duration {
	base := time.Duration(math.Min(math.Pow(2, float64(attempt)), e.backoffCap.Seconds())) * time.Second
	if base > e.backoffCap {
		base = e.backoffCap
	}
	return base + e.jitter()
}

func (e *Embedder) observe(status string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues("remote", e.model, status).Inc()
}

// retryAfter parses a numeric Retry-After header, 0 when absent or malformed.
func retryAfter(resp *resty.Response) time.Duration {
	v := resp.Header().Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// HealthCheck verifies service availability via the models listing endpoint.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	resp, err := e.client.R().SetContext(ctx).Get("/models")
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("list models: status %d", resp.StatusCode())
	}
	return nil
}
