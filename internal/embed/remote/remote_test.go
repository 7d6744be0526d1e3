package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/donizo/pricing-engine/internal/domain"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) (*Embedder, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e := NewEmbedder(&Config{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Model:      "text-embedding-3-small",
		Dimensions: 3,
		Timeout:    2 * time.Second,
		MaxRetries: 3,
		BackoffCap: time.Second,
		Logger:     zap.NewNop(),
	})
	// Collapse jitter so retry tests run instantly.
	e.jitter = func() time.Duration { return 0 }
	e.backoffCap = 10 * time.Millisecond
	return e, srv
}

func writeVector(w http.ResponseWriter, vec []float32) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": []map[string]any{{"embedding": vec}},
	})
}

func TestEmbed_Success(t *testing.T) {
	var gotBody embeddingRequest
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeVector(w, []float32{0.1, 0.2, 0.3})
	})

	vec, err := e.Embed(context.Background(), "tile adhesive")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(vec))
	}
	if gotBody.Model != "text-embedding-3-small" {
		t.Errorf("model = %q", gotBody.Model)
	}
	if len(gotBody.Input) != 1 || gotBody.Input[0] != "tile adhesive" {
		t.Errorf("input = %v", gotBody.Input)
	}
}

func TestEmbed_RetryAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	start := time.Now()
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0.05")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeVector(w, []float32{1, 0, 0})
	})

	vec, err := e.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("unexpected vector %v", vec)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("retry ignored server Retry-After hint, elapsed %v", elapsed)
	}
}

func TestEmbed_RetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeVector(w, []float32{0, 1, 0})
	})

	if _, err := e.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestEmbed_ClientErrorIsFatal(t *testing.T) {
	var calls atomic.Int32
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"bad input"}`)
	})

	_, err := e.Embed(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("client errors must not be retried, got %d calls", calls.Load())
	}
}

func TestEmbed_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := e.Embed(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestEmbed_NoBackoffAfterFinalAttempt(t *testing.T) {
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	var sleeps atomic.Int32
	e.jitter = func() time.Duration {
		sleeps.Add(1)
		return 0
	}

	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	// 3 attempts take 2 backoffs; sleeping after the last one only
	// delays the exhausted error.
	if sleeps.Load() != 2 {
		t.Errorf("expected 2 backoffs, got %d", sleeps.Load())
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		writeVector(w, []float32{1, 2})
	})

	_, err := e.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestEmbed_ContextCancelAbortsRetry(t *testing.T) {
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	e.backoffCap = time.Minute // force a long sleep so cancellation wins

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Embed(ctx, "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation did not abort the backoff sleep")
	}
}
