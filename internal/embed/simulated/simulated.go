// Package simulated provides a deterministic embedding provider for
// environments without a remote embedding service.
package simulated

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand/v2"
)

// Embedder derives a pseudo-random unit vector from a hash of the input
// text. The same text always yields a bit-identical vector, so cached and
// recomputed embeddings agree across processes.
type Embedder struct {
	dimensions int
}

// New creates a simulated embedding provider of fixed dimension.
func New(dimensions int) *Embedder {
	return &Embedder{dimensions: dimensions}
}

// Embed returns an L2-normalized standard-normal vector seeded from
// SHA-256 of the text.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	rng := rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(sum[0:8]),
		binary.BigEndian.Uint64(sum[8:16]),
	))

	vec := make([]float32, e.dimensions)
	var norm float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

// HealthCheck implements domain.HealthChecker; the simulator is always available.
func (e *Embedder) HealthCheck(_ context.Context) error { return nil }
