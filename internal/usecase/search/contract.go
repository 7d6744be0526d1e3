package search

import (
	"context"

	"github.com/donizo/pricing-engine/internal/domain"
	"github.com/donizo/pricing-engine/internal/repository/catalog"
)

// Catalog defines the storage contract for material search.
type Catalog interface {
	SearchByVector(
		ctx context.Context, vector []float32, f domain.QueryFilter, k int,
	) ([]catalog.ScoredMaterial, error)

	SearchByRecency(
		ctx context.Context, f domain.QueryFilter, limit int,
	) ([]catalog.ScoredMaterial, error)
}

// Embedder vectorizes the free-text query.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
