package proposal

import (
	"context"

	"github.com/donizo/pricing-engine/internal/domain"
)

// Searcher ranks catalog materials against a free-text query.
type Searcher interface {
	Search(ctx context.Context, f domain.QueryFilter) ([]domain.RankedMatch, error)
}
