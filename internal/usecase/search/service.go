// Package search ranks catalog materials against a free-text query.
package search

import (
	"context"
	"fmt"

	"github.com/donizo/pricing-engine/internal/domain"
	"github.com/donizo/pricing-engine/internal/metrics"
)

// Config holds ranking and tiering settings.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	MinScore     float64
	Thresholds   domain.Thresholds
	UnitSynonyms map[string]string
}

// Service executes material searches with confidence tiering and graceful
// degradation. The ranking strategy is fixed at construction (process-wide
// mode flag), so vector-ranked and recency-ranked deployments are
// interchangeable from the caller's perspective.
type Service struct {
	ranker ranker
	cfg    Config
}

// New creates a search service with the given ranking strategy.
func New(r ranker, cfg Config) *Service {
	return &Service{ranker: r, cfg: cfg}
}

// NewVectorRanked creates a service ranking by embedding distance.
func NewVectorRanked(cat Catalog, emb Embedder, cfg Config) *Service {
	return New(&vectorRanker{catalog: cat, embed: emb}, cfg)
}

// NewRecencyRanked creates a service ranking by update recency, for
// deployments without vector infrastructure.
func NewRecencyRanked(cat Catalog, cfg Config) *Service {
	return New(&recencyRanker{catalog: cat}, cfg)
}

// Search returns ranked matches, most similar first. An empty slice with a
// nil error means no rows matched the structured filters — a valid outcome
// distinct from both errors and below-threshold matches.
func (s *Service) Search(ctx context.Context, f domain.QueryFilter) ([]domain.RankedMatch, error) {
	limit, err := s.resolveLimit(f.Limit)
	if err != nil {
		return nil, err
	}
	if f.Query == "" {
		return nil, fmt.Errorf("query text is required: %w", domain.ErrInvalidFilter)
	}
	if f.MinQuality != nil && *f.MinQuality < 1 {
		return nil, fmt.Errorf("quality_score_min must be at least 1, got %d: %w",
			*f.MinQuality, domain.ErrInvalidFilter)
	}

	f.Unit = s.normalizeUnit(f.Unit)
	f.Limit = limit

	scored, err := s.ranker.rank(ctx, f)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.RankedMatch, len(scored))
	for i, sm := range scored {
		matches[i] = domain.RankedMatch{
			Material:   sm.material,
			Similarity: sm.similarity,
			Tier:       s.cfg.Thresholds.TierFor(sm.similarity),
		}
	}

	// Graceful degradation: when even the best hit is weak, flag it LOW so
	// callers know not to trust it.
	if len(matches) > 0 && matches[0].Similarity < s.cfg.MinScore {
		matches[0].Tier = domain.TierLow
	}

	metrics.SearchResultsReturned.WithLabelValues(s.ranker.mode()).Observe(float64(len(matches)))

	return matches, nil
}

func (s *Service) resolveLimit(limit int) (int, error) {
	if limit == 0 {
		return s.cfg.DefaultLimit, nil
	}
	if limit < 1 || limit > s.cfg.MaxLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d, got %d: %w",
			s.cfg.MaxLimit, limit, domain.ErrInvalidFilter)
	}
	return limit, nil
}

// normalizeUnit maps caller-supplied unit spellings ("sqm") onto catalog
// units ("€/m²"). Unknown units pass through unchanged.
func (s *Service) normalizeUnit(unit string) string {
	if unit == "" {
		return ""
	}
	if norm, ok := s.cfg.UnitSynonyms[unit]; ok {
		return norm
	}
	return unit
}
