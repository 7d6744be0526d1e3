package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/donizo/pricing-engine/internal/domain"
)

// EnsureIndex creates the material FT index if it does not exist yet.
// Tag fields back the structured filters, updated_at backs recency
// ordering, and the HNSW vector field backs KNN ranking.
func (s *Store) EnsureIndex(ctx context.Context) error {
	args := []string{
		s.indexName(),
		"ON", "HASH",
		"PREFIX", "1", s.keyPrefix + "material:",
		"SCHEMA",
		fieldRegion, "TAG",
		fieldUnit, "TAG",
		fieldVendor, "TAG",
		fieldQualityScore, "NUMERIC",
		fieldUpdatedAt, "NUMERIC", "SORTABLE",
		fieldEmbedding, "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(s.dimensions),
		"DISTANCE_METRIC", "COSINE",
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return fmt.Errorf("ft.create: %w: %w", err, domain.ErrCatalogUnavailable)
	}
	return nil
}

// Upsert stores one material hash. id must be stable per row (the seeder
// derives it from the CSV line).
func (s *Store) Upsert(ctx context.Context, id string, m *domain.Material) error {
	cmd := s.b().Hset().Key(s.materialKey(id)).FieldValue()
	for k, v := range materialToFields(m) {
		cmd = cmd.FieldValue(k, v)
	}
	if err := s.do(ctx, cmd.Build()).Error(); err != nil {
		return fmt.Errorf("hset material %s: %w: %w", id, err, domain.ErrCatalogUnavailable)
	}
	return nil
}

// Count returns the number of indexed materials.
func (s *Store) Count(ctx context.Context) (int, error) {
	cmd := s.b().Arbitrary("FT.SEARCH").Args(s.indexName(), "*", "LIMIT", "0", "0").Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, fmt.Errorf("ft.search count: %w: %w", err, domain.ErrCatalogUnavailable)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
