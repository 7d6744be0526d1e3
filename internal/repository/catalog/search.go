package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/donizo/pricing-engine/internal/domain"
)

// ScoredMaterial is a raw catalog hit before tiering.
type ScoredMaterial struct {
	Material domain.Material
	// Distance is the cosine distance for vector queries; zero for
	// recency queries.
	Distance float64
}

// SearchByVector runs a KNN vector search via FT.SEARCH, pre-filtered by
// the structured fields in the filter. Results come back in ascending
// distance order.
func (s *Store) SearchByVector(
	ctx context.Context, vector []float32, f domain.QueryFilter, k int,
) ([]ScoredMaterial, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	args := knnSearchArgs(s.indexName(), f, k, vectorToBytes(vector))

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("ft.search knn: %w: %w", err, domain.ErrCatalogUnavailable)
	}

	return parseSearchResult(raw)
}

// knnSearchArgs renders the full FT.SEARCH argument list for a KNN query.
// The result window must be widened explicitly: without a LIMIT clause
// RediSearch returns at most 10 rows regardless of k.
func knnSearchArgs(index string, f domain.QueryFilter, k int, blob string) []string {
	filterStr := buildFilter(f)

	knnPart := fmt.Sprintf("[KNN %d @%s $BLOB]", k, fieldEmbedding)
	var queryStr string
	if filterStr != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
	} else {
		queryStr = fmt.Sprintf("*=>%s", knnPart)
	}

	args := []string{index, queryStr}
	args = append(args, "RETURN", strconv.Itoa(len(returnFields)+1))
	args = append(args, returnFields...)
	args = append(args, scoreField)
	args = append(args, "SORTBY", scoreField, "ASC")
	args = append(args, "LIMIT", "0", strconv.Itoa(k))
	args = append(args, "PARAMS", "2", "BLOB", blob, "DIALECT", "2")
	return args
}

// SearchByRecency lists filter matches ordered by most-recently-updated.
// Used by the no-embedding ranking mode.
func (s *Store) SearchByRecency(
	ctx context.Context, f domain.QueryFilter, limit int,
) ([]ScoredMaterial, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	queryStr := buildFilter(f)
	if queryStr == "" {
		queryStr = "*"
	}

	args := []string{s.indexName(), queryStr}
	args = append(args, "RETURN", strconv.Itoa(len(returnFields)))
	args = append(args, returnFields...)
	args = append(args,
		"SORTBY", fieldUpdatedAt, "DESC",
		"LIMIT", "0", strconv.Itoa(limit),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("ft.search recency: %w: %w", err, domain.ErrCatalogUnavailable)
	}

	return parseSearchResult(raw)
}

// --- Result parsing ---

func parseSearchResult(raw []rueidis.RedisMessage) ([]ScoredMaterial, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	out := make([]ScoredMaterial, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		pairs := parseFieldPairs(fields)

		var distance float64
		if scoreStr, ok := pairs[scoreField]; ok {
			if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				distance = d
			}
			delete(pairs, scoreField)
		}

		m, err := fieldsToMaterial(pairs)
		if err != nil {
			return nil, fmt.Errorf("parse material: %w", err)
		}

		out = append(out, ScoredMaterial{Material: m, Distance: distance})
	}

	return out, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter building ---

// buildFilter translates the structured filter fields into an FT.SEARCH
// pre-filter query string. The free-text query is not part of the filter;
// it only drives the vector.
func buildFilter(f domain.QueryFilter) string {
	var parts []string

	if f.Region != "" {
		parts = append(parts, buildTagFilter(fieldRegion, f.Region))
	}
	if f.Unit != "" {
		parts = append(parts, buildTagFilter(fieldUnit, f.Unit))
	}
	if f.Vendor != "" {
		parts = append(parts, buildTagFilter(fieldVendor, f.Vendor))
	}
	if f.MinQuality != nil {
		parts = append(parts, fmt.Sprintf("@%s:[%d +inf]", fieldQualityScore, *f.MinQuality))
	}

	return strings.Join(parts, " ")
}

func buildTagFilter(key, value string) string {
	return fmt.Sprintf("@%s:{%s}", key, tagEscaper.Replace(value))
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)
