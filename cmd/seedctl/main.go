// seedctl loads a material catalog CSV into the store, vectorizing each
// row on the way in.
//
// Usage:
//
//	seedctl -file data/materials.csv [-concurrency 16]
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/donizo/pricing-engine/internal/config"
	"github.com/donizo/pricing-engine/internal/domain"
	"github.com/donizo/pricing-engine/internal/embed/remote"
	"github.com/donizo/pricing-engine/internal/embed/simulated"
	logpkg "github.com/donizo/pricing-engine/internal/logger"
	"github.com/donizo/pricing-engine/internal/repository/catalog"
)

func main() {
	file := flag.String("file", "data/materials.csv", "catalog CSV to load")
	concurrency := flag.Int("concurrency", 16, "rows vectorized in parallel")
	flag.Parse()

	if err := run(*file, *concurrency); err != nil {
		fmt.Fprintln(os.Stderr, "seedctl:", err)
		os.Exit(1)
	}
}

func run(file string, concurrency int) error {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := catalog.NewStore(catalog.Config{
		Addrs:      cfg.Database.Addrs,
		Password:   cfg.Database.Password,
		KeyPrefix:  cfg.Database.KeyPrefix,
		Dimensions: cfg.Embedding.Dimensions,
		OpTimeout:  time.Duration(cfg.Database.OpTimeoutSec) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create catalog store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		return err
	}
	if err := store.EnsureIndex(ctx); err != nil {
		return err
	}

	var embedder domain.Embedder
	switch cfg.Embedding.Mode {
	case "remote":
		embedder = remote.NewEmbedder(&remote.Config{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
			MaxRetries: cfg.Embedding.MaxRetries,
			BackoffCap: time.Duration(cfg.Embedding.BackoffCapSec) * time.Second,
			Logger:     logger,
		})
	default:
		embedder = simulated.New(cfg.Embedding.Dimensions)
	}

	logger.Info("Seeding catalog",
		zap.String("file", file),
		zap.String("embedding_mode", cfg.Embedding.Mode),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	rows, err := readMaterials(file)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, m := range rows {
		g.Go(func() error {
			vec, err := embedder.Embed(gctx, m.Name+" || "+m.Description)
			if err != nil {
				return fmt.Errorf("embed row %d: %w", i+1, err)
			}
			m.Embedding = vec
			if err := store.Upsert(gctx, fmt.Sprintf("%06d", i+1), &m); err != nil {
				return fmt.Errorf("upsert row %d: %w", i+1, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	logger.Info("Seed complete", zap.Int("rows", len(rows)), zap.Int("indexed", count))
	return nil
}

// readMaterials parses a catalog CSV with a header row. Optional columns
// (vendor, vat_rate, quality_score) may be empty.
func readMaterials(file string) ([]domain.Material, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{
		"material_name", "description", "unit_price", "unit", "region", "updated_at", "source",
	} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("csv is missing column %q", required)
		}
	}

	var out []domain.Material
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		m, err := materialFromRecord(rec, col)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func materialFromRecord(rec []string, col map[string]int) (domain.Material, error) {
	get := func(name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	price, err := decimal.NewFromString(get("unit_price"))
	if err != nil {
		return domain.Material{}, fmt.Errorf("parse unit_price %q: %w", get("unit_price"), err)
	}
	updatedAt, err := time.Parse(time.RFC3339, get("updated_at"))
	if err != nil {
		return domain.Material{}, fmt.Errorf("parse updated_at %q: %w", get("updated_at"), err)
	}

	m := domain.Material{
		Name:        get("material_name"),
		Description: get("description"),
		UnitPrice:   price,
		Unit:        get("unit"),
		Region:      get("region"),
		Vendor:      get("vendor"),
		UpdatedAt:   updatedAt,
		Source:      get("source"),
	}

	if v := get("vat_rate"); v != "" {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return domain.Material{}, fmt.Errorf("parse vat_rate %q: %w", v, err)
		}
		m.VATRate = &rate
	}
	if v := get("quality_score"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return domain.Material{}, fmt.Errorf("parse quality_score %q: %w", v, err)
		}
		m.QualityScore = &q
	}

	return m, nil
}
