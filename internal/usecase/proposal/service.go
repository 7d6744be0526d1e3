// Package proposal turns a voice transcript into a priced work proposal.
package proposal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/donizo/pricing-engine/internal/domain"
	"github.com/donizo/pricing-engine/internal/metrics"
)

// TaskRule maps transcript keywords to a work task template.
type TaskRule struct {
	Label          string
	Keywords       []string
	BaseLaborHours float64
}

// Fallback describes the synthetic material of last resort.
type Fallback struct {
	Vendor       string
	Note         string
	UnitPrice    float64
	QualityScore int
}

// Config holds task detection rules and the deterministic pricing inputs.
type Config struct {
	Regions          map[string]float64 // region -> price multiplier
	DefaultRegion    string
	VATNewBuild      float64
	VATRenovation    float64
	ContractorMargin float64
	HourlyRate       float64
	Tasks            []TaskRule
	DefaultTask      TaskRule
	Fallback         Fallback
}

const (
	fallbackSource       = "https://donizo.example/fallback"
	fallbackSourceSuffix = "  # fallback-other-region"
	fallbackSimilarity   = 0.5
)

// Service estimates proposals by detecting work tasks in a transcript and
// pricing each one from catalog materials.
type Service struct {
	search Searcher
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a proposal service.
func New(search Searcher, cfg Config, logger *zap.Logger) *Service {
	return &Service{search: search, cfg: cfg, logger: logger, now: time.Now}
}

// Generate builds a complete priced proposal from a transcript. Tasks are
// estimated concurrently but returned in detection order. Infrastructure
// errors abort the whole proposal; only empty search results trigger the
// material fallback cascade.
func (s *Service) Generate(ctx context.Context, transcript, regionHint, buildTypeHint string) (domain.Proposal, error) {
	if transcript == "" {
		return domain.Proposal{}, fmt.Errorf("transcript is required: %w", domain.ErrInvalidFilter)
	}

	region := s.resolveRegion(transcript, regionHint)
	buildType := resolveBuildType(transcript, buildTypeHint)
	rules := s.detectTasks(transcript)

	tasks := make([]domain.WorkTask, len(rules))
	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range rules {
		g.Go(func() error {
			task, err := s.estimateTask(gctx, transcript, region, buildType, rule)
			if err != nil {
				return err
			}
			tasks[i] = task
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Proposal{}, err
	}

	total := decimal.Zero
	for _, t := range tasks {
		total = total.Add(t.FinalPrice)
	}

	return domain.Proposal{Tasks: tasks, Total: total.Round(2)}, nil
}

// estimateTask selects materials for one task and prices it. Material
// selection degrades in three steps: in-region search, any-region search
// relabeled as a fallback, then a synthetic catalog-independent material.
func (s *Service) estimateTask(ctx context.Context, transcript, region, buildType string, rule TaskRule) (domain.WorkTask, error) {
	matches, err := s.search.Search(ctx, domain.QueryFilter{Query: transcript, Region: region, Limit: 3})
	if err != nil {
		return domain.WorkTask{}, fmt.Errorf("estimate %q: %w", rule.Label, err)
	}

	source := "region"
	fallbackUsed := false
	if len(matches) == 0 {
		matches, err = s.anyRegionFallback(ctx, transcript)
		if err != nil {
			return domain.WorkTask{}, fmt.Errorf("estimate %q: %w", rule.Label, err)
		}
		source = "any_region"
		if len(matches) == 0 {
			matches = []domain.RankedMatch{s.syntheticMaterial(region)}
			source = "synthetic"
		}
		fallbackUsed = true
		s.logger.Warn("no in-region materials, falling back",
			zap.String("task", rule.Label),
			zap.String("region", region),
			zap.String("source", source))
	}
	metrics.ProposalTasksTotal.WithLabelValues(source).Inc()

	top := matches
	if len(top) > 2 {
		top = top[:2]
	}

	label := rule.Label
	if fallbackUsed {
		label += " (fallback)"
	}

	return domain.WorkTask{
		Label:             label,
		BaseLaborHours:    rule.BaseLaborHours,
		Materials:         top,
		EstimatedDuration: estimateDuration(rule.BaseLaborHours),
		FinalPrice:        s.price(top, region, buildType, rule.BaseLaborHours),
		ConfidenceScore:   meanSimilarity(top),
		FallbackUsed:      fallbackUsed,
	}, nil
}

// anyRegionFallback retries the search without a region filter. The single
// best hit is relabeled so the response makes the substitution visible.
func (s *Service) anyRegionFallback(ctx context.Context, transcript string) ([]domain.RankedMatch, error) {
	matches, err := s.search.Search(ctx, domain.QueryFilter{Query: transcript, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	m := matches[0]
	m.Material.Vendor = s.cfg.Fallback.Vendor
	m.Material.Source += fallbackSourceSuffix
	m.Tier = domain.TierLow
	return []domain.RankedMatch{m}, nil
}

// syntheticMaterial is the estimate of last resort when the catalog has
// nothing at all, priced at the configured generic unit price.
func (s *Service) syntheticMaterial(region string) domain.RankedMatch {
	quality := s.cfg.Fallback.QualityScore
	return domain.RankedMatch{
		Material: domain.Material{
			Name:         "Generic material (simulated)",
			Description:  s.cfg.Fallback.Note,
			UnitPrice:    decimal.NewFromFloat(s.cfg.Fallback.UnitPrice),
			Unit:         "€/unit",
			Region:       region,
			Vendor:       s.cfg.Fallback.Vendor,
			QualityScore: &quality,
			UpdatedAt:    s.now().UTC(),
			Source:       fallbackSource,
		},
		Similarity: fallbackSimilarity,
		Tier:       domain.TierLow,
	}
}

// price applies the full formula: labor plus region-adjusted materials,
// then contractor margin, then VAT by build type, rounded to cents.
func (s *Service) price(materials []domain.RankedMatch, region, buildType string, laborHours float64) decimal.Decimal {
	laborCost := decimal.NewFromFloat(laborHours).Mul(decimal.NewFromFloat(s.cfg.HourlyRate))

	multiplier := decimal.NewFromFloat(s.regionMultiplier(region))
	materialCost := decimal.Zero
	for _, m := range materials {
		materialCost = materialCost.Add(m.Material.UnitPrice.Mul(multiplier))
	}

	subtotal := laborCost.Add(materialCost)
	margin := subtotal.Mul(decimal.NewFromFloat(s.cfg.ContractorMargin))
	vat := subtotal.Add(margin).Mul(decimal.NewFromFloat(s.vatRate(buildType)))

	return subtotal.Add(margin).Add(vat).Round(2)
}

// regionMultiplier returns the configured price multiplier, or 1.0 for
// regions outside the table.
func (s *Service) regionMultiplier(region string) float64 {
	if m, ok := s.cfg.Regions[region]; ok {
		return m
	}
	return 1.0
}

func (s *Service) vatRate(buildType string) float64 {
	if buildType == "new" {
		return s.cfg.VATNewBuild
	}
	return s.cfg.VATRenovation
}

// estimateDuration converts labor hours to whole 8-hour days, minimum one.
func estimateDuration(laborHours float64) string {
	days := int(math.Ceil(laborHours / 8))
	if days < 1 {
		days = 1
	}
	return fmt.Sprintf("%d day", days)
}

// meanSimilarity averages the selected materials' similarities, rounded to
// four decimals.
func meanSimilarity(materials []domain.RankedMatch) float64 {
	if len(materials) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range materials {
		sum += m.Similarity
	}
	return math.Round(sum/float64(len(materials))*10000) / 10000
}
