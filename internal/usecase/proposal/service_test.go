package proposal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donizo/pricing-engine/internal/domain"
)

type mockSearcher struct {
	mu      sync.Mutex
	calls   []domain.QueryFilter
	respond func(f domain.QueryFilter) ([]domain.RankedMatch, error)
}

func (m *mockSearcher) Search(_ context.Context, f domain.QueryFilter) ([]domain.RankedMatch, error) {
	m.mu.Lock()
	m.calls = append(m.calls, f)
	m.mu.Unlock()
	if m.respond == nil {
		return nil, nil
	}
	return m.respond(f)
}

func testConfig() Config {
	return Config{
		Regions:          map[string]float64{"Île-de-France": 1.1, "PACA": 1.05},
		DefaultRegion:    "Île-de-France",
		VATNewBuild:      0.20,
		VATRenovation:    0.10,
		ContractorMargin: 0.15,
		HourlyRate:       45,
		Tasks: []TaskRule{
			{Label: "Tiling work", Keywords: []string{"tile", "carrelage"}, BaseLaborHours: 8},
			{Label: "Adhesive application", Keywords: []string{"glue", "colle"}, BaseLaborHours: 2},
		},
		DefaultTask: TaskRule{Label: "General renovation task", BaseLaborHours: 6},
		Fallback: Fallback{
			Vendor:       "DonizoSim",
			Note:         "Generic material used because no catalog match was found",
			UnitPrice:    20,
			QualityScore: 3,
		},
	}
}

func match(name string, price string, similarity float64, tier domain.Tier) domain.RankedMatch {
	return domain.RankedMatch{
		Material: domain.Material{
			Name:      name,
			UnitPrice: decimal.RequireFromString(price),
			Unit:      "€/m²",
			Vendor:    "Leroy Merlin",
			Source:    "https://example.test/" + name,
		},
		Similarity: similarity,
		Tier:       tier,
	}
}

func TestGenerate_PricesRegionMatches(t *testing.T) {
	searcher := &mockSearcher{respond: func(_ domain.QueryFilter) ([]domain.RankedMatch, error) {
		return []domain.RankedMatch{
			match("tile", "25", 0.91, domain.TierHigh),
			match("grout", "12.50", 0.84, domain.TierMedium),
			match("spacer", "3", 0.70, domain.TierMedium),
		}, nil
	}}
	svc := New(searcher, testConfig(), zap.NewNop())

	p, err := svc.Generate(context.Background(), "Retile the bathroom in Île-de-France", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(p.Tasks))
	}

	task := p.Tasks[0]
	if task.Label != "Tiling work" {
		t.Errorf("label = %q", task.Label)
	}
	if task.FallbackUsed {
		t.Error("fallback should not be used")
	}
	// Only the two best matches feed the estimate.
	if len(task.Materials) != 2 {
		t.Fatalf("expected 2 materials, got %d", len(task.Materials))
	}
	// labor 8h*45 + materials (25+12.50)*1.1, +15% margin, +10% renovation VAT.
	if want := "507.58"; task.FinalPrice.String() != want {
		t.Errorf("final price = %s, want %s", task.FinalPrice, want)
	}
	if task.ConfidenceScore != 0.875 {
		t.Errorf("confidence = %v", task.ConfidenceScore)
	}
	if task.EstimatedDuration != "1 day" {
		t.Errorf("duration = %q", task.EstimatedDuration)
	}
	if !p.Total.Equal(task.FinalPrice) {
		t.Errorf("total %s != single task price %s", p.Total, task.FinalPrice)
	}

	if len(searcher.calls) != 1 {
		t.Fatalf("expected 1 search, got %d", len(searcher.calls))
	}
	if f := searcher.calls[0]; f.Region != "Île-de-France" || f.Limit != 3 {
		t.Errorf("search filter = %+v", f)
	}
}

func TestGenerate_AnyRegionFallback(t *testing.T) {
	searcher := &mockSearcher{respond: func(f domain.QueryFilter) ([]domain.RankedMatch, error) {
		if f.Region != "" {
			return nil, nil
		}
		return []domain.RankedMatch{match("tile", "25", 0.9, domain.TierHigh)}, nil
	}}
	svc := New(searcher, testConfig(), zap.NewNop())

	p, err := svc.Generate(context.Background(), "carrelage salle de bain", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task := p.Tasks[0]
	if task.Label != "Tiling work (fallback)" {
		t.Errorf("label = %q", task.Label)
	}
	if !task.FallbackUsed {
		t.Error("expected fallback flag")
	}
	if len(task.Materials) != 1 {
		t.Fatalf("expected 1 material, got %d", len(task.Materials))
	}

	m := task.Materials[0]
	if m.Material.Vendor != "DonizoSim" {
		t.Errorf("vendor = %q", m.Material.Vendor)
	}
	if !strings.HasSuffix(m.Material.Source, "# fallback-other-region") {
		t.Errorf("source not marked: %q", m.Material.Source)
	}
	if m.Tier != domain.TierLow {
		t.Errorf("tier = %s, want LOW", m.Tier)
	}

	if len(searcher.calls) != 2 {
		t.Fatalf("expected 2 searches, got %d", len(searcher.calls))
	}
	if f := searcher.calls[1]; f.Region != "" || f.Limit != 1 {
		t.Errorf("fallback filter = %+v", f)
	}
}

func TestGenerate_SyntheticFallback(t *testing.T) {
	searcher := &mockSearcher{} // catalog is completely empty
	svc := New(searcher, testConfig(), zap.NewNop())

	p, err := svc.Generate(context.Background(), "repaint the hallway", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task := p.Tasks[0]
	if task.Label != "General renovation task (fallback)" {
		t.Errorf("label = %q", task.Label)
	}
	if !task.FallbackUsed {
		t.Error("expected fallback flag")
	}

	m := task.Materials[0]
	if m.Material.Name != "Generic material (simulated)" {
		t.Errorf("name = %q", m.Material.Name)
	}
	if m.Material.Region != "Île-de-France" {
		t.Errorf("region = %q", m.Material.Region)
	}
	if m.Material.Source != "https://donizo.example/fallback" {
		t.Errorf("source = %q", m.Material.Source)
	}
	if m.Material.QualityScore == nil || *m.Material.QualityScore != 3 {
		t.Errorf("quality = %v", m.Material.QualityScore)
	}
	if m.Similarity != 0.5 || m.Tier != domain.TierLow {
		t.Errorf("similarity/tier = %v/%s", m.Similarity, m.Tier)
	}

	// labor 6h*45 + 20*1.1 material, +15% margin, +10% renovation VAT.
	if want := "369.38"; task.FinalPrice.String() != want {
		t.Errorf("final price = %s, want %s", task.FinalPrice, want)
	}
	if task.ConfidenceScore != 0.5 {
		t.Errorf("confidence = %v", task.ConfidenceScore)
	}
}

func TestGenerate_ErrorsNeverFallBack(t *testing.T) {
	searcher := &mockSearcher{respond: func(_ domain.QueryFilter) ([]domain.RankedMatch, error) {
		return nil, domain.ErrCatalogUnavailable
	}}
	svc := New(searcher, testConfig(), zap.NewNop())

	_, err := svc.Generate(context.Background(), "tile the kitchen", "", "")
	if !errors.Is(err, domain.ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
	// A failed search must not retry without the region filter.
	if len(searcher.calls) != 1 {
		t.Errorf("expected 1 search, got %d", len(searcher.calls))
	}
}

func TestGenerate_EmptyTranscript(t *testing.T) {
	svc := New(&mockSearcher{}, testConfig(), zap.NewNop())

	_, err := svc.Generate(context.Background(), "", "", "")
	if !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestGenerate_NewBuildVAT(t *testing.T) {
	searcher := &mockSearcher{respond: func(_ domain.QueryFilter) ([]domain.RankedMatch, error) {
		return []domain.RankedMatch{match("tile", "10", 0.9, domain.TierHigh)}, nil
	}}
	svc := New(searcher, testConfig(), zap.NewNop())

	p, err := svc.Generate(context.Background(), "Pose de carrelage, nouvelle construction en PACA", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// labor 8h*45 + 10*1.05 material, +15% margin, +20% new-build VAT.
	if want := "511.29"; p.Tasks[0].FinalPrice.String() != want {
		t.Errorf("final price = %s, want %s", p.Tasks[0].FinalPrice, want)
	}
}

func TestGenerate_HintsOverrideDetection(t *testing.T) {
	searcher := &mockSearcher{respond: func(_ domain.QueryFilter) ([]domain.RankedMatch, error) {
		return []domain.RankedMatch{match("tile", "10", 0.9, domain.TierHigh)}, nil
	}}
	svc := New(searcher, testConfig(), zap.NewNop())

	// Transcript says Île-de-France and renovation; hints say otherwise.
	p, err := svc.Generate(context.Background(), "tile work in Île-de-France", "PACA", "new")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f := searcher.calls[0]; f.Region != "PACA" {
		t.Errorf("search region = %q, want PACA (hint)", f.Region)
	}
	if want := "511.29"; p.Tasks[0].FinalPrice.String() != want {
		t.Errorf("final price = %s, want %s (new-build VAT)", p.Tasks[0].FinalPrice, want)
	}
}

func TestGenerate_MultipleTasksSumToTotal(t *testing.T) {
	searcher := &mockSearcher{respond: func(_ domain.QueryFilter) ([]domain.RankedMatch, error) {
		return []domain.RankedMatch{match("tile", "25", 0.9, domain.TierHigh)}, nil
	}}
	svc := New(searcher, testConfig(), zap.NewNop())

	p, err := svc.Generate(context.Background(), "tile the floor and glue the panels", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(p.Tasks))
	}
	// Detection order is preserved regardless of estimation concurrency.
	if p.Tasks[0].Label != "Tiling work" || p.Tasks[1].Label != "Adhesive application" {
		t.Errorf("task order = %q, %q", p.Tasks[0].Label, p.Tasks[1].Label)
	}

	sum := p.Tasks[0].FinalPrice.Add(p.Tasks[1].FinalPrice).Round(2)
	if !p.Total.Equal(sum) {
		t.Errorf("total %s != task sum %s", p.Total, sum)
	}
}

func TestEstimateDuration(t *testing.T) {
	cases := []struct {
		hours float64
		want  string
	}{
		{2, "1 day"},
		{8, "1 day"},
		{9, "2 day"},
		{24, "3 day"},
		{0, "1 day"},
	}
	for _, c := range cases {
		if got := estimateDuration(c.hours); got != c.want {
			t.Errorf("estimateDuration(%v) = %q, want %q", c.hours, got, c.want)
		}
	}
}

func TestResolveBuildType(t *testing.T) {
	cases := []struct {
		transcript string
		hint       string
		want       string
	}{
		{"standard renovation of the kitchen", "", "renovation"},
		{"this is a New Build project", "", "new"},
		{"nouvelle construction à Lyon", "", "new"},
		{"renovation work", "new", "new"},
		{"newly built", "", "renovation"},
	}
	for _, c := range cases {
		if got := resolveBuildType(c.transcript, c.hint); got != c.want {
			t.Errorf("resolveBuildType(%q, %q) = %q, want %q", c.transcript, c.hint, got, c.want)
		}
	}
}
