package chi

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/donizo/pricing-engine/internal/domain"
)

// materialOut is the wire shape of one ranked catalog match. Prices are
// emitted as JSON numbers without float re-encoding.
type materialOut struct {
	MaterialName    string       `json:"material_name"`
	Description     string       `json:"description"`
	UnitPrice       json.Number  `json:"unit_price"`
	Unit            string       `json:"unit"`
	Region          string       `json:"region"`
	Vendor          *string      `json:"vendor"`
	VATRate         *json.Number `json:"vat_rate"`
	QualityScore    *int         `json:"quality_score"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Source          string       `json:"source"`
	SimilarityScore float64      `json:"similarity_score"`
	ConfidenceTier  string       `json:"confidence_tier"`
}

type taskOut struct {
	Label                string        `json:"label"`
	Materials            []materialOut `json:"materials"`
	EstimatedDuration    string        `json:"estimated_duration"`
	MarginProtectedPrice json.Number   `json:"margin_protected_price"`
	ConfidenceScore      float64       `json:"confidence_score"`
	FallbackUsed         bool          `json:"fallback_used"`
}

type proposalOut struct {
	Tasks         []taskOut   `json:"tasks"`
	TotalEstimate json.Number `json:"total_estimate"`
}

type proposalIn struct {
	Transcript string `json:"transcript"`
	Region     string `json:"region"`
	BuildType  string `json:"build_type"`
}

type feedbackIn struct {
	TaskID          string `json:"task_id"`
	QuoteID         string `json:"quote_id"`
	UserType        string `json:"user_type"`
	Verdict         string `json:"verdict"`
	Comment         string `json:"comment"`
	TargetComponent string `json:"target_component"`
}

type feedbackOut struct {
	Status         string   `json:"status"`
	FeedbackID     string   `json:"feedback_id"`
	AdaptationPlan []string `json:"adaptation_plan"`
}

func materialToOut(m domain.RankedMatch) materialOut {
	out := materialOut{
		MaterialName:    m.Material.Name,
		Description:     m.Material.Description,
		UnitPrice:       json.Number(m.Material.UnitPrice.String()),
		Unit:            m.Material.Unit,
		Region:          m.Material.Region,
		QualityScore:    m.Material.QualityScore,
		UpdatedAt:       m.Material.UpdatedAt,
		Source:          m.Material.Source,
		SimilarityScore: m.Similarity,
		ConfidenceTier:  string(m.Tier),
	}
	if m.Material.Vendor != "" {
		v := m.Material.Vendor
		out.Vendor = &v
	}
	if m.Material.VATRate != nil {
		r := json.Number(m.Material.VATRate.String())
		out.VATRate = &r
	}
	return out
}

func materialsToOut(matches []domain.RankedMatch) []materialOut {
	out := make([]materialOut, len(matches))
	for i, m := range matches {
		out[i] = materialToOut(m)
	}
	return out
}

func proposalToOut(p domain.Proposal) proposalOut {
	tasks := make([]taskOut, len(p.Tasks))
	for i, t := range p.Tasks {
		tasks[i] = taskOut{
			Label:                t.Label,
			Materials:            materialsToOut(t.Materials),
			EstimatedDuration:    t.EstimatedDuration,
			MarginProtectedPrice: json.Number(t.FinalPrice.String()),
			ConfidenceScore:      t.ConfidenceScore,
			FallbackUsed:         t.FallbackUsed,
		}
	}
	return proposalOut{
		Tasks:         tasks,
		TotalEstimate: json.Number(p.Total.String()),
	}
}

// csvFieldOrder is the fixed column order of the CSV export.
var csvFieldOrder = []string{
	"material_name", "description", "unit_price", "unit", "region",
	"vendor", "vat_rate", "quality_score", "updated_at", "source",
	"similarity_score", "confidence_tier",
}

// writeMaterialsCSV renders ranked matches as CSV with a header row.
// Absent optional fields become empty cells.
func writeMaterialsCSV(w io.Writer, matches []domain.RankedMatch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvFieldOrder); err != nil {
		return err
	}

	for _, m := range matches {
		row := []string{
			m.Material.Name,
			m.Material.Description,
			m.Material.UnitPrice.String(),
			m.Material.Unit,
			m.Material.Region,
			m.Material.Vendor,
			"",
			"",
			m.Material.UpdatedAt.Format(time.RFC3339),
			m.Material.Source,
			strconv.FormatFloat(m.Similarity, 'f', -1, 64),
			string(m.Tier),
		}
		if m.Material.VATRate != nil {
			row[6] = m.Material.VATRate.String()
		}
		if m.Material.QualityScore != nil {
			row[7] = strconv.Itoa(*m.Material.QualityScore)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
