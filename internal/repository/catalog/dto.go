package catalog

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donizo/pricing-engine/internal/domain"
)

// Hash field names for material documents.
const (
	fieldName         = "material_name"
	fieldDescription  = "description"
	fieldUnitPrice    = "unit_price"
	fieldUnit         = "unit"
	fieldRegion       = "region"
	fieldVendor       = "vendor"
	fieldVATRate      = "vat_rate"
	fieldQualityScore = "quality_score"
	fieldUpdatedAt    = "updated_at"
	fieldSource       = "source"
	fieldEmbedding    = "embedding"
)

// scoreField is the implicit FT.SEARCH KNN distance field for the
// "embedding" vector attribute.
const scoreField = "__embedding_score"

var returnFields = []string{
	fieldName, fieldDescription, fieldUnitPrice, fieldUnit, fieldRegion,
	fieldVendor, fieldVATRate, fieldQualityScore, fieldUpdatedAt, fieldSource,
}

// materialToFields flattens a material into HSET field/value pairs.
// updated_at is stored as unix seconds so the index can sort on it.
func materialToFields(m *domain.Material) map[string]string {
	fields := map[string]string{
		fieldName:        m.Name,
		fieldDescription: m.Description,
		fieldUnitPrice:   m.UnitPrice.String(),
		fieldUnit:        m.Unit,
		fieldRegion:      m.Region,
		fieldUpdatedAt:   strconv.FormatInt(m.UpdatedAt.Unix(), 10),
		fieldSource:      m.Source,
		fieldEmbedding:   vectorToBytes(m.Embedding),
	}
	if m.Vendor != "" {
		fields[fieldVendor] = m.Vendor
	}
	if m.VATRate != nil {
		fields[fieldVATRate] = m.VATRate.String()
	}
	if m.QualityScore != nil {
		fields[fieldQualityScore] = strconv.Itoa(*m.QualityScore)
	}
	return fields
}

// fieldsToMaterial parses an FT.SEARCH hash reply into a material.
func fieldsToMaterial(fields map[string]string) (domain.Material, error) {
	price, err := decimal.NewFromString(fields[fieldUnitPrice])
	if err != nil {
		return domain.Material{}, fmt.Errorf("parse unit_price %q: %w", fields[fieldUnitPrice], err)
	}

	m := domain.Material{
		Name:        fields[fieldName],
		Description: fields[fieldDescription],
		UnitPrice:   price,
		Unit:        fields[fieldUnit],
		Region:      fields[fieldRegion],
		Vendor:      fields[fieldVendor],
		Source:      fields[fieldSource],
	}

	if v, ok := fields[fieldVATRate]; ok && v != "" {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return domain.Material{}, fmt.Errorf("parse vat_rate %q: %w", v, err)
		}
		m.VATRate = &rate
	}
	if v, ok := fields[fieldQualityScore]; ok && v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return domain.Material{}, fmt.Errorf("parse quality_score %q: %w", v, err)
		}
		m.QualityScore = &q
	}
	if v, ok := fields[fieldUpdatedAt]; ok && v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.Material{}, fmt.Errorf("parse updated_at %q: %w", v, err)
		}
		m.UpdatedAt = time.Unix(ts, 0).UTC()
	}

	return m, nil
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
