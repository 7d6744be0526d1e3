package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Material is a priced catalog entry. The engine treats it as immutable;
// only the catalog store creates or mutates rows.
type Material struct {
	Name         string
	Description  string
	UnitPrice    decimal.Decimal
	Unit         string
	Region       string
	Vendor       string
	VATRate      *decimal.Decimal
	QualityScore *int
	UpdatedAt    time.Time
	Source       string
	Embedding    []float32
}

// RankedMatch is a catalog entry scored against a query. Derived per
// search call, never persisted.
type RankedMatch struct {
	Material
	Similarity float64
	Tier       Tier
}
