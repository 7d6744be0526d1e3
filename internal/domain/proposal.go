package domain

import "github.com/shopspring/decimal"

// WorkTask is one detected unit of work with its selected materials and
// fully loaded price. Created by task detection, populated by the
// estimator, discarded after the response.
type WorkTask struct {
	Label             string
	BaseLaborHours    float64
	Materials         []RankedMatch
	EstimatedDuration string
	FinalPrice        decimal.Decimal
	ConfidenceScore   float64
	FallbackUsed      bool
}

// Proposal is an ordered set of work tasks and their rounded total.
// Ephemeral, one per request.
type Proposal struct {
	Tasks []WorkTask
	Total decimal.Decimal
}
