package domain

// Tier is the coarse confidence bucket derived from a similarity score.
type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
)

// Thresholds holds the configured similarity cutoffs for tier assignment.
type Thresholds struct {
	High   float64
	Medium float64
}

// TierFor buckets a similarity score. Assignment is monotonic: a higher
// score never yields a lower tier.
func (t Thresholds) TierFor(similarity float64) Tier {
	switch {
	case similarity >= t.High:
		return TierHigh
	case similarity >= t.Medium:
		return TierMedium
	default:
		return TierLow
	}
}
