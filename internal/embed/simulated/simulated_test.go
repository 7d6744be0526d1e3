package simulated

import (
	"context"
	"math"
	"testing"
)

func TestEmbed_Deterministic(t *testing.T) {
	e := New(1536)

	a, err := e.Embed(context.Background(), "waterproof tile adhesive")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := e.Embed(context.Background(), "waterproof tile adhesive")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(a) != 1536 {
		t.Fatalf("expected 1536 dimensions, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at index %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEmbed_UnitNorm(t *testing.T) {
	e := New(512)

	vec, err := e.Embed(context.Background(), "outdoor cement mix")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)

	if math.Abs(norm-1.0) > 1e-3 {
		t.Errorf("expected unit L2 norm, got %v", norm)
	}
}

func TestEmbed_DistinctTextsDiffer(t *testing.T) {
	e := New(256)

	a, _ := e.Embed(context.Background(), "ceramic tile 60x60")
	b, _ := e.Embed(context.Background(), "anti-mold grout")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}

	// Hash-seeded vectors should be near-orthogonal with high probability.
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if math.Abs(dot) > 0.3 {
		t.Errorf("expected near-orthogonal vectors, got dot product %v", dot)
	}
}
