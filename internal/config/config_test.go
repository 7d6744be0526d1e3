package config

import "testing"

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.Embedding.Mode != "simulate" {
		t.Errorf("embedding mode default = %q, want simulate", cfg.Embedding.Mode)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("dimensions default = %d, want 1536", cfg.Embedding.Dimensions)
	}
	if cfg.Search.MaxLimit != 50 {
		t.Errorf("max_limit default = %d, want 50", cfg.Search.MaxLimit)
	}
	if cfg.Search.Tiers.High != 0.85 || cfg.Search.Tiers.Medium != 0.6 {
		t.Errorf("tier defaults = %+v", cfg.Search.Tiers)
	}
	if cfg.Proposal.DefaultTask.Label == "" {
		t.Error("default task label must not be empty")
	}
	if cfg.Database.KeyPrefix != "donizo:" {
		t.Errorf("key prefix default = %q", cfg.Database.KeyPrefix)
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RemoteModeNeedsBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Mode = "remote"
	cfg.Embedding.BaseURL = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for remote mode without base_url")
	}
}

func TestValidate_UnknownSearchMode(t *testing.T) {
	cfg := validConfig()
	cfg.Search.Mode = "hybrid"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown search mode")
	}
	expected := `search.mode must be "vector" or "recency", got "hybrid"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_TierOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.Search.Tiers = TierConfig{High: 0.5, Medium: 0.8}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for medium threshold above high")
	}
}

func TestValidate_DefaultRegionMustBeKnown(t *testing.T) {
	cfg := validConfig()
	cfg.Pricing.Regions = map[string]float64{"PACA": 1.0}
	cfg.Pricing.DefaultRegion = "Atlantis"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for default region missing from regions")
	}
}

func TestValidate_TaskRules(t *testing.T) {
	cfg := validConfig()
	cfg.Proposal.Tasks = []TaskRule{{Label: "Tiling", Keywords: nil, BaseLaborHours: 8}}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for task rule without keywords")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PRICING_TEST_KEY", "secret")

	out := string(expandEnvVars([]byte("api_key: ${PRICING_TEST_KEY}")))
	if out != "api_key: secret" {
		t.Errorf("expansion = %q", out)
	}

	out = string(expandEnvVars([]byte("addr: ${PRICING_TEST_MISSING:-localhost:6379}")))
	if out != "addr: localhost:6379" {
		t.Errorf("default expansion = %q", out)
	}
}
