package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the pricing engine configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Proposal  ProposalConfig  `yaml:"proposal"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds catalog store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	OpTimeoutSec     int      `yaml:"op_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Mode          string `yaml:"mode"` // simulate, remote (default: simulate)
	Model         string `yaml:"model"`
	Dimensions    int    `yaml:"dimensions"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	TimeoutSec    int    `yaml:"timeout_sec"`
	MaxRetries    int    `yaml:"max_retries"`
	BackoffCapSec int    `yaml:"backoff_cap_sec"`
	CacheCapacity int    `yaml:"cache_capacity"`
}

// SearchConfig holds ranking and tiering settings.
type SearchConfig struct {
	Mode         string            `yaml:"mode"` // vector, recency (default: vector)
	DefaultLimit int               `yaml:"default_limit"`
	MaxLimit     int               `yaml:"max_limit"`
	MinScore     float64           `yaml:"min_score"`
	Tiers        TierConfig        `yaml:"tiers"`
	UnitSynonyms map[string]string `yaml:"unit_synonyms"`
}

// TierConfig holds confidence tier thresholds.
type TierConfig struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
}

// PricingConfig holds the deterministic pricing formula inputs.
type PricingConfig struct {
	Regions          map[string]float64 `yaml:"regions"` // region -> price multiplier
	DefaultRegion    string             `yaml:"default_region"`
	VATNewBuild      float64            `yaml:"vat_new_build"`
	VATRenovation    float64            `yaml:"vat_renovation"`
	ContractorMargin float64            `yaml:"contractor_margin"`
	HourlyRate       float64            `yaml:"hourly_rate"`
}

// ProposalConfig holds task detection and fallback settings.
type ProposalConfig struct {
	Tasks       []TaskRule     `yaml:"tasks"`
	DefaultTask TaskRule       `yaml:"default_task"`
	Fallback    FallbackConfig `yaml:"fallback"`
}

// TaskRule maps transcript keywords to a work task template.
type TaskRule struct {
	Label          string   `yaml:"label"`
	Keywords       []string `yaml:"keywords"`
	BaseLaborHours float64  `yaml:"base_labor_hours"`
}

// FallbackConfig describes the synthetic material of last resort.
type FallbackConfig struct {
	Vendor       string  `yaml:"vendor"`
	Note         string  `yaml:"note"`
	UnitPrice    float64 `yaml:"unit_price"`
	QualityScore int     `yaml:"quality_score"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "donizo:"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.OpTimeoutSec <= 0 {
		c.Database.OpTimeoutSec = 5
	}
	if c.Embedding.Mode == "" {
		c.Embedding.Mode = "simulate"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.MaxRetries <= 0 {
		c.Embedding.MaxRetries = 8
	}
	if c.Embedding.BackoffCapSec <= 0 {
		c.Embedding.BackoffCapSec = 30
	}
	if c.Embedding.CacheCapacity <= 0 {
		c.Embedding.CacheCapacity = 4096
	}
	if c.Search.Mode == "" {
		c.Search.Mode = "vector"
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 5
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 50
	}
	if c.Search.MinScore <= 0 {
		c.Search.MinScore = 0.6
	}
	if c.Search.Tiers.High <= 0 {
		c.Search.Tiers.High = 0.85
	}
	if c.Search.Tiers.Medium <= 0 {
		c.Search.Tiers.Medium = 0.6
	}
	if c.Pricing.DefaultRegion == "" {
		c.Pricing.DefaultRegion = "Île-de-France"
	}
	if c.Pricing.VATNewBuild <= 0 {
		c.Pricing.VATNewBuild = 0.20
	}
	if c.Pricing.VATRenovation <= 0 {
		c.Pricing.VATRenovation = 0.10
	}
	if c.Pricing.ContractorMargin <= 0 {
		c.Pricing.ContractorMargin = 0.15
	}
	if c.Pricing.HourlyRate <= 0 {
		c.Pricing.HourlyRate = 45
	}
	if c.Proposal.DefaultTask.Label == "" {
		c.Proposal.DefaultTask = TaskRule{Label: "General renovation task", BaseLaborHours: 6}
	}
	if c.Proposal.Fallback.Vendor == "" {
		c.Proposal.Fallback.Vendor = "DonizoSim"
	}
	if c.Proposal.Fallback.Note == "" {
		c.Proposal.Fallback.Note = "Generic material used because no catalog match was found"
	}
	if c.Proposal.Fallback.UnitPrice <= 0 {
		c.Proposal.Fallback.UnitPrice = 20.0
	}
	if c.Proposal.Fallback.QualityScore <= 0 {
		c.Proposal.Fallback.QualityScore = 3
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Embedding.Mode {
	case "simulate", "remote":
	default:
		return fmt.Errorf("embedding.mode must be \"simulate\" or \"remote\", got %q", c.Embedding.Mode)
	}
	if c.Embedding.Mode == "remote" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required in remote mode")
	}
	switch c.Search.Mode {
	case "vector", "recency":
	default:
		return fmt.Errorf("search.mode must be \"vector\" or \"recency\", got %q", c.Search.Mode)
	}
	if c.Search.Tiers.Medium > c.Search.Tiers.High {
		return fmt.Errorf("search.tiers.medium (%v) must not exceed search.tiers.high (%v)",
			c.Search.Tiers.Medium, c.Search.Tiers.High)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) must not exceed search.max_limit (%d)",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if _, ok := c.Pricing.Regions[c.Pricing.DefaultRegion]; len(c.Pricing.Regions) > 0 && !ok {
		return fmt.Errorf("pricing.default_region %q is not in pricing.regions", c.Pricing.DefaultRegion)
	}
	for i, task := range c.Proposal.Tasks {
		if task.Label == "" {
			return fmt.Errorf("proposal.tasks[%d].label is required", i)
		}
		if len(task.Keywords) == 0 {
			return fmt.Errorf("proposal.tasks[%d].keywords is required", i)
		}
		if task.BaseLaborHours <= 0 {
			return fmt.Errorf("proposal.tasks[%d].base_labor_hours must be positive", i)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
