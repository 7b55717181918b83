// Package config loads the triage YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/triage/internal/judge"
	"github.com/signalnine/triage/internal/taxonomy"
	"github.com/signalnine/triage/internal/trajectory"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TrajectoriesDir string            `yaml:"trajectories_dir"`
	ResultsDir      string            `yaml:"results_dir"`
	ModelSizes      []string          `yaml:"model_sizes"`
	Parallel        int               `yaml:"parallel"`
	Judge           Judge             `yaml:"judge"`
	Sampling        Sampling          `yaml:"sampling"`
	Policies        map[string]string `yaml:"policies"`
	TaxonomyFile    string            `yaml:"taxonomy_file"`
	Secrets         Secrets           `yaml:"secrets"`
	Outputs         Outputs           `yaml:"outputs"`
}

type Judge struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	Delay       time.Duration `yaml:"delay"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	PricingFile string        `yaml:"pricing_file"`
	Gateway     Gateway       `yaml:"gateway"`
}

// Gateway controls launching a local proxy for the gateway provider.
type Gateway struct {
	Launch bool   `yaml:"launch"`
	Binary string `yaml:"binary"`
	Config string `yaml:"config"`
	LogDir string `yaml:"log_dir"`
}

type Sampling struct {
	Size int   `yaml:"size"`
	Seed int64 `yaml:"seed"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

// Outputs names optional artifacts written next to the results.
type Outputs struct {
	Ledger      bool   `yaml:"ledger"`
	MetricsFile string `yaml:"metrics_file"`
}

// DefaultSeed is the sampling seed when none is configured. Zero is a valid
// seed, so the default is filled in before decoding rather than on validation.
const DefaultSeed int64 = 42

// Default is the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Sampling: Sampling{Seed: DefaultSeed}}
	if err := validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Config{Sampling: Sampling{Seed: DefaultSeed}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks a configuration after flag overrides and fills defaults.
func (c *Config) Validate() error { return validate(c) }

func validate(cfg *Config) error {
	if cfg.TrajectoriesDir == "" {
		cfg.TrajectoriesDir = filepath.Join("phase1", "JSON_trajectories")
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = "results"
	}
	if len(cfg.ModelSizes) == 0 {
		cfg.ModelSizes = []string{"14b"}
	}
	for i, s := range cfg.ModelSizes {
		cfg.ModelSizes[i] = trajectory.NormalizeModelSize(s)
	}
	if cfg.Parallel == 0 {
		cfg.Parallel = 1
	}
	if cfg.Parallel < 0 {
		return fmt.Errorf("parallel must be positive")
	}

	j := &cfg.Judge
	if j.Provider == "" {
		j.Provider = judge.ProviderAnthropic
	}
	if judge.DefaultModel(j.Provider) == "" {
		return fmt.Errorf("judge: unknown provider %q (want one of %v)", j.Provider, judge.Providers)
	}
	if j.Model == "" {
		j.Model = judge.DefaultModel(j.Provider)
	}
	if j.MaxTokens == 0 {
		j.MaxTokens = judge.DefaultMaxTokens
	}
	if j.Timeout == 0 {
		j.Timeout = 2 * time.Minute
	}
	if j.Delay == 0 {
		j.Delay = 500 * time.Millisecond
	}
	if j.Delay < 0 {
		return fmt.Errorf("judge: delay must not be negative")
	}
	if j.MaxAttempts == 0 {
		j.MaxAttempts = 3
	}
	if j.MaxAttempts < 1 {
		return fmt.Errorf("judge: max_attempts must be at least 1")
	}
	if j.BackoffBase == 0 {
		j.BackoffBase = 2 * time.Second
	}
	if j.BackoffMax == 0 {
		j.BackoffMax = 30 * time.Second
	}
	if j.BackoffMax < j.BackoffBase {
		return fmt.Errorf("judge: backoff_max %s is below backoff_base %s", j.BackoffMax, j.BackoffBase)
	}
	if j.Provider == judge.ProviderGateway && j.BaseURL == "" && !j.Gateway.Launch {
		return fmt.Errorf("judge: gateway provider needs base_url or gateway.launch")
	}

	if cfg.Sampling.Size == 0 {
		cfg.Sampling.Size = 50
	}
	if cfg.Sampling.Size < 0 {
		return fmt.Errorf("sampling: size must be positive")
	}

	for domain := range cfg.Policies {
		if _, err := trajectory.ParseDomain(domain); err != nil {
			return fmt.Errorf("policies: %w", err)
		}
	}
	return nil
}

// LoadPolicies reads the configured per-domain policy files.
func (c *Config) LoadPolicies() (map[trajectory.Domain]string, error) {
	out := map[trajectory.Domain]string{}
	for name, path := range c.Policies {
		d, err := trajectory.ParseDomain(name)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s policy: %w", d, err)
		}
		out[d] = string(data)
	}
	return out, nil
}

// Taxonomy returns the configured category set, or the built-in one.
func (c *Config) Taxonomy() (*taxonomy.Registry, error) {
	if c.TaxonomyFile == "" {
		return taxonomy.Default(), nil
	}
	return taxonomy.LoadFile(c.TaxonomyFile)
}

// JudgeConfig is the provider configuration for judge.New.
func (c *Config) JudgeConfig() judge.Config {
	return judge.Config{
		Provider:  c.Judge.Provider,
		Model:     c.Judge.Model,
		BaseURL:   c.Judge.BaseURL,
		MaxTokens: c.Judge.MaxTokens,
		Timeout:   c.Judge.Timeout,
	}
}
