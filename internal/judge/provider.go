package judge

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGateway   = "gateway"
	ProviderGemini    = "gemini"
)

var Providers = []string{ProviderAnthropic, ProviderOpenAI, ProviderGateway, ProviderGemini}

// DefaultMaxTokens bounds the judge's reply; a verdict is a short object.
const DefaultMaxTokens = 300

var defaultModels = map[string]string{
	ProviderAnthropic: "claude-sonnet-4-5-20250929",
	ProviderOpenAI:    "gpt-4o",
	ProviderGateway:   "gpt-4o",
	ProviderGemini:    "gemini-2.0-flash",
}

var apiKeyEnv = map[string]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGemini:    "GEMINI_API_KEY",
}

func DefaultModel(provider string) string { return defaultModels[provider] }

// APIKeyEnv names the environment variable holding the provider's key. The
// gateway holds its own upstream keys and needs none.
func APIKeyEnv(provider string) string { return apiKeyEnv[provider] }

type Config struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

// ResolveAPIKey fills APIKey from the environment when unset and reports a
// missing key for providers that need one.
func (c *Config) ResolveAPIKey() error {
	if c.APIKey != "" {
		return nil
	}
	env := APIKeyEnv(c.Provider)
	if env == "" {
		return nil
	}
	c.APIKey = os.Getenv(env)
	if c.APIKey == "" && c.Provider == ProviderGemini {
		c.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if c.APIKey == "" {
		return fmt.Errorf("%s provider: %s not set", c.Provider, env)
	}
	return nil
}

// New builds the judge for cfg.Provider.
func New(ctx context.Context, cfg Config) (Judge, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	client := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case ProviderAnthropic:
		if err := cfg.ResolveAPIKey(); err != nil {
			return nil, err
		}
		return newAnthropic(cfg, client), nil
	case ProviderOpenAI:
		if err := cfg.ResolveAPIKey(); err != nil {
			return nil, err
		}
		return newChatCompletions(cfg, client, true), nil
	case ProviderGateway:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("gateway provider: base_url is required")
		}
		return newChatCompletions(cfg, client, false), nil
	case ProviderGemini:
		if err := cfg.ResolveAPIKey(); err != nil {
			return nil, err
		}
		return newGemini(ctx, cfg, client)
	}
	return nil, fmt.Errorf("unknown judge provider %q (want one of %v)", cfg.Provider, Providers)
}
