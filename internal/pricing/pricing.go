// Package pricing estimates judge spend from token usage.
package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelPricing is USD per 1K tokens.
type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps provider to model to price. A nil table prices everything at
// zero.
type Table struct {
	Providers map[string]map[string]ModelPricing
}

// Default covers the built-in judge models.
func Default() *Table {
	return &Table{Providers: map[string]map[string]ModelPricing{
		"anthropic": {"claude-sonnet-4-5-20250929": {Input: 0.003, Output: 0.015}},
		"openai":    {"gpt-4o": {Input: 0.0025, Output: 0.01}},
		"gemini":    {"gemini-2.0-flash": {Input: 0.0001, Output: 0.0004}},
	}}
}

// Load reads a YAML price file and layers it over Default.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file %s: %w", path, err)
	}
	t := Default()
	for provider, models := range providers {
		if t.Providers[provider] == nil {
			t.Providers[provider] = map[string]ModelPricing{}
		}
		for model, p := range models {
			if p.Input < 0 || p.Output < 0 {
				return nil, fmt.Errorf("pricing file %s: %s/%s has a negative price", path, provider, model)
			}
			t.Providers[provider][model] = p
		}
	}
	return t, nil
}

// Lookup reports the price of a model, if known.
func (t *Table) Lookup(provider, model string) (ModelPricing, bool) {
	if t == nil || t.Providers == nil {
		return ModelPricing{}, false
	}
	p, ok := t.Providers[provider][model]
	return p, ok
}

// Cost prices one call. Unknown models cost zero.
func (t *Table) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	p, ok := t.Lookup(provider, model)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*p.Input + float64(outputTokens)/1000*p.Output
}
