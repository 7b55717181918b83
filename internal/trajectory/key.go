package trajectory

import (
	"fmt"
	"regexp"
	"strings"
)

type Strategy string

const (
	StrategyReAct           Strategy = "ReAct"
	StrategyACT             Strategy = "ACT"
	StrategyFunctionCalling Strategy = "FC"
)

var Strategies = []Strategy{StrategyACT, StrategyReAct, StrategyFunctionCalling}

type Domain string

const (
	DomainAirline Domain = "airline"
	DomainRetail  Domain = "retail"
)

var Domains = []Domain{DomainAirline, DomainRetail}

// Key identifies one (strategy, domain, model size) configuration.
type Key struct {
	Strategy  Strategy `json:"strategy"`
	Domain    Domain   `json:"domain"`
	ModelSize string   `json:"model_size"`
}

// Name is the canonical configuration name, e.g. "14b_ReAct_airline".
func (k Key) Name() string {
	return fmt.Sprintf("%s_%s_%s", k.ModelSize, k.Strategy, k.Domain)
}

func (k Key) String() string { return k.Name() }

// ParseStrategy accepts display labels and the directory prefixes used by
// the benchmark runner.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "react":
		return StrategyReAct, nil
	case "act":
		return StrategyACT, nil
	case "fc", "tool-calling", "tool_calling", "function-calling", "functioncalling":
		return StrategyFunctionCalling, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

func ParseDomain(s string) (Domain, error) {
	switch d := Domain(strings.ToLower(strings.TrimSpace(s))); d {
	case DomainAirline, DomainRetail:
		return d, nil
	}
	return "", fmt.Errorf("unknown domain %q", s)
}

// ParseKey parses a canonical configuration name.
func ParseKey(name string) (Key, error) {
	parts := strings.SplitN(name, "_", 3)
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("configuration name %q: want <size>_<strategy>_<domain>", name)
	}
	strategy, err := ParseStrategy(parts[1])
	if err != nil {
		return Key{}, fmt.Errorf("configuration name %q: %w", name, err)
	}
	domain, err := ParseDomain(parts[2])
	if err != nil {
		return Key{}, fmt.Errorf("configuration name %q: %w", name, err)
	}
	size := NormalizeModelSize(parts[0])
	if size == "" {
		return Key{}, fmt.Errorf("configuration name %q: empty model size", name)
	}
	return Key{Strategy: strategy, Domain: domain, ModelSize: size}, nil
}

func NormalizeModelSize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var modelSizePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)qwen3?[-_](\d+(?:\.\d+)?b)`),
	regexp.MustCompile(`(?i)(?:^|[-_ ])(\d+(?:\.\d+)?b)(?:$|[-_ .])`),
}

// KeyFromPath derives the configuration from a trajectory file's name and
// parent directory. It handles both the per-configuration subdirectory
// layout (react_airline_trials5_qwen_14b/x.json) and standalone files
// (retail_act-Qwen3-4B-....json).
func KeyFromPath(path string) (Key, bool) {
	name := strings.ToLower(trimTrajectoryExt(baseName(path)))
	parent := strings.ToLower(baseName(dirName(path)))
	combined := parent + " " + name

	var size string
	for _, re := range modelSizePatterns {
		if m := re.FindStringSubmatch(combined); m != nil {
			size = NormalizeModelSize(m[1])
			break
		}
	}
	if size == "" {
		return Key{}, false
	}

	var strategy Strategy
	switch {
	case strings.Contains(combined, "tool-calling"), strings.Contains(combined, "tool_calling"):
		strategy = StrategyFunctionCalling
	case strings.Contains(combined, "react"):
		strategy = StrategyReAct
	case strings.Contains(combined, "act"):
		strategy = StrategyACT
	default:
		return Key{}, false
	}

	var domain Domain
	switch {
	case strings.Contains(combined, "airline"):
		domain = DomainAirline
	case strings.Contains(combined, "retail"):
		domain = DomainRetail
	default:
		return Key{}, false
	}
	return Key{Strategy: strategy, Domain: domain, ModelSize: size}, true
}
