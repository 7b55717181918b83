// Package taxonomy holds the closed set of failure categories a judge may
// assign, plus the reserved buckets used when no valid category applies.
package taxonomy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Reserved bucket names. They are never members of a Registry.
const (
	Unclassified         = "unclassified"
	ClassificationFailed = "classification_failed"
)

type Category struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Registry is an ordered, read-only set of categories. The zero value is
// not usable; build one with New or Default.
type Registry struct {
	categories []Category
	index      map[string]int
}

func New(categories []Category) (*Registry, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("taxonomy has no categories")
	}
	r := &Registry{
		categories: make([]Category, 0, len(categories)),
		index:      make(map[string]int, len(categories)),
	}
	for i, c := range categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("category %d: name is required", i)
		}
		if IsReserved(name) {
			return nil, fmt.Errorf("category %q: name is reserved", name)
		}
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("category %q: defined twice", name)
		}
		r.index[name] = len(r.categories)
		r.categories = append(r.categories, Category{Name: name, Description: strings.TrimSpace(c.Description)})
	}
	return r, nil
}

// Default returns the nine-category taxonomy used for airline and retail
// customer-service trajectories.
func Default() *Registry {
	r, err := New(defaultCategories)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadFile reads a YAML list of {name, description} entries.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy %s: %w", path, err)
	}
	var cats []Category
	if err := yaml.Unmarshal(data, &cats); err != nil {
		return nil, fmt.Errorf("parsing taxonomy %s: %w", path, err)
	}
	r, err := New(cats)
	if err != nil {
		return nil, fmt.Errorf("invalid taxonomy %s: %w", path, err)
	}
	return r, nil
}

func (r *Registry) Contains(name string) bool {
	_, ok := r.index[name]
	return ok
}

func (r *Registry) Len() int { return len(r.categories) }

// Categories returns a copy in declaration order.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.categories))
	copy(out, r.categories)
	return out
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.categories))
	for i, c := range r.categories {
		names[i] = c.Name
	}
	return names
}

func (r *Registry) Description(name string) (string, bool) {
	i, ok := r.index[name]
	if !ok {
		return "", false
	}
	return r.categories[i].Description, true
}

// Render formats the registry as the bullet list shown to the judge.
func (r *Registry) Render() string {
	var b strings.Builder
	for i, c := range r.categories {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "  - %s: %s", c.Name, c.Description)
	}
	return b.String()
}

func IsReserved(name string) bool {
	return name == Unclassified || name == ClassificationFailed
}

var defaultCategories = []Category{
	{"wrong_tool", "Agent called the wrong tool entirely (e.g., cancel_reservation when it should have called update_reservation_flights)"},
	{"wrong_arguments", "Correct tool but wrong parameters (e.g., wrong reservation_id, wrong payment_method, wrong flight number, wrong date)"},
	{"policy_violation", "Agent violated a domain rule (e.g., modifying basic economy, cancelling without insurance, giving unauthorized refund, skipping user authentication)"},
	{"incomplete_execution", "Agent completed some but not all required actions (e.g., changed flights but forgot to update baggage or passengers)"},
	{"premature_escalation", "Agent transferred to a human agent when it could have handled the request with available tools"},
	{"information_error", "Agent gave the user incorrect information (wrong price, wrong policy detail, wrong flight status) which affected the conversation outcome"},
	{"reasoning_failure", "Agent misunderstood user intent or made a wrong plan despite having correct information available from tools and conversation"},
	{"user_simulator_error", "The user simulator gave ambiguous, contradictory, or hallucinated instructions that caused the agent to fail through no fault of its own"},
	{"context_or_format_error", "Conversation cut short (context window overflow), malformed JSON action, or other infrastructure/parsing failure"},
}
