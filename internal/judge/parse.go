package judge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const verdictSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["primary_category"],
  "properties": {
    "primary_category": {"type": "string", "minLength": 1},
    "sub_category": {"type": "string"},
    "explanation": {"type": "string"}
  }
}`

var verdictSchema = mustCompileSchema(verdictSchemaJSON, "verdict.schema.json")

var (
	fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareObject   = regexp.MustCompile(`\{[^{}]*"primary_category"[^{}]*\}`)
)

func mustCompileSchema(raw, name string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic(fmt.Sprintf("parsing %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("adding %s: %v", name, err))
	}
	sch, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compiling %s: %v", name, err))
	}
	return sch
}

// extractObject finds the verdict object in a model reply: the whole reply,
// then a fenced code block, then any flat object naming primary_category.
func extractObject(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	candidates := []string{text}
	if m := fencedObject.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := bareObject.FindString(text); m != "" {
		candidates = append(candidates, m)
	}
	for _, c := range candidates {
		var obj map[string]any
		if err := json.Unmarshal([]byte(c), &obj); err != nil {
			continue
		}
		if _, ok := obj["primary_category"]; ok {
			return obj, true
		}
	}
	return nil, false
}

// ParseVerdict decodes a model reply. A reply without a well-formed verdict
// object is a *TransientError so the caller retries it.
func ParseVerdict(provider, text string) (*Verdict, error) {
	obj, ok := extractObject(text)
	if !ok {
		return nil, &TransientError{Provider: provider, Err: fmt.Errorf("no verdict object in response: %.200q", text)}
	}
	if err := verdictSchema.Validate(obj); err != nil {
		return nil, &TransientError{Provider: provider, Err: fmt.Errorf("verdict does not match schema: %w", err)}
	}
	var v Verdict
	if err := mapstructure.Decode(obj, &v); err != nil {
		return nil, &TransientError{Provider: provider, Err: fmt.Errorf("decoding verdict: %w", err)}
	}
	v.Category = strings.TrimSpace(v.Category)
	v.Raw = text
	return &v, nil
}
