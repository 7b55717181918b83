package trajectory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxAPIOutputLen bounds tool results echoed back to the judge.
	MaxAPIOutputLen = 500
	// PolicyFallbackLen is used when the system prompt has no tool section.
	PolicyFallbackLen = 3000

	NoPolicy      = "No policy available"
	NoInstruction = "No instruction available"
	NoActions     = "No actions required; the agent should have refused the request or correctly identified it as out of scope."
)

var (
	policyMarkers  = []string{"#Available tools", "# Available tools", "#Available Tools"}
	thinkBlock     = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)
	actionInText   = regexp.MustCompile(`(?s)Action:\s*(\{.*\})`)
	ignoredActions = map[string]bool{"respond": true, "unknown": true, "": true}
)

// ExtractPolicy keeps the rules portion of a system prompt, dropping the
// tool schema listing that follows it.
func ExtractPolicy(system string) string {
	for _, marker := range policyMarkers {
		if i := strings.Index(system, marker); i >= 0 {
			return strings.TrimSpace(system[:i])
		}
	}
	return truncate(system, PolicyFallbackLen)
}

// Policy returns the policy excerpt of a record's system turn.
func (r *TrialRecord) Policy() string {
	system, ok := r.SystemPrompt()
	if !ok {
		return NoPolicy
	}
	return ExtractPolicy(system)
}

// Conversation returns every turn after the system prompt.
func (r *TrialRecord) Conversation() []Turn {
	out := make([]Turn, 0, len(r.Traj))
	for _, t := range r.Traj {
		if t.Role != "system" {
			out = append(out, t)
		}
	}
	return out
}

// FormatConversation renders turns as "[ROLE]: content" blocks. User
// simulator reasoning is stripped and long tool outputs truncated.
func FormatConversation(turns []Turn, maxAPIOutputLen int) string {
	var blocks []string
	for _, t := range turns {
		content := t.Content
		if t.Role == "user" && strings.Contains(content, "<think>") {
			content = thinkBlock.ReplaceAllString(content, "")
		}
		if t.Role == "user" && strings.HasPrefix(content, "API output:") && len(content) > maxAPIOutputLen {
			content = truncate(content, maxAPIOutputLen) + " ... [truncated]"
		}
		if t.Role == "assistant" && len(t.ToolCalls) > 0 {
			lines := make([]string, 0, len(t.ToolCalls))
			for _, tc := range t.ToolCalls {
				lines = append(lines, fmt.Sprintf("  [Tool Call] %s(%s)", tc.Function.Name, tc.Function.ArgumentsText()))
			}
			content = strings.TrimSpace(content + "\n" + strings.Join(lines, "\n"))
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		role := t.Role
		if role == "" {
			role = "unknown"
		}
		blocks = append(blocks, fmt.Sprintf("[%s]: %s", strings.ToUpper(role), content))
	}
	return strings.Join(blocks, "\n\n")
}

// FormatGroundTruth renders expected actions as a numbered list.
func FormatGroundTruth(actions []Action) string {
	if len(actions) == 0 {
		return NoActions
	}
	lines := make([]string, 0, len(actions))
	for i, a := range actions {
		name := a.Name
		if name == "" {
			name = "unknown"
		}
		lines = append(lines, fmt.Sprintf("%d. %s(%s)", i+1, name, indentJSON(a.Args())))
	}
	return strings.Join(lines, "\n")
}

// AgentActions lists the tool calls the agent made, from structured
// tool_calls or from "Action: {...}" text, skipping plain replies.
func AgentActions(turns []Turn) []Action {
	actions := []Action{}
	for _, t := range turns {
		if t.Role != "assistant" {
			continue
		}
		if len(t.ToolCalls) > 0 {
			for _, tc := range t.ToolCalls {
				name := tc.Function.Name
				if name == "" {
					name = "unknown"
				}
				if ignoredActions[name] {
					continue
				}
				actions = append(actions, Action{Name: name, Arguments: argumentsJSON(tc.Function.ArgumentsText())})
			}
			continue
		}
		m := actionInText.FindStringSubmatch(t.Content)
		if m == nil {
			continue
		}
		var parsed struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(m[1]), &parsed); err != nil {
			continue
		}
		if ignoredActions[parsed.Name] {
			continue
		}
		actions = append(actions, Action{Name: parsed.Name, Arguments: parsed.Arguments})
	}
	return actions
}

// argumentsJSON keeps valid JSON as-is and wraps anything else as a string.
func argumentsJSON(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
