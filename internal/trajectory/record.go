// Package trajectory reads benchmark trial records and locates the file that
// holds each configuration's trials.
package trajectory

import (
	"bytes"
	"encoding/json"
)

// TrialRecord is one (task_id, trial) execution as written by the benchmark.
type TrialRecord struct {
	TaskID int      `json:"task_id"`
	Trial  int      `json:"trial"`
	Reward *float64 `json:"reward,omitempty"`
	Info   Info     `json:"info"`
	Traj   []Turn   `json:"traj"`
}

// Info holds either the task definition or, for crashed trials, the error.
type Info struct {
	Task       *Task           `json:"task,omitempty"`
	Error      *string         `json:"error,omitempty"`
	Traceback  string          `json:"traceback,omitempty"`
	RewardInfo json.RawMessage `json:"reward_info,omitempty"`
}

type Task struct {
	UserID      string   `json:"user_id,omitempty"`
	Instruction string   `json:"instruction"`
	Actions     []Action `json:"actions"`
}

// Action is a tool invocation. Ground-truth actions carry kwargs; actions
// parsed from agent output carry arguments.
type Action struct {
	Name      string          `json:"name"`
	Kwargs    json.RawMessage `json:"kwargs,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Args returns whichever argument object is populated.
func (a Action) Args() json.RawMessage {
	if len(a.Kwargs) > 0 {
		return a.Kwargs
	}
	if len(a.Arguments) > 0 {
		return a.Arguments
	}
	return json.RawMessage("{}")
}

type Turn struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ArgumentsText returns the arguments as the model emitted them. Providers
// encode them as a JSON string; some recorders store the object directly.
func (f FunctionCall) ArgumentsText() string {
	raw := bytes.TrimSpace(f.Arguments)
	if len(raw) == 0 || string(raw) == "null" {
		return "{}"
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func (r *TrialRecord) HasError() bool { return r.Info.Error != nil }

func (r *TrialRecord) HasTask() bool { return r.Info.Task != nil }

func (r *TrialRecord) ErrorMessage() string {
	if r.Info.Error == nil {
		return ""
	}
	return *r.Info.Error
}

// SystemPrompt returns the content of the leading system turn, if any.
func (r *TrialRecord) SystemPrompt() (string, bool) {
	if len(r.Traj) == 0 || r.Traj[0].Role != "system" {
		return "", false
	}
	return r.Traj[0].Content, true
}
