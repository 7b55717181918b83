// Package trajectorytest builds trial records and trajectory files for tests.
package trajectorytest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/triage/internal/trajectory"
)

const (
	SystemPrompt = "# Airline Agent Policy\nAuthenticate the user first.\n\n# Available tools\n- get_user_details"
	Overflow     = "litellm.ContextWindowExceededError: This model's maximum context length is 32768 tokens. However, your request has 34346 input tokens."
	OtherCrash   = "ConnectionResetError: connection reset by peer"
)

func reward(v float64) *float64 { return &v }

func task(taskID int) *trajectory.Task {
	return &trajectory.Task{
		UserID:      fmt.Sprintf("user_%d", taskID),
		Instruction: fmt.Sprintf("Change the flight on reservation R%d to tomorrow.", taskID),
		Actions: []trajectory.Action{{
			Name:   "update_reservation_flights",
			Kwargs: json.RawMessage(fmt.Sprintf(`{"reservation_id": "R%d"}`, taskID)),
		}},
	}
}

func Success(taskID, trial int) trajectory.TrialRecord {
	return trajectory.TrialRecord{
		TaskID: taskID, Trial: trial, Reward: reward(1),
		Info: trajectory.Info{Task: task(taskID)},
		Traj: []trajectory.Turn{{Role: "system", Content: SystemPrompt}, {Role: "user", Content: "hello"}},
	}
}

// Failure is a completed trial with reward 0 whose agent cancelled instead
// of modifying the reservation.
func Failure(taskID, trial int) trajectory.TrialRecord {
	return trajectory.TrialRecord{
		TaskID: taskID, Trial: trial, Reward: reward(0),
		Info: trajectory.Info{Task: task(taskID)},
		Traj: []trajectory.Turn{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: fmt.Sprintf("<think>be vague</think>Please move R%d.", taskID)},
			{Role: "assistant", Content: fmt.Sprintf("Thought: cancel it.\nAction: {\"name\": \"cancel_reservation\", \"arguments\": {\"reservation_id\": \"R%d\"}}", taskID)},
			{Role: "user", Content: "API output: {\"status\": \"cancelled\"}"},
		},
	}
}

func Crash(taskID, trial int, msg string) trajectory.TrialRecord {
	return trajectory.TrialRecord{
		TaskID: taskID, Trial: trial,
		Info: trajectory.Info{Error: &msg, Traceback: "Traceback (most recent call last):\n  ..."},
	}
}

// Scenario is a 50-record configuration: 26 successes, 3 context-window
// crashes, 1 other crash and 20 behavioral failures over 18 task ids.
func Scenario() []trajectory.TrialRecord {
	var records []trajectory.TrialRecord
	for id := 0; id < 26; id++ {
		records = append(records, Success(id, 0))
	}
	for id := 26; id < 29; id++ {
		records = append(records, Crash(id, 0, Overflow))
	}
	records = append(records, Crash(29, 0, OtherCrash))
	for id := 30; id < 48; id++ {
		records = append(records, Failure(id, 0))
	}
	records = append(records, Failure(30, 1), Failure(31, 1))
	return records
}

// WriteFile writes records as a JSON array to dir/rel and returns the path.
func WriteFile(tb testing.TB, dir, rel string, records []trajectory.TrialRecord) string {
	tb.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		tb.Fatalf("encoding records: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("writing %s: %v", path, err)
	}
	return path
}
