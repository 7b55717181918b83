package judge

import (
	"fmt"

	"github.com/signalnine/triage/internal/trajectory"
)

const systemPrompt = "You classify AI agent failures. Respond with valid JSON only."

const promptTemplate = `You are an expert evaluator analyzing a FAILED AI agent interaction from the tau-bench benchmark.

The agent was supposed to help a simulated user with a customer service task but FAILED (reward = 0).
Your job: figure out WHY it failed by comparing what the agent did vs what it should have done.

## User's Goal
%s

## Expected Solution (Ground Truth)
These are the correct actions the agent should have taken:
%s

## Domain Policy (Rules the Agent Must Follow)
%s

## Actual Conversation
%s

## Error Taxonomy
Classify this failure into EXACTLY ONE of these categories:
%s

Respond with ONLY valid JSON, nothing else:
{"primary_category": "<category_id>", "sub_category": "<brief specific sub-type>", "explanation": "<1-2 sentence explanation>"}`

// Prompt renders the request as a single user message.
func (r *Request) Prompt() string {
	goal := r.Goal
	if goal == "" {
		goal = trajectory.NoInstruction
	}
	policy := r.Policy
	if policy == "" {
		policy = trajectory.NoPolicy
	}
	return fmt.Sprintf(promptTemplate,
		goal,
		trajectory.FormatGroundTruth(r.GroundTruth),
		policy,
		trajectory.FormatConversation(r.Transcript, trajectory.MaxAPIOutputLen),
		r.Taxonomy.Render(),
	)
}
