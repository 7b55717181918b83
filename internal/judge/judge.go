// Package judge sends a failed trajectory to an external model and returns
// its categorized judgment.
package judge

//go:generate mockgen -source=judge.go -destination=mock_judge.go -package=judge

import (
	"context"

	"github.com/signalnine/triage/internal/taxonomy"
	"github.com/signalnine/triage/internal/trajectory"
)

// Request carries everything the judge needs to explain one failure.
type Request struct {
	Goal        string
	GroundTruth []trajectory.Action
	Policy      string
	Transcript  []trajectory.Turn
	Taxonomy    *taxonomy.Registry
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Verdict is the judge's answer. Category is whatever the model returned;
// callers check it against the taxonomy.
type Verdict struct {
	Category    string `mapstructure:"primary_category"`
	SubCategory string `mapstructure:"sub_category"`
	Explanation string `mapstructure:"explanation"`
	Usage       Usage  `mapstructure:"-"`
	Raw         string `mapstructure:"-"`
}

// Judge classifies one failure. Implementations return *TransientError for
// failures worth retrying and *FatalError for ones that are not.
type Judge interface {
	Classify(ctx context.Context, req *Request) (*Verdict, error)
}
