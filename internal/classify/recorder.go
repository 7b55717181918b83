package classify

import (
	"context"
	"time"

	"github.com/signalnine/triage/internal/judge"
	"github.com/signalnine/triage/internal/result"
)

// Call describes one judge attempt.
type Call struct {
	Config   string
	TaskID   int
	Attempt  int
	Duration time.Duration
	Usage    judge.Usage
	Err      error
}

// Recorder observes judge attempts and persisted results. The call ledger
// and the run metrics implement it.
type Recorder interface {
	RecordCall(ctx context.Context, c Call)
	RecordResult(config string, c result.Classification)
}

type nopRecorder struct{}

func (nopRecorder) RecordCall(context.Context, Call)             {}
func (nopRecorder) RecordResult(string, result.Classification) {}

type multiRecorder []Recorder

func (m multiRecorder) RecordCall(ctx context.Context, c Call) {
	for _, r := range m {
		r.RecordCall(ctx, c)
	}
}

func (m multiRecorder) RecordResult(config string, c result.Classification) {
	for _, r := range m {
		r.RecordResult(config, c)
	}
}

// Tee fans observations out to every non-nil recorder.
func Tee(rs ...Recorder) Recorder {
	var m multiRecorder
	for _, r := range rs {
		if r != nil {
			m = append(m, r)
		}
	}
	if len(m) == 0 {
		return nopRecorder{}
	}
	return m
}
