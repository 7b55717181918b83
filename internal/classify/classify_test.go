package classify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalnine/triage/internal/classify"
	"github.com/signalnine/triage/internal/judge"
	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/taxonomy"
	"github.com/signalnine/triage/internal/trajectory"
	"github.com/signalnine/triage/internal/triage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var key = trajectory.Key{Strategy: trajectory.StrategyReAct, Domain: trajectory.DomainAirline, ModelSize: "14b"}

func failure(taskID int) triage.Failure {
	zero := 0.0
	return triage.Failure{Key: key, Record: trajectory.TrialRecord{
		TaskID: taskID,
		Reward: &zero,
		Info: trajectory.Info{Task: &trajectory.Task{
			Instruction: "Change my flight",
			Actions:     []trajectory.Action{{Name: "update_reservation_flights"}},
		}},
		Traj: []trajectory.Turn{
			{Role: "system", Content: "Be careful.\n# Available tools\n[...]"},
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: `Thought: cancel it.
Action: {"name": "cancel_reservation", "arguments": {"reservation_id": "X"}}`},
		},
	}}
}

type memStore struct {
	results []result.Classification
	done    map[int]bool
}

func newMemStore(done ...int) *memStore {
	s := &memStore{done: map[int]bool{}}
	for _, id := range done {
		s.done[id] = true
	}
	return s
}

func (s *memStore) AlreadyClassified(id int) bool { return s.done[id] }

func (s *memStore) Append(c result.Classification) error {
	s.results = append(s.results, c)
	s.done[c.TaskID] = true
	return nil
}

func newOrchestrator(j judge.Judge, opts ...classify.Option) *classify.Orchestrator {
	opts = append([]classify.Option{classify.WithRetry(3, time.Millisecond, 2*time.Millisecond)}, opts...)
	return classify.New(j, taxonomy.Default(), opts...)
}

func verdict(category string) *judge.Verdict {
	return &judge.Verdict{Category: category, SubCategory: "sub", Explanation: "why"}
}

func transient() error {
	return &judge.TransientError{Provider: "test", Err: errors.New("API returned 503")}
}

func TestClassifyInTaxonomy(t *testing.T) {
	ctrl := gomock.NewController(t)
	j := judge.NewMockJudge(ctrl)
	j.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(verdict("wrong_tool"), nil)

	c, err := newOrchestrator(j).Classify(context.Background(), failure(7))
	require.NoError(t, err)
	assert.Equal(t, 7, c.TaskID)
	assert.Equal(t, "Change my flight", c.Instruction)
	assert.Equal(t, result.Judgment{
		PrimaryCategory: "wrong_tool",
		SubCategory:     "sub",
		Explanation:     "why",
		Status:          result.StatusClassified,
		Attempts:        1,
	}, c.Judgment)
	require.Len(t, c.AgentActions, 1)
	assert.Equal(t, "cancel_reservation", c.AgentActions[0].Name)
	assert.Equal(t, "update_reservation_flights", c.GroundTruthActions[0].Name)
}

func TestClassifyRetriesTransient(t *testing.T) {
	ctrl := gomock.NewController(t)
	j := judge.NewMockJudge(ctrl)
	gomock.InOrder(
		j.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(nil, transient()).Times(2),
		j.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(verdict("policy_violation"), nil),
	)

	c, err := newOrchestrator(j).Classify(context.Background(), failure(1))
	require.NoError(t, err)
	assert.Equal(t, "policy_violation", c.Category())
	assert.Equal(t, 3, c.Judgment.Attempts)
}

func TestClassifyExhaustedRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	j := judge.NewMockJudge(ctrl)
	j.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(nil, transient()).Times(3)

	c, err := newOrchestrator(j).Classify(context.Background(), failure(1))
	require.NoError(t, err)
	assert.Equal(t, taxonomy.ClassificationFailed, c.Category())
	assert.Equal(t, result.StatusFailed, c.Judgment.Status)
	assert.Equal(t, 3, c.Judgment.Attempts)
	assert.Contains(t, c.Judgment.Explanation, "503")
}

func TestClassifyOutsideTaxonomy(t *testing.T) {
	tests := []string{"hallucination", taxonomy.Unclassified, ""}
	for _, reported := range tests {
		t.Run(reported, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			j := judge.NewMockJudge(ctrl)
			j.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(verdict(reported), nil)

			c, err := newOrchestrator(j).Classify(context.Background(), failure(1))
			require.NoError(t, err)
			assert.Equal(t, taxonomy.Unclassified, c.Category())
			assert.Equal(t, result.StatusUnclassified, c.Judgment.Status)
			assert.Equal(t, reported, c.Judgment.ReportedCategory)
			assert.Equal(t, 1, c.Judgment.Attempts)
		})
	}
}

func TestRunIsolatesBadItems(t *testing.T) {
	ctrl := gomock.NewController(t)
	j := judge.NewMockJudge(ctrl)
	gomock.InOrder(
		j.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(verdict("made_up"), nil),
		j.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(nil, transient()).Times(3),
		j.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(verdict("wrong_tool"), nil),
	)

	store := newMemStore()
	out, err := newOrchestrator(j).Run(context.Background(), []triage.Failure{failure(1), failure(2), failure(3)}, store)
	require.NoError(t, err)
	assert.Equal(t, classify.Outcome{Classified: 1, Unclassified: 1, Failed: 1}, out)
	require.Len(t, store.results, 3)
	assert.Equal(t, taxonomy.Unclassified, store.results[0].Category())
	assert.Equal(t, taxonomy.ClassificationFailed, store.results[1].Category())
	assert.Equal(t, "wrong_tool", store.results[2].Category())
}

func TestRunFatalAborts(t *testing.T) {
	ctrl := gomock.NewController(t)
	j := judge.NewMockJudge(ctrl)
	gomock.InOrder(
		j.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(verdict("wrong_tool"), nil),
		j.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(nil, &judge.FatalError{Provider: "test", Err: errors.New("API returned 401")}),
	)

	store := newMemStore()
	out, err := newOrchestrator(j).Run(context.Background(), []triage.Failure{failure(1), failure(2), failure(3)}, store)
	require.Error(t, err)
	assert.True(t, judge.IsFatal(err))
	assert.True(t, classify.IsAbort(err))
	assert.Equal(t, 1, out.Classified)
	assert.Len(t, store.results, 1)
}

func TestRunSkipsClassified(t *testing.T) {
	ctrl := gomock.NewController(t)
	j := judge.NewMockJudge(ctrl)
	j.EXPECT().Classify(gomock.Any(), gomock.Any()).Times(0)

	store := newMemStore(1, 2)
	out, err := newOrchestrator(j).Run(context.Background(), []triage.Failure{failure(1), failure(2)}, store)
	require.NoError(t, err)
	assert.Equal(t, classify.Outcome{Skipped: 2}, out)
	assert.Empty(t, store.results)
}

func TestRunCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	j := judge.NewMockJudge(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newOrchestrator(j).Run(ctx, []triage.Failure{failure(1)}, newMemStore())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCanceledDuringRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	j := judge.NewMockJudge(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	j.EXPECT().Classify(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, *judge.Request) (*judge.Verdict, error) {
		cancel()
		return nil, transient()
	})

	_, err := newOrchestrator(j).Classify(ctx, failure(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPacingSharedAcrossAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	j := judge.NewMockJudge(ctrl)
	var calls []time.Time
	j.EXPECT().Classify(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, *judge.Request) (*judge.Verdict, error) {
		calls = append(calls, time.Now())
		if len(calls) == 1 {
			return nil, transient()
		}
		return verdict("wrong_tool"), nil
	}).Times(3)

	const delay = 40 * time.Millisecond
	o := newOrchestrator(j, classify.WithPacer(classify.NewPacer(delay)))
	_, err := o.Run(context.Background(), []triage.Failure{failure(1), failure(2)}, newMemStore())
	require.NoError(t, err)
	require.Len(t, calls, 3)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), delay-5*time.Millisecond)
	}
}

func TestPacingPausesAfterSlowCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	j := judge.NewMockJudge(ctrl)
	const (
		delay = 30 * time.Millisecond
		slow  = 3 * delay
	)
	var starts, ends []time.Time
	j.EXPECT().Classify(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, *judge.Request) (*judge.Verdict, error) {
		starts = append(starts, time.Now())
		time.Sleep(slow)
		ends = append(ends, time.Now())
		return verdict("wrong_tool"), nil
	}).Times(3)

	o := newOrchestrator(j, classify.WithPacer(classify.NewPacer(delay)))
	_, err := o.Run(context.Background(), []triage.Failure{failure(1), failure(2), failure(3)}, newMemStore())
	require.NoError(t, err)
	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(ends[i-1]), delay-5*time.Millisecond, "call %d", i+1)
	}
}

func TestRequest(t *testing.T) {
	o := classify.New(nil, taxonomy.Default())
	req := o.Request(failure(1))
	assert.Equal(t, "Change my flight", req.Goal)
	assert.Equal(t, "Be careful.", req.Policy)
	assert.Len(t, req.Transcript, 2)
	assert.Equal(t, "user", req.Transcript[0].Role)

	o = classify.New(nil, taxonomy.Default(), classify.WithPolicies(map[trajectory.Domain]string{trajectory.DomainAirline: "airline rules"}))
	assert.Equal(t, "airline rules", o.Request(failure(1)).Policy)
}

type countingRecorder struct {
	calls   []classify.Call
	results []string
}

func (r *countingRecorder) RecordCall(_ context.Context, c classify.Call) { r.calls = append(r.calls, c) }

func (r *countingRecorder) RecordResult(config string, c result.Classification) {
	r.results = append(r.results, config+":"+c.Category())
}

func TestRecorderSeesEveryAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	j := judge.NewMockJudge(ctrl)
	gomock.InOrder(
		j.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(nil, transient()),
		j.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(&judge.Verdict{Category: "wrong_tool", Usage: judge.Usage{InputTokens: 100, OutputTokens: 20}}, nil),
	)
	rec := &countingRecorder{}
	_, err := newOrchestrator(j, classify.WithRecorder(classify.Tee(nil, rec))).Run(context.Background(), []triage.Failure{failure(4)}, newMemStore())
	require.NoError(t, err)
	require.Len(t, rec.calls, 2)
	assert.Error(t, rec.calls[0].Err)
	assert.Equal(t, 2, rec.calls[1].Attempt)
	assert.Equal(t, 100, rec.calls[1].Usage.InputTokens)
	assert.Equal(t, []string{"14b_ReAct_airline:wrong_tool"}, rec.results)
}
