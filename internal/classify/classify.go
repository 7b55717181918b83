// Package classify drives the judge over a configuration's sampled failures,
// one classify-and-persist step at a time.
package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/signalnine/triage/internal/judge"
	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/taxonomy"
	"github.com/signalnine/triage/internal/trajectory"
	"github.com/signalnine/triage/internal/triage"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// Store is the part of the result store the orchestrator writes through.
type Store interface {
	AlreadyClassified(taskID int) bool
	Append(c result.Classification) error
}

// Orchestrator classifies failures with a judge, pacing every attempt
// through a shared Pacer.
type Orchestrator struct {
	judge       judge.Judge
	tax         *taxonomy.Registry
	pacer       *Pacer
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	policies    map[trajectory.Domain]string
	recorder    Recorder
	logger      *zap.Logger
}

type Option func(*Orchestrator)

// WithPacer shares a pacer across orchestrators. Without one attempts are
// not paced.
func WithPacer(p *Pacer) Option { return func(o *Orchestrator) { o.pacer = p } }

// WithRetry sets the attempt budget and the exponential backoff bounds.
func WithRetry(maxAttempts int, base, ceiling time.Duration) Option {
	return func(o *Orchestrator) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
		if base > 0 {
			o.backoffBase = base
		}
		if ceiling > 0 {
			o.backoffMax = ceiling
		}
	}
}

// WithPolicies overrides the policy excerpt per domain.
func WithPolicies(p map[trajectory.Domain]string) Option {
	return func(o *Orchestrator) { o.policies = p }
}

func WithRecorder(r Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func New(j judge.Judge, tax *taxonomy.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		judge:       j,
		tax:         tax,
		pacer:       NewPacer(0),
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
		backoffMax:  DefaultBackoffMax,
		recorder:    nopRecorder{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Request builds the judge input for one failure.
func (o *Orchestrator) Request(f triage.Failure) *judge.Request {
	rec := f.Record
	req := &judge.Request{
		Policy:     rec.Policy(),
		Transcript: rec.Conversation(),
		Taxonomy:   o.tax,
	}
	if p, ok := o.policies[f.Key.Domain]; ok && p != "" {
		req.Policy = p
	}
	if rec.Info.Task != nil {
		req.Goal = rec.Info.Task.Instruction
		req.GroundTruth = rec.Info.Task.Actions
	}
	return req
}

// Outcome counts what one Run did.
type Outcome struct {
	Classified   int
	Unclassified int
	Failed       int
	Skipped      int
}

// Run classifies every item the store does not already hold, persisting each
// result before the next call. It stops at the first fatal judge error or
// when ctx is done; everything appended until then stays persisted.
func (o *Orchestrator) Run(ctx context.Context, items []triage.Failure, store Store) (Outcome, error) {
	var out Outcome
	for i, f := range items {
		if store.AlreadyClassified(f.TaskID()) {
			out.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		c, err := o.Classify(ctx, f)
		if err != nil {
			return out, fmt.Errorf("%s task %d: %w", f.Key.Name(), f.TaskID(), err)
		}
		if err := store.Append(c); err != nil {
			return out, err
		}
		switch c.Judgment.Status {
		case result.StatusClassified:
			out.Classified++
		case result.StatusUnclassified:
			out.Unclassified++
		case result.StatusFailed:
			out.Failed++
		}
		o.recorder.RecordResult(f.Key.Name(), c)
		o.logger.Info("classified",
			zap.String("config", f.Key.Name()),
			zap.Int("task_id", f.TaskID()),
			zap.Int("item", i+1),
			zap.Int("of", len(items)),
			zap.String("category", c.Category()),
			zap.Int("attempts", c.Judgment.Attempts))
	}
	return out, nil
}

// Classify judges one failure. Exhausted retries and off-taxonomy answers
// still produce a result; only fatal judge errors and cancellation return
// an error.
func (o *Orchestrator) Classify(ctx context.Context, f triage.Failure) (result.Classification, error) {
	c := baseResult(f)
	req := o.Request(f)
	config := f.Key.Name()

	var verdict *judge.Verdict
	attempts := 0
	op := func() error {
		if err := o.pacer.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		start := time.Now()
		v, err := o.judge.Classify(ctx, req)
		o.pacer.Done()
		call := Call{Config: config, TaskID: f.TaskID(), Attempt: attempts, Duration: time.Since(start), Err: err}
		if v != nil {
			call.Usage = v.Usage
		}
		o.recorder.RecordCall(ctx, call)
		if err != nil {
			if judge.IsFatal(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		verdict = v
		return nil
	}
	notify := func(err error, wait time.Duration) {
		o.logger.Warn("judge attempt failed, retrying",
			zap.String("config", config),
			zap.Int("task_id", f.TaskID()),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(op, o.policy(ctx), notify)
	c.Judgment.Attempts = attempts
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return c, ctx.Err()
	case judge.IsFatal(err):
		return c, err
	case attempts == 0:
		// The pacer gave up before any call was made.
		return c, err
	default:
		o.logger.Warn("judge attempts exhausted",
			zap.String("config", config),
			zap.Int("task_id", f.TaskID()),
			zap.Int("attempts", attempts),
			zap.Error(err))
		c.Judgment.PrimaryCategory = taxonomy.ClassificationFailed
		c.Judgment.Status = result.StatusFailed
		c.Judgment.Explanation = fmt.Sprintf("judge failed after %d attempts: %v", attempts, err)
		return c, nil
	}

	c.Judgment.SubCategory = verdict.SubCategory
	c.Judgment.Explanation = verdict.Explanation
	if o.tax.Contains(verdict.Category) {
		c.Judgment.PrimaryCategory = verdict.Category
		c.Judgment.Status = result.StatusClassified
		return c, nil
	}
	o.logger.Warn("judge answered outside the taxonomy",
		zap.String("config", config),
		zap.Int("task_id", f.TaskID()),
		zap.String("reported_category", verdict.Category))
	c.Judgment.PrimaryCategory = taxonomy.Unclassified
	c.Judgment.Status = result.StatusUnclassified
	c.Judgment.ReportedCategory = verdict.Category
	return c, nil
}

func (o *Orchestrator) policy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.backoffBase
	b.MaxInterval = o.backoffMax
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.maxAttempts-1)), ctx)
}

func baseResult(f triage.Failure) result.Classification {
	rec := f.Record
	c := result.Classification{
		TaskID:             rec.TaskID,
		Trial:              rec.Trial,
		GroundTruthActions: []trajectory.Action{},
		AgentActions:       trajectory.AgentActions(rec.Traj),
	}
	if rec.Info.Task != nil {
		c.Instruction = rec.Info.Task.Instruction
		if rec.Info.Task.Actions != nil {
			c.GroundTruthActions = rec.Info.Task.Actions
		}
	}
	return c
}

// IsAbort reports whether err stopped a run early rather than failing a
// single item.
func IsAbort(err error) bool {
	return judge.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
