// Package pipeline runs the load, split, sample, classify and persist steps
// for each configuration and writes the combined outputs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/signalnine/triage/internal/classify"
	"github.com/signalnine/triage/internal/report"
	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/runner"
	"github.com/signalnine/triage/internal/sampler"
	"github.com/signalnine/triage/internal/taxonomy"
	"github.com/signalnine/triage/internal/trajectory"
	"github.com/signalnine/triage/internal/triage"
	"go.uber.org/zap"
)

// StatsObserver receives each configuration's stats block.
type StatsObserver interface {
	ObserveStats(config string, s result.Stats)
}

type Options struct {
	TrajectoriesDir string
	OutputDir       string
	SampleSize      int
	Seed            int64
	Force           bool
	DryRun          bool
	Parallel        int
	Judge           result.JudgeInfo
	Taxonomy        *taxonomy.Registry
	LockWait        time.Duration
	Stats           StatsObserver
	Logger          *zap.Logger
	// Out receives operator progress lines and dry-run prompts.
	Out io.Writer
}

type Pipeline struct {
	orch *classify.Orchestrator
	opts Options
	root string
}

// New resolves the trajectory root up front so a missing directory fails
// before any judge call or write.
func New(orch *classify.Orchestrator, opts Options) (*Pipeline, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Taxonomy == nil {
		opts.Taxonomy = taxonomy.Default()
	}
	root, err := trajectory.ResolveRoot(opts.TrajectoriesDir)
	if err != nil {
		return nil, err
	}
	return &Pipeline{orch: orch, opts: opts, root: root}, nil
}

func (p *Pipeline) Root() string { return p.root }

// Prepared is a configuration loaded, split and sampled, ready to classify.
type Prepared struct {
	Key       trajectory.Key
	File      string
	Partition *triage.Partition
	Sample    *sampler.Sample
}

// Stats derives the persisted stats block.
func (pr *Prepared) Stats() result.Stats {
	return result.Stats{
		TotalRecords:          pr.Partition.Total(),
		TotalTasks:            pr.Partition.UniqueTasks(),
		Successes:             len(pr.Partition.Successes),
		Crashes:               len(pr.Partition.Crashes),
		CrashesByKind:         pr.Partition.CrashCounts(),
		TotalFailuresInSource: len(pr.Partition.Failures),
		UniqueFailures:        pr.Sample.UniqueFailures,
		UniqueFailuresSampled: len(pr.Sample.Items),
		Subsampled:            pr.Sample.Subsampled,
	}
}

func (pr *Prepared) Sampling() result.Sampling {
	return result.Sampling{
		Seed:       pr.Sample.Seed,
		SampleSize: pr.Sample.Size,
		Subsampled: pr.Sample.Subsampled,
		TaskIDs:    pr.Sample.TaskIDs(),
	}
}

// Prepare locates, loads, splits and samples one configuration.
func (p *Pipeline) Prepare(key trajectory.Key) (*Prepared, error) {
	path, err := trajectory.Locate(p.root, key)
	if err != nil {
		return nil, err
	}
	records, err := trajectory.LoadFile(path)
	if err != nil {
		return nil, err
	}
	part, err := triage.Split(key, records)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		rel = path
	}
	return &Prepared{
		Key:       key,
		File:      filepath.ToSlash(rel),
		Partition: part,
		Sample:    sampler.Draw(part.Failures, p.opts.SampleSize, p.opts.Seed),
	}, nil
}

// RunConfig processes one configuration end to end. In dry-run mode it
// prints the first judge prompt and returns a nil document.
func (p *Pipeline) RunConfig(ctx context.Context, key trajectory.Key) (*result.Document, error) {
	log := p.opts.Logger.With(zap.String("config", key.Name()))
	pr, err := p.Prepare(key)
	if err != nil {
		return nil, err
	}
	stats := pr.Stats()
	fmt.Fprintf(p.opts.Out, "%s: %d records, %d successes, %d crashes, %d failures (%d unique, %d sampled)\n",
		key.Name(), stats.TotalRecords, stats.Successes, stats.Crashes,
		stats.TotalFailuresInSource, stats.UniqueFailures, stats.UniqueFailuresSampled)
	if p.opts.Stats != nil {
		p.opts.Stats.ObserveStats(key.Name(), stats)
	}

	if p.opts.DryRun {
		if len(pr.Sample.Items) == 0 {
			fmt.Fprintf(p.opts.Out, "%s: no behavioral failures to classify\n", key.Name())
			return nil, nil
		}
		fmt.Fprintf(p.opts.Out, "\n--- %s: prompt for task %d ---\n%s\n\n",
			key.Name(), pr.Sample.Items[0].TaskID(), p.orch.Request(pr.Sample.Items[0]).Prompt())
		return nil, nil
	}

	store, err := result.Open(p.opts.OutputDir, key,
		result.WithLogger(p.opts.Logger), result.WithLockWait(p.opts.LockWait))
	if err != nil {
		return nil, err
	}
	defer store.Close()

	meta := result.Meta{File: pr.File, Judge: p.opts.Judge, Sampling: pr.Sampling()}
	if err := store.Prepare(meta, p.opts.Force); err != nil {
		return nil, err
	}
	if prior := store.Len(); prior > 0 {
		log.Info("resuming", zap.Int("already_classified", prior), zap.Int("sampled", len(pr.Sample.Items)))
	}

	outcome, runErr := p.orch.Run(ctx, pr.Sample.Items, store)
	summary, flagged := report.Summarize(store.Results())
	if err := store.Finalize(stats, summary, flagged); err != nil {
		return nil, errors.Join(runErr, err)
	}
	if runErr != nil {
		return nil, runErr
	}
	fmt.Fprintf(p.opts.Out, "%s: %d classified, %d unclassified, %d failed, %d already done -> %s\n",
		key.Name(), outcome.Classified, outcome.Unclassified, outcome.Failed, outcome.Skipped, store.Path())
	doc := store.Document()
	return &doc, nil
}

// Run is the outcome of RunAll.
type Run struct {
	Documents []*result.Document
	Errors    []error
}

// RunAll processes keys with up to Parallel configurations at once. A failed
// configuration does not stop the others. Once any configuration completes,
// the combined summary and examples are rewritten over every document stored
// in the output directory, including earlier runs.
func (p *Pipeline) RunAll(ctx context.Context, keys []trajectory.Key) (*Run, error) {
	docs := make([]*result.Document, len(keys))
	jobs := make([]runner.Job, len(keys))
	for i, key := range keys {
		jobs[i] = func(ctx context.Context) error {
			doc, err := p.RunConfig(ctx, key)
			if err != nil {
				p.opts.Logger.Error("configuration failed", zap.String("config", key.Name()), zap.Error(err))
				return fmt.Errorf("%s: %w", key.Name(), err)
			}
			docs[i] = doc
			return nil
		}
	}
	run := &Run{Errors: runner.RunPool(ctx, p.opts.Parallel, jobs)}
	for _, d := range docs {
		if d != nil {
			run.Documents = append(run.Documents, d)
		}
	}
	if p.opts.DryRun || len(run.Documents) == 0 {
		return run, nil
	}
	stored, err := result.ReadDocuments(p.opts.OutputDir)
	if err != nil {
		return run, err
	}
	if err := report.WriteOutputs(p.opts.OutputDir, stored, p.opts.Taxonomy, p.opts.Seed); err != nil {
		return run, err
	}
	return run, nil
}
