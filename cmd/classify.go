package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/signalnine/triage/internal/classify"
	"github.com/signalnine/triage/internal/config"
	"github.com/signalnine/triage/internal/gateway"
	"github.com/signalnine/triage/internal/judge"
	"github.com/signalnine/triage/internal/ledger"
	"github.com/signalnine/triage/internal/metrics"
	"github.com/signalnine/triage/internal/pipeline"
	"github.com/signalnine/triage/internal/pricing"
	"github.com/signalnine/triage/internal/report"
	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/trajectory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// allModelSizes as --model-size selects every size found on disk.
const allModelSizes = "all"

var (
	flagProvider      string
	flagModel         string
	flagModelSize     string
	flagSampleSize    int
	flagTrajectoryDir string
	flagOutputDir     string
	flagDelay         time.Duration
	flagForce         bool
	flagYes           bool
	flagDryRun        bool
	flagSeed          int64
	flagParallel      int
	flagLedger        bool
	flagMetricsFile   string
	flagDomain        string
	flagStrategy      string
)

var errAborted = errors.New("aborted: stored results kept")

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Sample behavioral failures and classify them with an LLM judge",
		Args:  cobra.NoArgs,
		RunE:  runClassify,
	}
	f := cmd.Flags()
	f.StringVar(&flagProvider, "provider", "", "judge provider ("+fmt.Sprint(judge.Providers)+")")
	f.StringVar(&flagModel, "model", "", "judge model (default depends on provider)")
	f.StringVar(&flagModelSize, "model-size", "", "agent model size to process, or \"all\"")
	f.IntVar(&flagSampleSize, "sample-size", 0, "maximum unique failures classified per configuration")
	f.StringVar(&flagTrajectoryDir, "trajectory-dir", "", "root directory of trajectory files")
	f.StringVar(&flagOutputDir, "output-dir", "", "directory for result documents")
	f.DurationVar(&flagDelay, "delay", 0, "minimum pause between judge calls")
	f.BoolVar(&flagForce, "force", false, "discard stored results and reclassify")
	f.BoolVarP(&flagYes, "yes", "y", false, "do not ask before --force discards results")
	f.BoolVar(&flagDryRun, "dry-run", false, "print the first judge prompt per configuration without calling the judge")
	f.Int64Var(&flagSeed, "seed", 0, "sampling seed")
	f.IntVar(&flagParallel, "parallel", 0, "configurations processed concurrently")
	f.BoolVar(&flagLedger, "ledger", false, "record every judge call in "+ledger.DefaultFile)
	f.StringVar(&flagMetricsFile, "metrics-file", "", "write run metrics in Prometheus text format")
	f.StringVar(&flagDomain, "domain", "", "only this domain (airline, retail)")
	f.StringVar(&flagStrategy, "strategy", "", "only this strategy (ReAct, ACT, FC)")
	return cmd
}

// applyClassifyFlags layers explicitly set flags over the file config.
func applyClassifyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("provider") {
		cfg.Judge.Provider = flagProvider
		if !f.Changed("model") {
			cfg.Judge.Model = ""
		}
	}
	if f.Changed("model") {
		cfg.Judge.Model = flagModel
	}
	if f.Changed("model-size") {
		if flagModelSize == allModelSizes {
			cfg.ModelSizes = []string{""}
		} else {
			cfg.ModelSizes = []string{flagModelSize}
		}
	}
	if f.Changed("sample-size") {
		if flagSampleSize <= 0 {
			return fmt.Errorf("--sample-size must be positive")
		}
		cfg.Sampling.Size = flagSampleSize
	}
	if f.Changed("seed") {
		cfg.Sampling.Seed = flagSeed
	}
	if f.Changed("trajectory-dir") {
		cfg.TrajectoriesDir = flagTrajectoryDir
	}
	if f.Changed("output-dir") {
		cfg.ResultsDir = flagOutputDir
	}
	if f.Changed("delay") {
		if flagDelay < 0 {
			return fmt.Errorf("--delay must not be negative")
		}
		cfg.Judge.Delay = flagDelay
	}
	if f.Changed("parallel") {
		if flagParallel <= 0 {
			return fmt.Errorf("--parallel must be positive")
		}
		cfg.Parallel = flagParallel
	}
	if f.Changed("ledger") {
		cfg.Outputs.Ledger = flagLedger
	}
	if f.Changed("metrics-file") {
		cfg.Outputs.MetricsFile = flagMetricsFile
	}
	return cfg.Validate()
}

func runClassify(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyClassifyFlags(cmd, cfg); err != nil {
		return err
	}
	tax, err := cfg.Taxonomy()
	if err != nil {
		return err
	}
	policies, err := cfg.LoadPolicies()
	if err != nil {
		return err
	}
	files, err := trajectory.Discover(cfg.TrajectoriesDir)
	if err != nil {
		return err
	}
	keys, err := selectKeys(files, cfg.ModelSizes, flagDomain, flagStrategy)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("no trajectory files under %s match model sizes %v", cfg.TrajectoriesDir, cfg.ModelSizes)
	}

	if flagForce && !flagDryRun && !flagYes {
		if existing := existingResults(cfg.ResultsDir, keys); len(existing) > 0 {
			question := fmt.Sprintf("Discard stored results for %d configuration(s) in %s?", len(existing), cfg.ResultsDir)
			if !promptConfirm(cmd.InOrStdin(), out, question) {
				return errAborted
			}
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []classify.Option{
		classify.WithPacer(classify.NewPacer(cfg.Judge.Delay)),
		classify.WithRetry(cfg.Judge.MaxAttempts, cfg.Judge.BackoffBase, cfg.Judge.BackoffMax),
		classify.WithPolicies(policies),
		classify.WithLogger(logger),
	}
	var j judge.Judge
	var m *metrics.Metrics
	var led *ledger.Ledger
	if !flagDryRun {
		jcfg := cfg.JudgeConfig()
		if cfg.Judge.Provider == judge.ProviderGateway && cfg.Judge.Gateway.Launch {
			gw, err := gateway.Start(ctx, gateway.Options{
				Binary:         cfg.Judge.Gateway.Binary,
				Config:         cfg.Judge.Gateway.Config,
				SecretsEnvFile: cfg.Secrets.EnvFile,
				LogDir:         cfg.Judge.Gateway.LogDir,
				Logger:         logger,
			})
			if err != nil {
				return fmt.Errorf("starting gateway: %w", err)
			}
			defer gw.Stop()
			jcfg.BaseURL = gw.URL()
		}
		if j, err = judge.New(ctx, jcfg); err != nil {
			return err
		}

		var recorders []classify.Recorder
		if cfg.Outputs.MetricsFile != "" {
			m = metrics.New()
			recorders = append(recorders, m)
		}
		if cfg.Outputs.Ledger {
			if led, err = openLedger(cfg); err != nil {
				return err
			}
			defer led.Close()
			recorders = append(recorders, led)
		}
		opts = append(opts, classify.WithRecorder(classify.Tee(recorders...)))
	}
	orch := classify.New(j, tax, opts...)

	popts := pipeline.Options{
		TrajectoriesDir: cfg.TrajectoriesDir,
		OutputDir:       cfg.ResultsDir,
		SampleSize:      cfg.Sampling.Size,
		Seed:            cfg.Sampling.Seed,
		Force:           flagForce,
		DryRun:          flagDryRun,
		Parallel:        cfg.Parallel,
		Judge:           result.JudgeInfo{Provider: cfg.Judge.Provider, Model: cfg.Judge.Model},
		Taxonomy:        tax,
		Logger:          logger,
		Out:             out,
	}
	if m != nil {
		popts.Stats = m
	}
	p, err := pipeline.New(orch, popts)
	if err != nil {
		return err
	}
	logger.Info("classifying",
		zap.Int("configurations", len(keys)),
		zap.String("provider", cfg.Judge.Provider),
		zap.String("model", cfg.Judge.Model),
		zap.Int("sample_size", cfg.Sampling.Size),
		zap.Int64("seed", cfg.Sampling.Seed),
		zap.Bool("dry_run", flagDryRun))

	run, err := p.RunAll(ctx, keys)
	if err != nil {
		return err
	}
	for _, e := range run.Errors {
		fmt.Fprintf(out, "  ERROR: %v\n", e)
	}

	if len(run.Documents) > 0 {
		fmt.Fprintln(out, "\n--- Results ---")
		if err := report.Generate(cfg.ResultsDir, "table", out, tax, cfg.Sampling.Seed); err != nil {
			return err
		}
	}
	if led != nil {
		if err := printLedgerTotals(cmd, out, led); err != nil {
			return err
		}
	}
	if m != nil {
		path := outputPath(cfg.ResultsDir, cfg.Outputs.MetricsFile)
		if err := m.WriteFile(path); err != nil {
			return err
		}
		logger.Info("wrote metrics", zap.String("path", path))
	}
	if n := len(run.Errors); n > 0 {
		return fmt.Errorf("%d of %d configuration(s) failed", n, len(keys))
	}
	return nil
}

func openLedger(cfg *config.Config) (*ledger.Ledger, error) {
	prices := pricing.Default()
	if cfg.Judge.PricingFile != "" {
		var err error
		if prices, err = pricing.Load(cfg.Judge.PricingFile); err != nil {
			return nil, err
		}
	}
	return ledger.Open(filepath.Join(cfg.ResultsDir, ledger.DefaultFile), ledger.Options{
		Provider: cfg.Judge.Provider,
		Model:    cfg.Judge.Model,
		Prices:   prices,
		Logger:   logger,
	})
}

func printLedgerTotals(cmd *cobra.Command, out io.Writer, led *ledger.Ledger) error {
	t, err := led.Totals(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nJudge calls: %d (%d failed), tokens in/out: %d/%d, est. cost $%.4f (run %s)\n",
		t.Calls, t.FailedCalls, t.InputTokens, t.OutputTokens, t.CostUSD, led.RunID())
	return nil
}

// outputPath places bare file names in the results directory.
func outputPath(dir, name string) string {
	if filepath.IsAbs(name) || filepath.Dir(name) != "." {
		return name
	}
	return filepath.Join(dir, name)
}

// selectKeys returns the configurations for every requested model size,
// narrowed by optional domain and strategy filters and ordered by name.
func selectKeys(files []trajectory.File, sizes []string, domain, strategy string) ([]trajectory.Key, error) {
	var wantDomain trajectory.Domain
	if domain != "" {
		d, err := trajectory.ParseDomain(domain)
		if err != nil {
			return nil, err
		}
		wantDomain = d
	}
	var wantStrategy trajectory.Strategy
	if strategy != "" {
		s, err := trajectory.ParseStrategy(strategy)
		if err != nil {
			return nil, err
		}
		wantStrategy = s
	}

	seen := map[trajectory.Key]bool{}
	var keys []trajectory.Key
	for _, size := range sizes {
		for _, k := range trajectory.Keys(files, size) {
			if seen[k] {
				continue
			}
			if wantDomain != "" && k.Domain != wantDomain {
				continue
			}
			if wantStrategy != "" && k.Strategy != wantStrategy {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name() < keys[j].Name() })
	return keys, nil
}

// existingResults lists the stored documents a forced run would replace.
func existingResults(dir string, keys []trajectory.Key) []string {
	var out []string
	for _, k := range keys {
		path := result.DocumentPath(dir, k)
		if _, err := os.Stat(path); err == nil {
			out = append(out, path)
		}
	}
	return out
}
