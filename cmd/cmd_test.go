package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/signalnine/triage/internal/config"
	"github.com/signalnine/triage/internal/ledger"
	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/trajectory"
	"github.com/signalnine/triage/internal/trajectory/trajectorytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reactAirline = trajectory.Key{Strategy: trajectory.StrategyReAct, Domain: trajectory.DomainAirline, ModelSize: "14b"}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func scenarioRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	trajectorytest.WriteFile(t, root, "react_airline_trials5_qwen_14b/trajectories.json", trajectorytest.Scenario())
	return root
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "triage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSelectKeys(t *testing.T) {
	files := []trajectory.File{
		{Path: "a", Key: trajectory.Key{Strategy: trajectory.StrategyReAct, Domain: trajectory.DomainAirline, ModelSize: "14b"}},
		{Path: "b", Key: trajectory.Key{Strategy: trajectory.StrategyACT, Domain: trajectory.DomainRetail, ModelSize: "14b"}},
		{Path: "c", Key: trajectory.Key{Strategy: trajectory.StrategyFunctionCalling, Domain: trajectory.DomainAirline, ModelSize: "4b"}},
		{Path: "d", Key: trajectory.Key{Strategy: trajectory.StrategyReAct, Domain: trajectory.DomainAirline, ModelSize: "14b"}},
	}

	tests := []struct {
		name     string
		sizes    []string
		domain   string
		strategy string
		want     []string
	}{
		{"one size", []string{"14b"}, "", "", []string{"14b_ACT_retail", "14b_ReAct_airline"}},
		{"all sizes", []string{""}, "", "", []string{"14b_ACT_retail", "14b_ReAct_airline", "4b_FC_airline"}},
		{"several sizes", []string{"4b", "14b"}, "", "", []string{"14b_ACT_retail", "14b_ReAct_airline", "4b_FC_airline"}},
		{"domain filter", []string{""}, "airline", "", []string{"14b_ReAct_airline", "4b_FC_airline"}},
		{"strategy alias", []string{""}, "", "tool-calling", []string{"4b_FC_airline"}},
		{"no match", []string{"32b"}, "", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := selectKeys(files, tt.sizes, tt.domain, tt.strategy)
			require.NoError(t, err)
			var got []string
			for _, k := range keys {
				got = append(got, k.Name())
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := selectKeys(files, []string{""}, "banking", "")
	assert.Error(t, err)
	_, err = selectKeys(files, []string{""}, "", "cot")
	assert.Error(t, err)
}

func TestApplyClassifyFlags(t *testing.T) {
	cmd := newClassifyCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--provider", "openai", "--model-size", "4B", "--sample-size", "20",
		"--seed", "7", "--delay", "1s", "--parallel", "3", "--ledger",
	}))
	cfg := config.Default()
	cfg.Judge.Model = "claude-custom"
	require.NoError(t, applyClassifyFlags(cmd, cfg))

	assert.Equal(t, "openai", cfg.Judge.Provider)
	assert.Equal(t, "gpt-4o", cfg.Judge.Model, "provider override resets a model not given on the command line")
	assert.Equal(t, []string{"4b"}, cfg.ModelSizes)
	assert.Equal(t, 20, cfg.Sampling.Size)
	assert.EqualValues(t, 7, cfg.Sampling.Seed)
	assert.Equal(t, 3, cfg.Parallel)
	assert.True(t, cfg.Outputs.Ledger)
	assert.Equal(t, filepath.Join("phase1", "JSON_trajectories"), cfg.TrajectoriesDir)

	bad := newClassifyCmd()
	require.NoError(t, bad.ParseFlags([]string{"--parallel", "0"}))
	assert.Error(t, applyClassifyFlags(bad, config.Default()))

	zero := newClassifyCmd()
	require.NoError(t, zero.ParseFlags([]string{"--seed", "0"}))
	cfg = config.Default()
	require.NoError(t, applyClassifyFlags(zero, cfg))
	assert.Zero(t, cfg.Sampling.Seed)

	all := newClassifyCmd()
	require.NoError(t, all.ParseFlags([]string{"--model-size", "all"}))
	cfg = config.Default()
	require.NoError(t, applyClassifyFlags(all, cfg))
	assert.Equal(t, []string{""}, cfg.ModelSizes)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("results", "metrics.prom"), outputPath("results", "metrics.prom"))
	assert.Equal(t, filepath.Join("out", "m.prom"), outputPath("results", filepath.Join("out", "m.prom")))
	assert.Equal(t, "/tmp/m.prom", outputPath("results", "/tmp/m.prom"))
}

func TestClassifyDryRun(t *testing.T) {
	root := scenarioRoot(t)
	out := filepath.Join(t.TempDir(), "results")

	stdout, err := execute(t, "classify", "--trajectory-dir", root, "--output-dir", out, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, stdout, "14b_ReAct_airline: 50 records, 26 successes, 4 crashes, 20 failures (18 unique, 18 sampled)")
	assert.Contains(t, stdout, "## User's Goal")
	assert.NotContains(t, stdout, "--- Results ---")
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err), "dry run must not create the output dir")
}

func TestClassifyMissingTrajectoryDir(t *testing.T) {
	_, err := execute(t, "classify", "--trajectory-dir", filepath.Join(t.TempDir(), "nope"), "--dry-run")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestClassifyEndToEnd(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{
				"content": `{"primary_category": "wrong_tool", "sub_category": "cancel", "explanation": "Called cancel."}`,
			}}},
			"usage": map[string]int{"prompt_tokens": 100, "completion_tokens": 10},
		})
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "results")
	cfgPath := writeConfig(t, "judge:\n  provider: gateway\n  base_url: "+srv.URL+"\n  delay: 1ms\n")
	args := []string{"--config", cfgPath, "classify", "--trajectory-dir", scenarioRoot(t), "--output-dir", out,
		"--sample-size", "5", "--ledger", "--metrics-file", "metrics.prom"}

	stdout, err := execute(t, args...)
	require.NoError(t, err)
	assert.EqualValues(t, 5, calls.Load())
	assert.Contains(t, stdout, "--- Results ---")
	assert.Contains(t, stdout, "5 (100.0%)")
	assert.Contains(t, stdout, "Judge calls: 5 (0 failed), tokens in/out: 500/50")

	doc, err := result.ReadDocument(result.DocumentPath(out, reactAirline))
	require.NoError(t, err)
	assert.Len(t, doc.Classifications, 5)
	assert.Equal(t, "gateway", doc.Judge.Provider)
	assert.FileExists(t, filepath.Join(out, result.CombinedSummaryFile))
	assert.FileExists(t, filepath.Join(out, ledger.DefaultFile))
	metrics, err := os.ReadFile(filepath.Join(out, "metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "triage_judge_calls_total")

	// A complete re-run makes no calls.
	_, err = execute(t, args...)
	require.NoError(t, err)
	assert.EqualValues(t, 5, calls.Load())
}

func TestClassifyForceDeclined(t *testing.T) {
	root := scenarioRoot(t)
	out := t.TempDir()
	require.NoError(t, result.WriteJSON(result.DocumentPath(out, reactAirline), &result.Document{Config: reactAirline.Name()}))

	var asked string
	old := promptConfirm
	promptConfirm = func(_ io.Reader, _ io.Writer, question string) bool {
		asked = question
		return false
	}
	defer func() { promptConfirm = old }()

	_, err := execute(t, "classify", "--trajectory-dir", root, "--output-dir", out, "--force")
	assert.ErrorIs(t, err, errAborted)
	assert.Contains(t, asked, "Discard stored results for 1 configuration(s)")
}

func TestCrashesCommand(t *testing.T) {
	cfgPath := writeConfig(t, "trajectories_dir: "+scenarioRoot(t)+"\n")

	stdout, err := execute(t, "--config", cfgPath, "crashes", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, stdout, "14b_ReAct_airline")

	htmlPath := filepath.Join(t.TempDir(), "crashes.html")
	stdout, err = execute(t, "--config", cfgPath, "crashes", "--format", "html", "--output", htmlPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "(4 crashes in 50 entries)")
	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<table>")

	_, err = execute(t, "--config", cfgPath, "crashes", "--format", "pdf")
	assert.Error(t, err)
}

func TestListCommand(t *testing.T) {
	out := t.TempDir()
	cfgPath := writeConfig(t, "trajectories_dir: "+scenarioRoot(t)+"\nresults_dir: "+out+"\n")

	stdout, err := execute(t, "--config", cfgPath, "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "react_airline_trials5_qwen_14b/trajectories.json")
	assert.Contains(t, stdout, "14b_ReAct_airline")

	doc := &result.Document{
		Config:          reactAirline.Name(),
		Sampling:        result.Sampling{TaskIDs: []int{30, 31, 32}},
		Classifications: []result.Classification{{TaskID: 30}},
	}
	require.NoError(t, result.WriteJSON(result.DocumentPath(out, reactAirline), doc))
	stdout, err = execute(t, "--config", cfgPath, "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1/3 classified")
}

func labelled(category string, status result.Status) *result.Document {
	return &result.Document{
		Config:   reactAirline.Name(),
		Key:      reactAirline,
		Sampling: result.Sampling{TaskIDs: []int{30}},
		Summary:  result.Summary{category: {Count: 1, Percentage: 100}},
		Classifications: []result.Classification{{
			TaskID:   30,
			Judgment: result.Judgment{PrimaryCategory: category, Status: status, Attempts: 1},
		}},
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, result.WriteJSON(result.DocumentPath(dir, reactAirline), labelled("wrong_tool", result.StatusClassified)))
	stdout, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "All labels conform")

	require.NoError(t, result.WriteJSON(result.DocumentPath(dir, reactAirline), labelled("tool_misuse", result.StatusClassified)))
	stdout, err = execute(t, "validate", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 label issue(s)")
	assert.Contains(t, stdout, "off_taxonomy")

	stdout, err = execute(t, "validate", "--json", dir)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(stdout), "{"))

	_, err = execute(t, "validate", t.TempDir())
	assert.ErrorContains(t, err, "no result documents")
}

func TestReportCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, result.WriteJSON(result.DocumentPath(dir, reactAirline), labelled("wrong_tool", result.StatusClassified)))

	stdout, err := execute(t, "report", dir, "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, stdout, "## By domain")
	assert.Contains(t, stdout, "1 (100.0%)")
}
