package ledger_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/triage/internal/classify"
	"github.com/signalnine/triage/internal/judge"
	"github.com/signalnine/triage/internal/ledger"
	"github.com/signalnine/triage/internal/pricing"
	"github.com/signalnine/triage/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerTotals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ledger.DefaultFile)
	l, err := ledger.Open(path, ledger.Options{Provider: "openai", Model: "gpt-4o", Prices: pricing.Default()})
	require.NoError(t, err)
	defer l.Close()
	assert.NotEmpty(t, l.RunID())

	ctx := context.Background()
	l.RecordCall(ctx, classify.Call{Config: "14b_ReAct_airline", TaskID: 1, Attempt: 1, Err: errors.New("API returned 503")})
	l.RecordCall(ctx, classify.Call{Config: "14b_ReAct_airline", TaskID: 1, Attempt: 2, Duration: time.Second,
		Usage: judge.Usage{InputTokens: 2000, OutputTokens: 100}})
	l.RecordResult("14b_ReAct_airline", result.Classification{TaskID: 1, Judgment: result.Judgment{
		PrimaryCategory: "wrong_tool", Status: result.StatusClassified, Attempts: 2}})

	totals, err := l.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Calls)
	assert.Equal(t, 1, totals.FailedCalls)
	assert.Equal(t, 2000, totals.InputTokens)
	assert.Equal(t, 100, totals.OutputTokens)
	assert.InDelta(t, 0.006, totals.CostUSD, 1e-9)

	counts, err := l.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[result.Status]int{result.StatusClassified: 1}, counts)
}

func TestLedgerRunsAreSeparate(t *testing.T) {
	path := filepath.Join(t.TempDir(), ledger.DefaultFile)
	first, err := ledger.Open(path, ledger.Options{Provider: "gateway", Model: "gpt-4o"})
	require.NoError(t, err)
	first.RecordCall(context.Background(), classify.Call{Config: "c", TaskID: 1, Attempt: 1})
	require.NoError(t, first.Close())

	second, err := ledger.Open(path, ledger.Options{Provider: "gateway", Model: "gpt-4o"})
	require.NoError(t, err)
	defer second.Close()
	assert.NotEqual(t, first.RunID(), second.RunID())

	totals, err := second.Totals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, totals.Calls)
}
