package validation_test

import (
	"bytes"
	"testing"

	"github.com/signalnine/triage/internal/report"
	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/taxonomy"
	"github.com/signalnine/triage/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classification(taskID int, status result.Status, category string) result.Classification {
	return result.Classification{
		TaskID:   taskID,
		Judgment: result.Judgment{PrimaryCategory: category, Status: status, Attempts: 1},
	}
}

func document(config string, sampled []int, cs ...result.Classification) *result.Document {
	summary, flagged := report.Summarize(cs)
	return &result.Document{
		Config:          config,
		Sampling:        result.Sampling{Seed: 42, SampleSize: 50, TaskIDs: sampled},
		Summary:         summary,
		Flagged:         flagged,
		Classifications: cs,
	}
}

func TestCheckClean(t *testing.T) {
	doc := document("14b_ReAct_airline", []int{1, 2, 3, 4},
		classification(1, result.StatusClassified, "wrong_tool"),
		classification(2, result.StatusUnclassified, taxonomy.Unclassified),
		classification(3, result.StatusFailed, taxonomy.ClassificationFailed),
	)
	audit := validation.Check([]*result.Document{doc}, taxonomy.Default())
	assert.True(t, audit.OK())
	require.Len(t, audit.Configs, 1)
	assert.Equal(t, 3, audit.Configs[0].Results)
	assert.Equal(t, 1, audit.Configs[0].Pending)
	assert.Equal(t, result.Flagged{Unclassified: 1, ClassificationFailed: 1}, audit.Configs[0].Flagged)
}

func TestCheckFindsIssues(t *testing.T) {
	tax, err := taxonomy.New([]taxonomy.Category{{Name: "wrong_tool", Description: "d"}})
	require.NoError(t, err)

	doc := document("14b_FC_retail", []int{1, 2, 3},
		classification(1, result.StatusClassified, "wrong_tool"),
		classification(1, result.StatusClassified, "wrong_tool"),
		classification(2, result.StatusClassified, "policy_violation"),
		classification(3, result.StatusUnclassified, "wrong_tool"),
		classification(9, result.StatusClassified, "wrong_tool"),
		classification(4, "pending", "wrong_tool"),
	)
	audit := validation.Check([]*result.Document{doc}, tax)
	require.False(t, audit.OK())

	kinds := map[validation.IssueKind][]int{}
	for _, i := range audit.Issues() {
		kinds[i.Kind] = append(kinds[i.Kind], i.TaskID)
	}
	assert.Equal(t, []int{1}, kinds[validation.DuplicateTask])
	assert.Equal(t, []int{2}, kinds[validation.OffTaxonomy])
	assert.Equal(t, []int{3, 4}, kinds[validation.StatusMismatch])
	assert.Equal(t, []int{9, 4}, kinds[validation.UnsampledTask])
	assert.Empty(t, kinds[validation.StaleSummary])
}

func TestCheckStaleSummary(t *testing.T) {
	doc := document("4b_ACT_airline", []int{1, 2},
		classification(1, result.StatusClassified, "wrong_tool"),
		classification(2, result.StatusClassified, "wrong_tool"),
	)
	doc.Summary["wrong_tool"] = result.CategoryStat{Count: 1, Percentage: 100}

	issues := validation.Check([]*result.Document{doc}, taxonomy.Default()).Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, validation.StaleSummary, issues[0].Kind)
	assert.Equal(t, validation.DocumentLevel, issues[0].TaskID)
	assert.Contains(t, issues[0].String(), "4b_ACT_airline: stale_summary")
}

func TestCheckEmptyDocument(t *testing.T) {
	doc := &result.Document{Config: "14b_ACT_retail"}
	assert.True(t, validation.Check([]*result.Document{doc}, taxonomy.Default()).OK())
}

func TestWrite(t *testing.T) {
	good := document("14b_ACT_retail", []int{1}, classification(1, result.StatusClassified, "wrong_tool"))
	var buf bytes.Buffer
	require.NoError(t, validation.Check([]*result.Document{good}, taxonomy.Default()).Write(&buf))
	assert.Contains(t, buf.String(), "CONFIGURATION")
	assert.Contains(t, buf.String(), "All labels conform")

	bad := document("14b_ACT_airline", []int{1}, classification(1, result.StatusClassified, "made_up"))
	buf.Reset()
	require.NoError(t, validation.Check([]*result.Document{bad}, taxonomy.Default()).Write(&buf))
	assert.Contains(t, buf.String(), "1 issue(s): off_taxonomy=1")
	assert.Contains(t, buf.String(), `14b_ACT_airline task 1: off_taxonomy: category "made_up" is not in the taxonomy`)
}
