// Package validation audits stored classification documents against a
// taxonomy, so results produced under an older category set or edited by
// hand can be caught before they are aggregated.
package validation

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/signalnine/triage/internal/report"
	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/taxonomy"
)

type IssueKind string

const (
	// OffTaxonomy is a classified result whose label the taxonomy does not know.
	OffTaxonomy    IssueKind = "off_taxonomy"
	StatusMismatch IssueKind = "status_mismatch"
	DuplicateTask  IssueKind = "duplicate_task"
	// UnsampledTask is a result for a task the recorded sample never drew.
	UnsampledTask IssueKind = "unsampled_task"
	StaleSummary  IssueKind = "stale_summary"
)

// DocumentLevel is the TaskID of issues that concern a whole document.
const DocumentLevel = -1

type Issue struct {
	Config string    `json:"config"`
	TaskID int       `json:"task_id"`
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
}

func (i Issue) String() string {
	if i.TaskID == DocumentLevel {
		return fmt.Sprintf("%s: %s: %s", i.Config, i.Kind, i.Detail)
	}
	return fmt.Sprintf("%s task %d: %s: %s", i.Config, i.TaskID, i.Kind, i.Detail)
}

// ConfigAudit is the audit of one document.
type ConfigAudit struct {
	Config  string         `json:"config"`
	Results int            `json:"results"`
	Pending int            `json:"pending"`
	Flagged result.Flagged `json:"flagged"`
	Issues  []Issue        `json:"issues"`
}

type Audit struct {
	Configs []ConfigAudit `json:"configurations"`
}

// Issues returns every issue across configurations, in document order.
func (a *Audit) Issues() []Issue {
	var out []Issue
	for _, c := range a.Configs {
		out = append(out, c.Issues...)
	}
	return out
}

func (a *Audit) OK() bool { return len(a.Issues()) == 0 }

// Check audits docs against tax. It never modifies the documents.
func Check(docs []*result.Document, tax *taxonomy.Registry) *Audit {
	audit := &Audit{Configs: make([]ConfigAudit, 0, len(docs))}
	for _, doc := range docs {
		audit.Configs = append(audit.Configs, checkDocument(doc, tax))
	}
	return audit
}

func checkDocument(doc *result.Document, tax *taxonomy.Registry) ConfigAudit {
	ca := ConfigAudit{Config: doc.Config, Results: len(doc.Classifications)}
	issue := func(taskID int, kind IssueKind, format string, args ...any) {
		ca.Issues = append(ca.Issues, Issue{Config: doc.Config, TaskID: taskID, Kind: kind, Detail: fmt.Sprintf(format, args...)})
	}

	sampled := make(map[int]bool, len(doc.Sampling.TaskIDs))
	for _, id := range doc.Sampling.TaskIDs {
		sampled[id] = true
	}
	seen := map[int]bool{}
	for _, c := range doc.Classifications {
		if seen[c.TaskID] {
			issue(c.TaskID, DuplicateTask, "task classified more than once")
		}
		seen[c.TaskID] = true
		if !sampled[c.TaskID] {
			issue(c.TaskID, UnsampledTask, "task is not in the recorded sample")
		}
		checkLabel(c.Judgment, tax, func(kind IssueKind, format string, args ...any) {
			issue(c.TaskID, kind, format, args...)
		})
	}
	for id := range sampled {
		if !seen[id] {
			ca.Pending++
		}
	}

	summary, flagged := report.Summarize(doc.Classifications)
	ca.Flagged = flagged
	if !cmp.Equal(doc.Summary, summary, cmpopts.EquateEmpty()) || doc.Flagged != flagged {
		issue(DocumentLevel, StaleSummary, "stored summary differs from its classifications: %s",
			cmp.Diff(doc.Summary, summary, cmpopts.EquateEmpty()))
	}
	return ca
}

func checkLabel(j result.Judgment, tax *taxonomy.Registry, issue func(IssueKind, string, ...any)) {
	cat := j.PrimaryCategory
	switch j.Status {
	case result.StatusClassified:
		if !tax.Contains(cat) {
			issue(OffTaxonomy, "category %q is not in the taxonomy", cat)
		}
	case result.StatusUnclassified:
		if cat != taxonomy.Unclassified {
			issue(StatusMismatch, "status %s with category %q", j.Status, cat)
		}
	case result.StatusFailed:
		if cat != taxonomy.ClassificationFailed {
			issue(StatusMismatch, "status %s with category %q", j.Status, cat)
		}
	default:
		issue(StatusMismatch, "unknown status %q", j.Status)
	}
}

// Write renders the audit as a per-configuration table followed by the
// issue list.
func (a *Audit) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONFIGURATION\tRESULTS\tPENDING\tUNCLASSIFIED\tFAILED\tISSUES")
	for _, c := range a.Configs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n",
			c.Config, c.Results, c.Pending, c.Flagged.Unclassified, c.Flagged.ClassificationFailed, len(c.Issues))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	issues := a.Issues()
	if len(issues) == 0 {
		_, err := fmt.Fprintln(w, "\nAll labels conform to the taxonomy.")
		return err
	}
	counts := map[IssueKind]int{}
	for _, i := range issues {
		counts[i.Kind]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	fmt.Fprintf(w, "\n%d issue(s):", len(issues))
	for _, k := range kinds {
		fmt.Fprintf(w, " %s=%d", k, counts[IssueKind(k)])
	}
	fmt.Fprintln(w)
	for _, i := range issues {
		if _, err := fmt.Fprintf(w, "  %s\n", i); err != nil {
			return err
		}
	}
	return nil
}
