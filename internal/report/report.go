package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/taxonomy"
)

// Generate reads every configuration document in dir and writes the
// combined views in the requested format.
func Generate(dir, format string, w io.Writer, tax *taxonomy.Registry, seed int64) error {
	docs, err := result.ReadDocuments(dir)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no classification results in %s", dir)
	}
	combined := Combine(docs, seed)

	switch format {
	case "markdown":
		return writeMarkdown(combined, tax, w)
	case "json":
		return writeJSON(combined, w)
	default:
		return writeTable(combined, tax, w)
	}
}

// WriteOutputs writes the combined summary and the representative examples
// next to the per-configuration documents.
func WriteOutputs(dir string, docs []*result.Document, tax *taxonomy.Registry, seed int64) error {
	if err := result.WriteJSON(filepath.Join(dir, result.CombinedSummaryFile), Combine(docs, seed)); err != nil {
		return err
	}
	examples := SelectExamples(docs, tax, ExamplesPerCategory)
	return result.WriteJSON(filepath.Join(dir, result.ExamplesDir, result.ExamplesFile), examples)
}

type section struct {
	title string
	views map[string]View
}

func sections(c *Combined) []section {
	return []section{
		{"Configuration", c.Configurations},
		{"Domain", c.ByDomain},
		{"Strategy", c.ByStrategy},
		{"Model size", c.ByModelSize},
	}
}

// rows lists taxonomy categories first, then any stored label the current
// taxonomy no longer knows.
func rows(views map[string]View, tax *taxonomy.Registry) []string {
	names := tax.Names()
	extra := map[string]bool{}
	for _, v := range views {
		for cat := range v.Summary {
			if !tax.Contains(cat) {
				extra[cat] = true
			}
		}
	}
	var extras []string
	for cat := range extra {
		extras = append(extras, cat)
	}
	sort.Strings(extras)
	return append(names, extras...)
}

func groupNames(views map[string]View) []string {
	names := make([]string, 0, len(views))
	for n := range views {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func cell(v View, cat string) string {
	s, ok := v.Summary[cat]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%d (%.1f%%)", s.Count, s.Percentage)
}

func writeTable(c *Combined, tax *taxonomy.Registry, w io.Writer) error {
	for i, sec := range sections(c) {
		if i > 0 {
			fmt.Fprintln(w)
		}
		groups := groupNames(sec.views)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\t%s\n", strings.ToUpper(sec.title), strings.Join(groups, "\t"))
		fmt.Fprintln(tw, strings.Repeat("-", 80))
		for _, cat := range rows(sec.views, tax) {
			cells := make([]string, len(groups))
			for j, g := range groups {
				cells[j] = cell(sec.views[g], cat)
			}
			fmt.Fprintf(tw, "%s\t%s\n", cat, strings.Join(cells, "\t"))
		}
		writeFlagged(tw, sec.views, groups, "\t", "%s\t%s\n")
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func writeFlagged(w io.Writer, views map[string]View, groups []string, sep, format string) {
	unclassified := make([]string, len(groups))
	failed := make([]string, len(groups))
	totals := make([]string, len(groups))
	for j, g := range groups {
		unclassified[j] = fmt.Sprint(views[g].Flagged.Unclassified)
		failed[j] = fmt.Sprint(views[g].Flagged.ClassificationFailed)
		totals[j] = fmt.Sprint(views[g].Total)
	}
	fmt.Fprintf(w, format, taxonomy.Unclassified, strings.Join(unclassified, sep))
	fmt.Fprintf(w, format, taxonomy.ClassificationFailed, strings.Join(failed, sep))
	fmt.Fprintf(w, format, "total", strings.Join(totals, sep))
}

func writeMarkdown(c *Combined, tax *taxonomy.Registry, w io.Writer) error {
	for _, sec := range sections(c) {
		groups := groupNames(sec.views)
		fmt.Fprintf(w, "## By %s\n\n", strings.ToLower(sec.title))
		fmt.Fprintf(w, "| Category | %s |\n", strings.Join(groups, " | "))
		fmt.Fprintf(w, "|---|%s\n", strings.Repeat("---|", len(groups)))
		for _, cat := range rows(sec.views, tax) {
			cells := make([]string, len(groups))
			for j, g := range groups {
				cells[j] = cell(sec.views[g], cat)
			}
			fmt.Fprintf(w, "| %s | %s |\n", cat, strings.Join(cells, " | "))
		}
		writeFlagged(w, sec.views, groups, " | ", "| %s | %s |\n")
		fmt.Fprintln(w)
	}
	return nil
}

func writeJSON(c *Combined, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
