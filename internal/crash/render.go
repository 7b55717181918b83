package crash

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/triage/internal/triage"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var Formats = []string{"table", "markdown", "json", "html"}

// Write renders the report in one of Formats.
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case "table", "":
		return r.writeTable(w)
	case "markdown":
		return r.writeMarkdown(w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "html":
		return r.writeHTML(w)
	}
	return fmt.Errorf("unknown crash report format %q (want one of %v)", format, Formats)
}

var numbers = message.NewPrinter(language.English)

func pct(part, total int) string {
	if total == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", float64(part)/float64(total)*100)
}

func status(c Conversation) string {
	if c.Passed() {
		return "PASS"
	}
	return "FAIL"
}

func (r *Report) writeMarkdown(w io.Writer) error {
	p := func(format string, args ...any) { numbers.Fprintf(w, format+"\n", args...) }

	p("# Crash & Context Window Analysis")
	p("")
	p("Scanned **%d trajectory files** across %d model sizes.", len(r.Files), len(r.CrossModel))
	p("")
	t := r.Totals
	p("**Total entries:** %d | **Total crashes:** %d (%s) | Context window: %d | Timeout: %d | Other: %d",
		t.Total, t.Crashes, pct(t.Crashes, t.Total),
		t.ByKind[triage.CrashContextWindow], t.ByKind[triage.CrashTimeout], t.ByKind[triage.CrashOther])
	p("")

	p("## Per-File Summary")
	p("")
	p("| Config | Total | Normal | Crashes | Ctx Window | Timeout | Other |")
	p("|--------|-------|--------|---------|------------|---------|-------|")
	for _, f := range r.Files {
		p("| %s | %d | %d | %d | %d | %d | %d |", f.Config, f.Total, f.Normal, f.Crashes,
			f.ByKind[triage.CrashContextWindow], f.ByKind[triage.CrashTimeout], f.ByKind[triage.CrashOther])
	}
	p("")

	if overflows := r.Overflows(); len(overflows) > 0 {
		p("## Context Window Exceeded: Detail")
		p("")
		p("| Config | Task ID | Trial | Tokens Used | Token Limit | Over By |")
		p("|--------|---------|-------|-------------|-------------|---------|")
		for _, c := range overflows {
			p("| %s | %d | %d | %d | %d | +%d |", c.Config, c.TaskID, c.Trial, c.TokensUsed, c.TokenLimit, c.OverflowAmount)
		}
		p("")
	}

	if others := r.Others(); len(others) > 0 {
		p("## Other Crashes (Timeouts, Code Bugs)")
		p("")
		p("| Config | Task ID | Trial | Type | Error |")
		p("|--------|---------|-------|------|-------|")
		for _, c := range others {
			p("| %s | %d | %d | %s | %s |", c.Config, c.TaskID, c.Trial, c.Kind, strings.ReplaceAll(c.Short, "|", `\|`))
		}
		p("")
	}

	if sizes := r.ModelSizes(); len(sizes) > 1 {
		p("## Cross-Model Crash Rates")
		p("")
		p("| Model Size | Total Entries | Total Crashes | Crash Rate | Ctx Window | Timeout | Other |")
		p("|------------|---------------|---------------|------------|------------|---------|-------|")
		for _, s := range sizes {
			c := r.CrossModel[s]
			p("| %s | %d | %d | %s | %d | %d | %d |", strings.ToUpper(s), c.Total, c.Crashes, pct(c.Crashes, c.Total),
				c.ByKind[triage.CrashContextWindow], c.ByKind[triage.CrashTimeout], c.ByKind[triage.CrashOther])
		}
		p("")
	}

	p("## Top %d Longest Conversations (Potential Near-Limit)", LongestConversations)
	p("")
	p("| Config | Task ID | Trial | Turns | Reward |")
	p("|--------|---------|-------|-------|--------|")
	for _, c := range r.Longest {
		p("| %s | %d | %d | %d | %s |", c.Config, c.TaskID, c.Trial, c.Turns, status(c))
	}
	return nil
}

func (r *Report) writeTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	p := func(format string, args ...any) { numbers.Fprintf(tw, format+"\n", args...) }

	t := r.Totals
	p("FILES\t%d\tENTRIES\t%d\tCRASHES\t%d (%s)", len(r.Files), t.Total, t.Crashes, pct(t.Crashes, t.Total))
	p("")
	p("CONFIG\tTOTAL\tNORMAL\tCRASHES\tCTX WINDOW\tTIMEOUT\tOTHER")
	for _, f := range r.Files {
		p("%s\t%d\t%d\t%d\t%d\t%d\t%d", f.Config, f.Total, f.Normal, f.Crashes,
			f.ByKind[triage.CrashContextWindow], f.ByKind[triage.CrashTimeout], f.ByKind[triage.CrashOther])
	}
	if overflows := r.Overflows(); len(overflows) > 0 {
		p("")
		p("CONFIG\tTASK\tTRIAL\tTOKENS USED\tLIMIT\tOVER BY")
		for _, c := range overflows {
			p("%s\t%d\t%d\t%d\t%d\t+%d", c.Config, c.TaskID, c.Trial, c.TokensUsed, c.TokenLimit, c.OverflowAmount)
		}
	}
	if others := r.Others(); len(others) > 0 {
		p("")
		p("CONFIG\tTASK\tTRIAL\tTYPE\tERROR")
		for _, c := range others {
			p("%s\t%d\t%d\t%s\t%s", c.Config, c.TaskID, c.Trial, c.Kind, c.Short)
		}
	}
	if sizes := r.ModelSizes(); len(sizes) > 1 {
		p("")
		p("SIZE\tENTRIES\tCRASHES\tRATE")
		for _, s := range sizes {
			c := r.CrossModel[s]
			p("%s\t%d\t%d\t%s", s, c.Total, c.Crashes, pct(c.Crashes, c.Total))
		}
	}
	p("")
	p("CONFIG\tTASK\tTRIAL\tTURNS\tRESULT")
	for _, c := range r.Longest {
		p("%s\t%d\t%d\t%d\t%s", c.Config, c.TaskID, c.Trial, c.Turns, status(c))
	}
	return tw.Flush()
}

func (r *Report) writeHTML(w io.Writer) error {
	var md bytes.Buffer
	if err := r.writeMarkdown(&md); err != nil {
		return err
	}
	var body bytes.Buffer
	if err := goldmark.New(goldmark.WithExtensions(extension.Table)).Convert(md.Bytes(), &body); err != nil {
		return fmt.Errorf("rendering crash report: %w", err)
	}
	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>%s</title></head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString("Crash analysis: "+r.Root), body.String())
	return err
}
