// Package crash reports infrastructure crashes across every trajectory file:
// per-file counts, context-window overflow detail, other crashes, crash
// rates by model size and the longest surviving conversations.
package crash

import (
	"math"
	"sort"

	"github.com/signalnine/triage/internal/trajectory"
	"github.com/signalnine/triage/internal/triage"
)

// LongestConversations is how many long non-crashed trials are listed.
const LongestConversations = 10

type Counts struct {
	Total   int                      `json:"total_entries"`
	Normal  int                      `json:"normal_entries"`
	Crashes int                      `json:"total_crashes"`
	ByKind  map[triage.CrashKind]int `json:"by_kind"`
	// RatePct is Crashes over Total, in percent with two decimals.
	RatePct float64 `json:"crash_rate_pct"`
}

func (c *Counts) add(o Counts) {
	c.Total += o.Total
	c.Normal += o.Normal
	c.Crashes += o.Crashes
	for k, n := range o.ByKind {
		c.ByKind[k] += n
	}
}

func (c *Counts) finish() {
	if c.Total > 0 {
		c.RatePct = math.Round(float64(c.Crashes)/float64(c.Total)*10000) / 100
	}
}

func newCounts() Counts { return Counts{ByKind: map[triage.CrashKind]int{}} }

type FileSummary struct {
	Config string         `json:"config"`
	Key    trajectory.Key `json:"key"`
	File   string         `json:"file"`
	Counts
}

// Crash is one crashed trial with its configuration.
type Crash struct {
	Config string `json:"config"`
	triage.CrashRecord
}

type Conversation struct {
	Config string   `json:"config"`
	TaskID int      `json:"task_id"`
	Trial  int      `json:"trial"`
	Turns  int      `json:"turns"`
	Reward *float64 `json:"reward"`
}

// Passed reports whether the trial earned full reward.
func (c Conversation) Passed() bool { return c.Reward != nil && *c.Reward == 1 }

type Report struct {
	Root       string            `json:"root"`
	Totals     Counts            `json:"totals"`
	Files      []FileSummary     `json:"per_file"`
	Crashes    []Crash           `json:"crashes"`
	CrossModel map[string]Counts `json:"cross_model"`
	Longest    []Conversation    `json:"longest_conversations"`
}

// ModelSizes lists the sizes present, sorted.
func (r *Report) ModelSizes() []string {
	sizes := make([]string, 0, len(r.CrossModel))
	for s := range r.CrossModel {
		sizes = append(sizes, s)
	}
	sort.Strings(sizes)
	return sizes
}

// Overflows returns the context-window crashes.
func (r *Report) Overflows() []Crash {
	var out []Crash
	for _, c := range r.Crashes {
		if c.Kind == triage.CrashContextWindow {
			out = append(out, c)
		}
	}
	return out
}

// Others returns every crash that is not a context-window overflow.
func (r *Report) Others() []Crash {
	var out []Crash
	for _, c := range r.Crashes {
		if c.Kind != triage.CrashContextWindow {
			out = append(out, c)
		}
	}
	return out
}

// Analyze scans every trajectory file under root, optionally restricted to
// one model size. Unlike classification it tolerates records that are
// neither crashes nor well-formed tasks; they count as normal entries.
func Analyze(root, modelSize string) (*Report, error) {
	files, err := trajectory.Discover(root)
	if err != nil {
		return nil, err
	}
	modelSize = trajectory.NormalizeModelSize(modelSize)

	r := &Report{Root: root, Totals: newCounts(), CrossModel: map[string]Counts{}}
	var conversations []Conversation
	for _, f := range files {
		if modelSize != "" && f.Key.ModelSize != modelSize {
			continue
		}
		records, err := trajectory.LoadFile(f.Path)
		if err != nil {
			return nil, err
		}
		fs := FileSummary{Config: f.Key.Name(), Key: f.Key, File: f.Path, Counts: newCounts()}
		fs.Total = len(records)
		for _, rec := range records {
			if rec.HasError() {
				c := triage.NewCrashRecord(rec)
				fs.Crashes++
				fs.ByKind[c.Kind]++
				r.Crashes = append(r.Crashes, Crash{Config: fs.Config, CrashRecord: c})
				continue
			}
			fs.Normal++
			conversations = append(conversations, Conversation{
				Config: fs.Config, TaskID: rec.TaskID, Trial: rec.Trial, Turns: len(rec.Traj), Reward: rec.Reward,
			})
		}
		fs.finish()
		r.Files = append(r.Files, fs)
		r.Totals.add(fs.Counts)

		size := r.CrossModel[f.Key.ModelSize]
		if size.ByKind == nil {
			size = newCounts()
		}
		size.add(fs.Counts)
		r.CrossModel[f.Key.ModelSize] = size
	}
	r.Totals.finish()
	for s, c := range r.CrossModel {
		c.finish()
		r.CrossModel[s] = c
	}

	sort.SliceStable(conversations, func(i, j int) bool { return conversations[i].Turns > conversations[j].Turns })
	if len(conversations) > LongestConversations {
		conversations = conversations[:LongestConversations]
	}
	r.Longest = conversations
	return r, nil
}
