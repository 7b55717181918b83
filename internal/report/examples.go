package report

import (
	"sort"

	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/taxonomy"
	"github.com/signalnine/triage/internal/trajectory"
)

// ExamplesPerCategory is how many examples each category gets by default.
const ExamplesPerCategory = 5

type Example struct {
	Config             string              `json:"config"`
	TaskID             int                 `json:"task_id"`
	Trial              int                 `json:"trial"`
	Instruction        string              `json:"instruction"`
	GroundTruthActions []trajectory.Action `json:"ground_truth_actions"`
	AgentActions       []trajectory.Action `json:"agent_actions"`
	Classification     result.Judgment     `json:"classification"`
}

// SelectExamples picks up to n results for every taxonomy category, ordered
// by configuration name and then task id.
func SelectExamples(docs []*result.Document, tax *taxonomy.Registry, n int) map[string][]Example {
	out := make(map[string][]Example, tax.Len())
	for _, name := range tax.Names() {
		out[name] = []Example{}
	}
	ordered := append([]*result.Document(nil), docs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Config < ordered[j].Config })
	for _, d := range ordered {
		cs := append([]result.Classification(nil), d.Classifications...)
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].TaskID < cs[j].TaskID })
		for _, c := range cs {
			cat := c.Category()
			picked, ok := out[cat]
			if !ok || len(picked) >= n {
				continue
			}
			out[cat] = append(picked, Example{
				Config:             d.Config,
				TaskID:             c.TaskID,
				Trial:              c.Trial,
				Instruction:        c.Instruction,
				GroundTruthActions: c.GroundTruthActions,
				AgentActions:       c.AgentActions,
				Classification:     c.Judgment,
			})
		}
	}
	return out
}
