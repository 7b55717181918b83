package result

import (
	"github.com/signalnine/triage/internal/trajectory"
	"github.com/signalnine/triage/internal/triage"
)

type Status string

const (
	StatusClassified   Status = "classified"
	StatusUnclassified Status = "unclassified"
	StatusFailed       Status = "classification_failed"
)

// Classification is the persisted judgment for one sampled failure. Once
// written it is never modified except by a forced re-run.
type Classification struct {
	TaskID             int                 `json:"task_id"`
	Trial              int                 `json:"trial"`
	Instruction        string              `json:"instruction"`
	GroundTruthActions []trajectory.Action `json:"ground_truth_actions"`
	AgentActions       []trajectory.Action `json:"agent_actions"`
	Judgment           Judgment            `json:"classification"`
}

type Judgment struct {
	PrimaryCategory  string `json:"primary_category"`
	SubCategory      string `json:"sub_category"`
	Explanation      string `json:"explanation"`
	Status           Status `json:"status"`
	ReportedCategory string `json:"reported_category,omitempty"`
	Attempts         int    `json:"attempts"`
}

func (c Classification) Category() string { return c.Judgment.PrimaryCategory }

// Sampling records how the classified set was drawn, so a resumed run can
// tell whether it is continuing the same sample.
type Sampling struct {
	Seed       int64 `json:"seed"`
	SampleSize int   `json:"sample_size"`
	Subsampled bool  `json:"subsampled"`
	TaskIDs    []int `json:"task_ids"`
}

func (s Sampling) Equal(o Sampling) bool {
	if s.Seed != o.Seed || s.SampleSize != o.SampleSize || s.Subsampled != o.Subsampled || len(s.TaskIDs) != len(o.TaskIDs) {
		return false
	}
	for i := range s.TaskIDs {
		if s.TaskIDs[i] != o.TaskIDs[i] {
			return false
		}
	}
	return true
}

type Stats struct {
	TotalRecords          int                      `json:"total_records"`
	TotalTasks            int                      `json:"total_tasks"`
	Successes             int                      `json:"successes"`
	Crashes               int                      `json:"crashes"`
	CrashesByKind         map[triage.CrashKind]int `json:"crashes_by_kind"`
	TotalFailuresInSource int                      `json:"total_failures_in_source"`
	UniqueFailures        int                      `json:"unique_failures"`
	UniqueFailuresSampled int                      `json:"unique_failures_sampled"`
	Subsampled            bool                     `json:"subsampled"`
}

// CategoryStat is one row of a summary. Percentages are over valid
// categories only.
type CategoryStat struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type Summary map[string]CategoryStat

// Flagged counts results that landed in the reserved buckets.
type Flagged struct {
	Unclassified         int `json:"unclassified"`
	ClassificationFailed int `json:"classification_failed"`
}

type JudgeInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Document is the per-configuration output file.
type Document struct {
	Config          string           `json:"config"`
	Key             trajectory.Key   `json:"key"`
	File            string           `json:"file"`
	Judge           JudgeInfo        `json:"judge"`
	Sampling        Sampling         `json:"sampling"`
	Stats           Stats            `json:"stats"`
	Summary         Summary          `json:"summary"`
	Flagged         Flagged          `json:"flagged"`
	Classifications []Classification `json:"classifications"`
}

// Meta is the part of a Document fixed before classification starts.
type Meta struct {
	File     string
	Judge    JudgeInfo
	Sampling Sampling
}
