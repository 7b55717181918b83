// Package triage separates trial records into successes, infrastructure
// crashes and behavioral failures.
package triage

import (
	"fmt"

	"github.com/signalnine/triage/internal/trajectory"
)

// Failure is a behavioral failure: the agent ran to completion and got the
// task wrong.
type Failure struct {
	Key    trajectory.Key
	Record trajectory.TrialRecord
}

func (f Failure) TaskID() int { return f.Record.TaskID }

func (f Failure) Trial() int { return f.Record.Trial }

// Partition holds the three disjoint subsets of one configuration's records.
type Partition struct {
	Key       trajectory.Key
	Successes []trajectory.TrialRecord
	Crashes   []CrashRecord
	Failures  []Failure
}

func (p *Partition) Total() int {
	return len(p.Successes) + len(p.Crashes) + len(p.Failures)
}

// UniqueTasks counts distinct task ids across all three subsets.
func (p *Partition) UniqueTasks() int {
	seen := map[int]struct{}{}
	for _, r := range p.Successes {
		seen[r.TaskID] = struct{}{}
	}
	for _, c := range p.Crashes {
		seen[c.TaskID] = struct{}{}
	}
	for _, f := range p.Failures {
		seen[f.Record.TaskID] = struct{}{}
	}
	return len(seen)
}

// UniqueFailures counts distinct task ids among behavioral failures.
func (p *Partition) UniqueFailures() int {
	seen := map[int]struct{}{}
	for _, f := range p.Failures {
		seen[f.Record.TaskID] = struct{}{}
	}
	return len(seen)
}

// CrashCounts tallies crashes by kind.
func (p *Partition) CrashCounts() map[CrashKind]int {
	counts := map[CrashKind]int{}
	for _, c := range p.Crashes {
		counts[c.Kind]++
	}
	return counts
}

// MalformedRecordError reports a record that fits none of the three
// subsets. It fails the whole configuration.
type MalformedRecordError struct {
	Key    trajectory.Key
	Index  int
	TaskID int
	Trial  int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s: record %d (task %d, trial %d) is malformed: %s",
		e.Key.Name(), e.Index, e.TaskID, e.Trial, e.Reason)
}

// Split assigns every record to exactly one subset, preserving file order
// within each subset.
func Split(key trajectory.Key, records []trajectory.TrialRecord) (*Partition, error) {
	p := &Partition{Key: key}
	for i := range records {
		r := records[i]
		malformed := func(reason string) error {
			return &MalformedRecordError{Key: key, Index: i, TaskID: r.TaskID, Trial: r.Trial, Reason: reason}
		}
		switch {
		case r.HasError() && r.HasTask():
			return nil, malformed("both info.error and info.task are set")
		case r.HasError():
			p.Crashes = append(p.Crashes, NewCrashRecord(r))
		case !r.HasTask():
			return nil, malformed("neither info.error nor info.task is set")
		case r.Reward == nil:
			return nil, malformed("reward is missing")
		case *r.Reward == 1:
			p.Successes = append(p.Successes, r)
		case *r.Reward == 0:
			p.Failures = append(p.Failures, Failure{Key: key, Record: r})
		default:
			return nil, malformed(fmt.Sprintf("reward %v is neither 0 nor 1", *r.Reward))
		}
	}
	return p, nil
}
