// Package sampler picks a bounded, reproducible subset of behavioral
// failures, one trial per task.
package sampler

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/signalnine/triage/internal/triage"
)

// Sample is the outcome of sampling one configuration's failures.
type Sample struct {
	Items []triage.Failure
	// UniqueFailures is the number of distinct failing task ids before
	// sampling.
	UniqueFailures int
	// Subsampled is false when every unique failure was kept.
	Subsampled bool
	Seed       int64
	Size       int
}

// TaskIDs returns the sampled task ids in processing order.
func (s *Sample) TaskIDs() []int {
	ids := make([]int, len(s.Items))
	for i, it := range s.Items {
		ids[i] = it.TaskID()
	}
	return ids
}

// Draw keeps one failure per task id (its lowest trial) and, when more than
// n task ids fail, selects n of them by ranking each id with a seeded hash.
// The result is ordered by task id and depends only on the set of failures,
// n and seed, never on input order or process state.
func Draw(failures []triage.Failure, n int, seed int64) *Sample {
	byTask := map[int]triage.Failure{}
	for _, f := range failures {
		cur, ok := byTask[f.TaskID()]
		if !ok || f.Trial() < cur.Trial() {
			byTask[f.TaskID()] = f
		}
	}

	ids := make([]int, 0, len(byTask))
	for id := range byTask {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	s := &Sample{UniqueFailures: len(ids), Seed: seed, Size: n}
	if n >= 0 && len(ids) > n {
		s.Subsampled = true
		sort.Slice(ids, func(i, j int) bool {
			ri, rj := rank(seed, ids[i]), rank(seed, ids[j])
			if ri != rj {
				return ri < rj
			}
			return ids[i] < ids[j]
		})
		ids = ids[:n]
		sort.Ints(ids)
	}

	s.Items = make([]triage.Failure, len(ids))
	for i, id := range ids {
		s.Items[i] = byTask[id]
	}
	return s
}

func rank(seed int64, taskID int) uint64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(seed))
	binary.BigEndian.PutUint64(buf[8:], uint64(int64(taskID)))
	sum := sha256.Sum256(buf[:])
	return binary.BigEndian.Uint64(sum[:8])
}
