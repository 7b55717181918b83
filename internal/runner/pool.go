// Package runner runs independent per-configuration jobs with bounded
// parallelism.
package runner

import (
	"context"

	"golang.org/x/sync/semaphore"
)

type Job func(ctx context.Context) error

// RunPool executes jobs with at most maxWorkers concurrently and returns
// every job error in job order. Once ctx is done no further job starts and
// ctx's error is reported once in place of them.
func RunPool(ctx context.Context, maxWorkers int, jobs []Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	sem := semaphore.NewWeighted(int64(maxWorkers))
	errs := make([]error, len(jobs))
	var stopped error

	for i, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			stopped = err
			break
		}
		go func(i int, j Job) {
			defer sem.Release(1)
			errs[i] = j(ctx)
		}(i, job)
	}
	// Wait for in-flight jobs by taking every slot.
	_ = sem.Acquire(context.Background(), int64(maxWorkers))

	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	if stopped != nil {
		out = append(out, stopped)
	}
	return out
}
