package runner_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalnine/triage/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool(t *testing.T) {
	var count, running, peak atomic.Int32
	jobs := make([]runner.Job, 10)
	for i := range jobs {
		jobs[i] = func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			count.Add(1)
			return nil
		}
	}
	errs := runner.RunPool(context.Background(), 3, jobs)
	assert.Empty(t, errs)
	assert.Equal(t, int32(10), count.Load())
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPoolWithErrors(t *testing.T) {
	jobs := []runner.Job{
		func(context.Context) error { return nil },
		func(context.Context) error { return fmt.Errorf("config b failed") },
		func(context.Context) error { return fmt.Errorf("config c failed") },
	}
	errs := runner.RunPool(context.Background(), 2, jobs)
	require.Len(t, errs, 2)
	assert.EqualError(t, errs[0], "config b failed")
	assert.EqualError(t, errs[1], "config c failed")
}

func TestPoolCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var started atomic.Int32
	jobs := make([]runner.Job, 5)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) error {
			started.Add(1)
			cancel()
			<-ctx.Done()
			return nil
		}
	}
	errs := runner.RunPool(ctx, 1, jobs)
	assert.Equal(t, int32(1), started.Load())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}
