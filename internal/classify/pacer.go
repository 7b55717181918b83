package classify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer is shared by every worker calling the judge. A call starts no
// sooner than delay after the previous call started and no sooner than
// delay after the previous call finished, so a slow call is still followed
// by a full pause.
type Pacer struct {
	delay   time.Duration
	limiter *rate.Limiter

	mu       sync.Mutex
	finished time.Time
}

// NewPacer returns a pacer for the given delay. A zero delay disables pacing.
func NewPacer(delay time.Duration) *Pacer {
	p := &Pacer{delay: delay, limiter: rate.NewLimiter(rate.Inf, 1)}
	if delay > 0 {
		p.limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return p
}

// Wait blocks until the next call may start.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.delay <= 0 {
		return ctx.Err()
	}
	p.mu.Lock()
	until := p.finished.Add(p.delay)
	p.mu.Unlock()
	if wait := time.Until(until); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return p.limiter.Wait(ctx)
}

// Done marks the end of a call; the next one waits a full delay from now.
func (p *Pacer) Done() {
	if p.delay <= 0 {
		return
	}
	p.mu.Lock()
	p.finished = time.Now()
	p.mu.Unlock()
}
