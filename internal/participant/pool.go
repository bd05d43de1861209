package participant

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many of the invite tasks submitted to it run at once, per
// spec.md §4.G ("invite tasks run on a bounded worker pool"). Each
// Conference owns its own Pool.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool allowing up to concurrency tasks to run at once.
func NewPool(concurrency int64) *Pool {
	return &Pool{sem: semaphore.NewWeighted(concurrency)}
}

// Submit runs fn in its own goroutine once a pool slot is free, or
// immediately invokes fn with ctx's error if ctx is cancelled first while
// waiting for a slot.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context)) {
	go func() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			fn(ctx)
			return
		}
		defer p.sem.Release(1)
		fn(ctx)
	}()
}
