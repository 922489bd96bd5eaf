package orchestrator

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// blockingPool bounds concurrent CPU-heavy work (Reed-Solomon decode on
// retrieval) so it runs off whatever goroutine called in but never exceeds
// a fixed concurrency, keeping a burst of GETs from starving the machine.
// Built on golang.org/x/sync/semaphore rather than a dedicated worker-pool
// library: x/sync is already a direct dependency for errgroup, and a
// weighted semaphore around ordinary goroutines is the whole of what a
// worker pool needs here.
type blockingPool struct {
	sem *semaphore.Weighted
}

func newBlockingPool(concurrency int64) *blockingPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &blockingPool{sem: semaphore.NewWeighted(concurrency)}
}

func (p *blockingPool) run(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return fn()
}
