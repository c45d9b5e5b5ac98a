// Package pool is a bounded worker pool: the coordinator's asynchronous
// application step and the batch dispatcher's fan-out share one pool.
// golang.org/x/sync's semaphore.Weighted backs the slot accounting, with
// explicit task submission rather than future-chaining.
package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

type Pool struct {
	sem *semaphore.Weighted
}

func New(size int) *Pool {
	if size <= 0 {
		size = 10
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Submit blocks until a slot is free or ctx is cancelled, then runs fn on a
// new goroutine holding that slot. Submit itself does not block on fn's
// completion — callers that need the result use a channel or WaitGroup of
// their own. Slot acquisition happens before any transaction the task itself
// might open, so no caller holds a database transaction open while waiting
// for a pool slot.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context)) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer p.sem.Release(1)
		fn(ctx)
	}()
	return nil
}

// Run blocks the caller until fn completes, but still occupies exactly one
// pool slot for the duration — used by the batch dispatcher, which needs
// each intent's result before returning the aggregated batch.
func (p *Pool) Run(ctx context.Context, fn func(context.Context)) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	fn(ctx)
	return nil
}
