// Package bridge runs blocking work off the bubbletea Update loop and hands
// the result back as a tea.Msg.
//
// The Update loop owns all UI state and must never block on a syscall.
// Anything that spawns processes, dials sockets or waits on the daemon goes
// through Spawn, and its result crosses back into Update only as a message.
package bridge

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the pool size used when none is configured. The work is
// I/O bound, so two workers are plenty.
const DefaultWorkers = 2

// Executor schedules a task. Implementations must call task exactly once,
// passing a context that is cancelled when the task should stop.
type Executor interface {
	Execute(ctx context.Context, task func(context.Context))
}

// Pool is a fixed-size background worker pool. Tasks beyond the worker count
// wait for a free slot without blocking the submitter.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	size   int
}

// NewPool creates a pool with the given number of workers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
		size:   workers,
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Execute queues task. It returns immediately.
func (p *Pool) Execute(ctx context.Context, task func(context.Context)) {
	taskCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.ctx, cancel)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer stop()
		defer cancel()

		if err := p.sem.Acquire(taskCtx, 1); err != nil {
			// Still run the task so its handle resolves; it sees the
			// cancelled context and returns straight away.
			task(taskCtx)
			return
		}
		defer p.sem.Release(1)
		task(taskCtx)
	}()
}

// Close cancels every queued and running task and waits for them to return.
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
}

// Inline runs every task synchronously on the calling goroutine. Tests use it
// to make background work deterministic.
type Inline struct{}

// Execute runs task before returning.
func (Inline) Execute(ctx context.Context, task func(context.Context)) {
	task(ctx)
}
