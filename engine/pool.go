package engine

import (
	"context"
	"fmt"
	"sync"

	log "log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sharedcode/grader"
)

// Executor runs one queued run to completion. Cancellation arrives through
// ctx; the executor owns all persistence.
type Executor func(ctx context.Context, id grader.UUID)

// Pool drains a bounded FIFO queue of run UUIDs across a fixed set of
// workers. Each in-flight run holds a cancel func so deletion can abort it.
type Pool struct {
	workers int
	queue   chan grader.UUID
	exec    Executor

	mu      sync.Mutex
	cancels map[grader.UUID]context.CancelFunc
	closed  bool

	eg     *errgroup.Group
	cancel context.CancelFunc
}

func NewPool(workers, depth int, exec Executor) *Pool {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	return &Pool{
		workers: workers,
		queue:   make(chan grader.UUID, depth),
		exec:    exec,
		cancels: make(map[grader.UUID]context.CancelFunc),
	}
}

// Start launches the workers. Call once.
func (p *Pool) Start(ctx context.Context) {
	base, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	eg, _ := errgroup.WithContext(base)
	p.eg = eg
	for i := 0; i < p.workers; i++ {
		eg.Go(func() error {
			p.work(base)
			return nil
		})
	}
	log.Info("worker pool started", "workers", p.workers, "depth", cap(p.queue))
}

func (p *Pool) work(base context.Context) {
	for id := range p.queue {
		p.mu.Lock()
		if p.closed {
			// Shutdown drops still-queued runs; their records stay queued
			// in the store.
			p.mu.Unlock()
			continue
		}
		runCtx, cancel := context.WithCancel(base)
		p.cancels[id] = cancel
		p.mu.Unlock()

		p.exec(runCtx, id)

		p.mu.Lock()
		delete(p.cancels, id)
		p.mu.Unlock()
		cancel()
	}
}

// Enqueue hands a run to the pool without blocking. A full queue or a shut
// down pool returns Busy.
func (p *Pool) Enqueue(id grader.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return grader.Error{Code: grader.Busy, UserData: id.String(),
			Err: fmt.Errorf("worker pool is shut down")}
	}
	select {
	case p.queue <- id:
		return nil
	default:
		return grader.Error{Code: grader.Busy, UserData: id.String(),
			Err: fmt.Errorf("run queue is full")}
	}
}

// Cancel aborts the run's in-flight execution, if any. Queued runs are not
// cancelled here; the executor's state guard refuses them after deletion.
func (p *Pool) Cancel(id grader.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.cancels[id]
	if ok {
		cancel()
		delete(p.cancels, id)
	}
	return ok
}

// Shutdown closes intake, cancels in-flight runs and waits for the workers
// to drain, bounded by ctx. On deadline the pool's base context is cancelled
// so remaining executions abort through the sandbox kill path.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	for id, cancel := range p.cancels {
		cancel()
		delete(p.cancels, id)
	}
	p.mu.Unlock()

	if p.eg == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.eg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if p.cancel != nil {
			p.cancel()
		}
		return ctx.Err()
	}
}
