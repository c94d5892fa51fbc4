package bulk

import (
	"context"
	"sync"
)

// WorkerPool runs batches on a fixed set of workers. Each batch is
// single-threaded; concurrency exists only across batches, and all
// cross-batch coordination happens in the database.
type WorkerPool struct {
	jobs    chan Job
	workers int
	once    sync.Once
}

func NewWorkerPool(workers, backlog int) *WorkerPool {
	if workers <= 0 {
		workers = 2
	}
	if backlog <= 0 {
		backlog = 16
	}
	return &WorkerPool{
		jobs:    make(chan Job, backlog),
		workers: workers,
	}
}

func (p *WorkerPool) Start(ctx context.Context) {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			go p.loop(ctx)
		}
	})
}

func (p *WorkerPool) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			// a running batch is never cancelled mid-flight; the job decides
			// what to do with ctx
			job(ctx)
		}
	}
}

func (p *WorkerPool) Enqueue(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}
