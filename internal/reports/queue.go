package reports

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Job is a unit of background validation work.
type Job func(ctx context.Context)

// Queue accepts fire-and-forget jobs. Enqueue reports whether the job was
// accepted; a full queue drops the job, and a report whose validation never
// runs simply stays pending.
type Queue interface {
	Enqueue(job Job) bool
}

// WorkerPool consumes jobs with bounded concurrency. There is no durable
// backing store: jobs in flight when the process stops are lost.
type WorkerPool struct {
	jobs    chan Job
	workers int
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool with the given worker count and queue depth.
func NewWorkerPool(workers, depth int, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if depth <= 0 {
		depth = 64
	}
	return &WorkerPool{
		jobs:    make(chan Job, depth),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. Jobs run with a context that is cancelled
// when the pool stops.
func (p *WorkerPool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					job(ctx)
				}
			}
		}()
	}
}

// Enqueue hands a job to the pool without blocking.
func (p *WorkerPool) Enqueue(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		p.logger.Warn("validation queue full, dropping job")
		return false
	}
}

// Stop cancels in-flight jobs and waits for the workers to exit.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}
