// Package orchestrator coordinates the example workers and ties their
// lifetime to OS shutdown signals.
package orchestrator

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// WorkerFunc runs one worker's share of the workload. The worker should
// return early when ctx is cancelled.
type WorkerFunc func(ctx context.Context, workerID int) error

// WorkerPool runs a fixed number of concurrent workers to completion
type WorkerPool struct {
	workers int
}

// NewWorkerPool creates a pool of the given size, at least one worker
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{workers: workers}
}

// Size returns the number of workers the pool starts
func (wp *WorkerPool) Size() int {
	return wp.workers
}

// Run starts all workers and blocks until every one has returned. Workers
// are numbered from zero. The first error any worker returned is passed on
// after all of them finished; cancellation is signalled through ctx.
func (wp *WorkerPool) Run(ctx context.Context, fn WorkerFunc) error {
	log.Info().Int("workers", wp.workers).Msg("Starting workers...")

	var wg sync.WaitGroup
	errCh := make(chan error, wp.workers)

	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			if err := fn(ctx, workerID); err != nil {
				log.Error().
					Err(err).
					Int("worker", workerID).
					Msg("Worker exited with error")
				errCh <- err
				return
			}
			log.Info().Int("worker", workerID).Msg("Worker completed successfully")
		}(i)
	}

	wg.Wait()
	close(errCh)
	return <-errCh
}
