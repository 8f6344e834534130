package scheduler

import (
	"context"
	"sync"
)

// workerPool runs submitted task runs on a fixed number of goroutines.
type workerPool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

// newWorkerPool starts workers goroutines draining the job queue.
func newWorkerPool(workers int) *workerPool {
	if workers < 1 {
		workers = 1
	}
	pool := &workerPool{jobs: make(chan func(), workers)}

	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}
	return pool
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// submit queues job, giving up when ctx is done first.
func (p *workerPool) submit(ctx context.Context, job func()) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown stops accepting jobs and waits for queued ones to finish.
// No submit may be in progress or follow.
func (p *workerPool) shutdown() {
	close(p.jobs)
	p.wg.Wait()
}
