package server

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// workerPool bounds the concurrency of asynchronous post-REFLEX work
// (Store writes, Chain sealing) so a burst of hook traffic cannot spawn
// an unbounded number of goroutines against the single-writer SQLite
// connection. A persistent channel-backed pool rather than a bounded
// fan-out, since this work runs for the life of the process.
type workerPool struct {
	jobs chan func()
	wg   sync.WaitGroup

	logger  *slog.Logger
	dropped atomic.Int64
}

// queueDepth bounds how much async work may be buffered before new jobs
// are dropped rather than blocking the caller's REFLEX response.
const queueDepth = 256

func newWorkerPool(size int, logger *slog.Logger) *workerPool {
	p := &workerPool{
		jobs:   make(chan func(), queueDepth),
		logger: logger,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *workerPool) run() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// Submit enqueues job for asynchronous execution. If the queue is full,
// the job is dropped and DroppedCount is incremented rather than blocking
// the synchronous REFLEX path that called Submit.
func (p *workerPool) Submit(job func()) {
	select {
	case p.jobs <- job:
	default:
		p.dropped.Add(1)
		p.logger.Warn("server: worker pool queue full, dropping persistence job")
	}
}

// DroppedCount returns the number of jobs dropped since startup due to a
// full queue, exposed via /health for operators to notice back-pressure.
func (p *workerPool) DroppedCount() int64 {
	return p.dropped.Load()
}

// Close stops accepting new jobs and waits for in-flight jobs to drain.
func (p *workerPool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
