// Package loadgen fans synthetic acquire/release cycles out across a worker
// pool against a live registry.Table, for exercising pool contention and
// wait-queue behaviour outside of a production caller.
package loadgen

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vpbank/connpool/internal/registry"
)

// Job describes one acquire/release cycle to run against the table.
type Job struct {
	IP      string
	Port    uint16
	Timeout time.Duration
	// Hold is how long to keep the node checked out before releasing it,
	// simulating a caller doing work with the connection.
	Hold time.Duration
}

// Result reports the outcome of one Job.
type Result struct {
	Job   Job
	Err   error
	Wait  time.Duration
	Start time.Time
}

// WorkerPool fans Jobs out to N worker goroutines, each of which performs a
// registry.TimedGet/Put round-trip and reports the outcome on output. The
// job-channel/worker-goroutine shape mirrors a fan-out dispatcher; here the
// work unit is an acquire/release cycle instead of a poll.
type WorkerPool struct {
	numWorkers int
	table      *registry.Table
	output     chan<- Result
	logger     *slog.Logger

	jobs chan Job
	wg   sync.WaitGroup
}

// NewWorkerPool creates a pool of numWorkers goroutines that run Jobs
// against table and send results to output.
func NewWorkerPool(numWorkers int, table *registry.Table, output chan<- Result, logger *slog.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 10
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		table:      table,
		output:     output,
		logger:     logger,
		jobs:       make(chan Job, numWorkers*2),
	}
}

// Start launches the worker goroutines. They run until ctx is cancelled or
// Stop is called.
func (w *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.worker(ctx)
	}
}

// Submit enqueues a job. It blocks if the internal job channel is full.
func (w *WorkerPool) Submit(job Job) {
	w.jobs <- job
}

// TrySubmit enqueues a job without blocking. Returns false if the channel is
// full, letting the caller drop or defer the job instead of stalling.
func (w *WorkerPool) TrySubmit(job Job) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop closes the job channel and waits for all workers to drain.
func (w *WorkerPool) Stop() {
	close(w.jobs)
	w.wg.Wait()
}

func (w *WorkerPool) worker(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			w.run(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (w *WorkerPool) run(ctx context.Context, job Job) {
	start := time.Now()
	n, err := registry.TimedGet(ctx, w.table, job.IP, job.Port, job.Timeout)
	wait := time.Since(start)
	if err != nil {
		w.logger.Warn("loadgen: acquire failed", "ip", job.IP, "port", job.Port, "error", err.Error())
		w.emit(ctx, Result{Job: job, Err: err, Wait: wait, Start: start})
		return
	}

	if job.Hold > 0 {
		select {
		case <-time.After(job.Hold):
		case <-ctx.Done():
		}
	}
	registry.Put(n, registry.OpGet)
	w.emit(ctx, Result{Job: job, Wait: wait, Start: start})
}

func (w *WorkerPool) emit(ctx context.Context, r Result) {
	if w.output == nil {
		return
	}
	select {
	case w.output <- r:
	case <-ctx.Done():
	}
}
