// Package worker runs the pipeline's background jobs on a fixed pool of
// goroutines with a bounded queue. Scheduler ticks only enqueue; a full
// queue drops the tick and the job runs again on its next cadence.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Submit when the queue cannot take the job.
var ErrQueueFull = errors.New("worker: queue full")

// Job is a single unit of background work. Timeout bounds one run; on
// expiry the job's context is cancelled and the run counts as failed.
type Job struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Pool executes Jobs on a fixed number of workers.
type Pool struct {
	queue   chan Job
	workers int
	log     *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewPool sizes the pool. Non-positive arguments fall back to 4 workers
// and a queue of 32.
func NewPool(workers, queueSize int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Pool{
		queue:   make(chan Job, queueSize),
		workers: workers,
		log:     log,
	}
}

// Start launches the workers. The pool drains until Stop is called or ctx
// is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx)
	}
	p.log.Info("worker pool started",
		zap.Int("workers", p.workers),
		zap.Int("queue", cap(p.queue)))
}

// Submit enqueues a job without blocking. A full queue or a stopped pool
// returns ErrQueueFull; the caller's cadence is the retry.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return ErrQueueFull
	}

	select {
	case p.queue <- job:
		return nil
	default:
		p.log.Warn("job dropped, queue full", zap.String("job", job.Name))
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.queue)
	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.log.Info("worker pool stopped")
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			p.runOne(ctx, job)
		}
	}
}

// runOne executes a job under its deadline, recovering panics so one bad
// job cannot take a worker down.
func (p *Pool) runOne(ctx context.Context, job Job) {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return job.Run(ctx)
	}()

	elapsed := time.Since(start)
	switch {
	case err != nil:
		p.log.Error("job failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	default:
		p.log.Info("job done",
			zap.String("job", job.Name),
			zap.Duration("elapsed", elapsed))
	}
}
