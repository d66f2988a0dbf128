// Package scheduler wires robfig/cron to the worker pool. Cron entries
// never run pipeline work themselves; each tick enqueues a job and a full
// queue just means that tick is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"jobhunter/aggregator-service/internal/worker"
)

// Scheduler dispatches recurring jobs onto the pool.
type Scheduler struct {
	cron *cron.Cron
	pool *worker.Pool
	log  *zap.Logger
}

func New(pool *worker.Pool, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		pool: pool,
		log:  log,
	}
}

// Register adds a cron entry that enqueues job on every tick. Accepts the
// standard five-field specs plus @every/@hourly shorthands.
func (s *Scheduler) Register(spec string, job worker.Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.pool.Submit(job); err != nil {
			if errors.Is(err, worker.ErrQueueFull) {
				s.log.Warn("tick skipped",
					zap.String("job", job.Name),
					zap.String("spec", spec))
				return
			}
			s.log.Error("enqueue failed", zap.String("job", job.Name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("register %q (%s): %w", job.Name, spec, err)
	}
	s.log.Info("job scheduled", zap.String("job", job.Name), zap.String("spec", spec))
	return nil
}

// Start begins ticking. Jobs already registered fire on their next
// scheduled time; nothing runs immediately.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop halts ticking and waits for any enqueue callbacks in flight. Work
// already on the pool keeps running; stopping the pool is the caller's job.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.log.Info("scheduler stopped")
	return ctx
}
