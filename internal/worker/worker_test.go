package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"jobhunter/aggregator-service/internal/worker"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := worker.NewPool(2, 8, zap.NewNop())
	p.Start(context.Background())

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		err := p.Submit(worker.Job{
			Name: "count",
			Run: func(context.Context) error {
				atomic.AddInt32(&ran, 1)
				wg.Done()
				return nil
			},
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()
	p.Stop()

	if got := atomic.LoadInt32(&ran); got != 5 {
		t.Fatalf("ran %d jobs, want 5", got)
	}
}

func TestSubmitFullQueue(t *testing.T) {
	p := worker.NewPool(1, 1, zap.NewNop())
	p.Start(context.Background())
	defer p.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	p.Submit(worker.Job{Name: "blocker", Run: func(context.Context) error {
		close(started)
		<-block
		return nil
	}})
	<-started // worker busy; queue slot still free

	if err := p.Submit(worker.Job{Name: "queued", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("queueing into free slot: %v", err)
	}
	if err := p.Submit(worker.Job{Name: "dropped", Run: func(context.Context) error { return nil }}); !errors.Is(err, worker.ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	close(block)
}

func TestJobDeadline(t *testing.T) {
	p := worker.NewPool(1, 4, zap.NewNop())
	p.Start(context.Background())
	defer p.Stop()

	done := make(chan error, 1)
	p.Submit(worker.Job{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			done <- ctx.Err()
			return ctx.Err()
		},
	})

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("ctx err = %v, want DeadlineExceeded", err)
		}
	case <-time.After(time.Second):
		t.Fatal("job never saw its deadline")
	}
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	p := worker.NewPool(1, 4, zap.NewNop())
	p.Start(context.Background())
	defer p.Stop()

	p.Submit(worker.Job{Name: "bad", Run: func(context.Context) error {
		panic("boom")
	}})

	survived := make(chan struct{})
	p.Submit(worker.Job{Name: "after", Run: func(context.Context) error {
		close(survived)
		return nil
	}})

	select {
	case <-survived:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}
}

func TestSubmitAfterStop(t *testing.T) {
	p := worker.NewPool(1, 4, zap.NewNop())
	p.Start(context.Background())
	p.Stop()

	if err := p.Submit(worker.Job{Name: "late", Run: func(context.Context) error { return nil }}); !errors.Is(err, worker.ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}
