package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobhunter/aggregator-service/internal/breaker"
)

var errFetch = errors.New("fetch failed")

func failing(context.Context) error { return errFetch }
func succeeding(context.Context) error { return nil }

func TestOpensAfterThreshold(t *testing.T) {
	b := breaker.New("adzuna", 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, failing); !errors.Is(err, errFetch) {
			t.Fatalf("call %d: got %v, want %v", i, err, errFetch)
		}
	}

	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("state = %v, want open", got)
	}
	if err := b.Execute(ctx, succeeding); !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("open breaker returned %v, want ErrOpen", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := breaker.New("jobs-ch", 3, time.Minute)
	ctx := context.Background()

	b.Execute(ctx, failing)
	b.Execute(ctx, failing)
	b.Execute(ctx, succeeding)
	b.Execute(ctx, failing)
	b.Execute(ctx, failing)

	if got := b.State(); got != breaker.StateClosed {
		t.Fatalf("state = %v, want closed after interleaved success", got)
	}
}

func TestHalfOpenProbeRecovers(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := breaker.NewWithClock("adzuna", 2, time.Minute, clock.Now)
	ctx := context.Background()

	b.Execute(ctx, failing)
	b.Execute(ctx, failing)
	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	clock.Advance(59 * time.Second)
	if err := b.Execute(ctx, succeeding); !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("before timeout: got %v, want ErrOpen", err)
	}

	clock.Advance(2 * time.Second)
	if got := b.State(); got != breaker.StateHalfOpen {
		t.Fatalf("state = %v, want half_open after timeout", got)
	}
	if err := b.Execute(ctx, succeeding); err != nil {
		t.Fatalf("probe: got %v, want nil", err)
	}
	if got := b.State(); got != breaker.StateClosed {
		t.Fatalf("state = %v, want closed after probe success", got)
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := breaker.NewWithClock("adzuna", 2, time.Minute, clock.Now)
	ctx := context.Background()

	b.Execute(ctx, failing)
	b.Execute(ctx, failing)
	clock.Advance(61 * time.Second)

	if err := b.Execute(ctx, failing); !errors.Is(err, errFetch) {
		t.Fatalf("probe: got %v, want underlying error", err)
	}
	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("state = %v, want open after failed probe", got)
	}
	// Full timeout must elapse again before the next probe.
	clock.Advance(30 * time.Second)
	if err := b.Execute(ctx, succeeding); !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("got %v, want ErrOpen before second timeout", err)
	}
}

func TestReset(t *testing.T) {
	b := breaker.New("adzuna", 1, time.Hour)
	b.Execute(context.Background(), failing)
	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("state = %v, want open", got)
	}
	b.Reset()
	if got := b.State(); got != breaker.StateClosed {
		t.Fatalf("state = %v, want closed after reset", got)
	}
	if err := b.Execute(context.Background(), succeeding); err != nil {
		t.Fatalf("after reset: got %v, want nil", err)
	}
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time            { return c.t }
func (c *fakeClock) Advance(d time.Duration)   { c.t = c.t.Add(d) }
