// Package breaker implements a per-source circuit breaker for outbound calls.
//
// States: CLOSED → OPEN (after N consecutive failures) → HALF_OPEN (after
// recovery timeout, one probe allowed) → CLOSED on probe success, back to
// OPEN on probe failure.
//
// The breaker protects against transient technical failure (timeouts, 5xx).
// Policy permission is the Compliance Gate's job; both must pass before a
// call is attempted.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned when the circuit is open and calls fail fast.
var ErrOpen = errors.New("circuit breaker is open")

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is safe for concurrent use by parallel page-fetches of the same
// source. The zero value is not usable; construct with New.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration

	now func() time.Time // injectable for tests

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
	probeInFlight   bool
}

// New creates a breaker for one source. Non-positive arguments fall back to
// threshold 5 and timeout 60s.
func New(name string, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 60 * time.Second
	}
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
		state:            StateClosed,
	}
}

// NewWithClock is New with a custom time source, for tests that need to
// step through the recovery timeout deterministically.
func NewWithClock(name string, failureThreshold int, recoveryTimeout time.Duration, now func() time.Time) *Breaker {
	b := New(name, failureThreshold, recoveryTimeout)
	if now != nil {
		b.now = now
	}
	return b
}

// Execute runs fn through the breaker. When OPEN it returns ErrOpen without
// invoking fn; in HALF_OPEN only a single probe call is admitted at a time.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	b.afterCall(err)
	return err
}

// State returns the current state, applying the OPEN → HALF_OPEN timeout
// transition lazily the way the call path does.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Reset manually returns the breaker to CLOSED.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.probeInFlight = false
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()

	switch b.state {
	case StateOpen:
		remaining := b.recoveryTimeout - b.now().Sub(b.lastFailureTime)
		return fmt.Errorf("%w: source %s, retry in %s", ErrOpen, b.name, remaining.Round(time.Second))
	case StateHalfOpen:
		if b.probeInFlight {
			return fmt.Errorf("%w: source %s, probe already in flight", ErrOpen, b.name)
		}
		b.probeInFlight = true
	}
	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probeInFlight = false

	if err != nil {
		b.failureCount++
		b.lastFailureTime = b.now()
		if b.state == StateHalfOpen || b.failureCount >= b.failureThreshold {
			b.state = StateOpen
		}
		return
	}

	b.failureCount = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
	}
}

// maybeHalfOpen transitions OPEN → HALF_OPEN once the recovery timeout has
// elapsed. Caller must hold b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.lastFailureTime) >= b.recoveryTimeout {
		b.state = StateHalfOpen
	}
}
