// Package compliance enforces per-source access policy. Every outbound
// fetch passes through the Gate first: a source must be explicitly allowed,
// robots-clean, and inside its hourly request budget before a single byte
// is requested. Technical failure handling (timeouts, 5xx) is the circuit
// breaker's job, not the gate's.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobhunter/aggregator-service/internal/model"
)

// ErrPolicyBlocked is returned when a source may not be contacted by policy.
// It is terminal for the cycle: no retry, no breaker involvement.
var ErrPolicyBlocked = errors.New("source blocked by compliance policy")

// ErrBudgetExhausted is returned when the source's hourly request budget is
// spent. The cycle skips the source and the budget refills on the hour.
var ErrBudgetExhausted = errors.New("hourly request budget exhausted")

// BlockThreshold is the number of consecutive upstream blocks after which a
// source with auto-disable set is switched off until a human re-enables it.
const BlockThreshold = 3

// TOSReviewWindow is how long a terms-of-service review stays fresh.
const TOSReviewWindow = 180 * 24 * time.Hour

// RecordStore persists per-source compliance records.
type RecordStore interface {
	Get(ctx context.Context, sourceKey string) (*model.SourceComplianceRecord, error)
	List(ctx context.Context) ([]model.SourceComplianceRecord, error)
	RecordBlock(ctx context.Context, sourceKey string, at time.Time) (consecutiveBlocks int, err error)
	ResetBlocks(ctx context.Context, sourceKey string) error
	Disable(ctx context.Context, sourceKey string) error
}

// RequestBudget tracks per-source request counts within the current hour.
// TakeRequest returns the count after taking one slot.
type RequestBudget interface {
	TakeRequest(ctx context.Context, sourceKey string, hour time.Time) (int64, error)
}

// RedisBudget shares one hourly counter per source across all workers.
type RedisBudget struct {
	rdb *redis.Client
}

func NewRedisBudget(rdb *redis.Client) *RedisBudget {
	return &RedisBudget{rdb: rdb}
}

func (b *RedisBudget) TakeRequest(ctx context.Context, sourceKey string, hour time.Time) (int64, error) {
	key := fmt.Sprintf("compliance:budget:%s:%s", sourceKey, hour.UTC().Format("2006010215"))
	n, err := b.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		// First reservation of the hour sets the expiry.
		b.rdb.Expire(ctx, key, time.Hour)
	}
	return n, nil
}

// Gate is the single authority on whether a source may be contacted.
type Gate struct {
	store  RecordStore
	budget RequestBudget
	log    *zap.Logger
	now    func() time.Time
}

func NewGate(store RecordStore, budget RequestBudget, log *zap.Logger) *Gate {
	return &Gate{store: store, budget: budget, log: log, now: time.Now}
}

// Check returns nil when the source may be contacted. A missing record, a
// disabled source, or a robots.txt violation all map to ErrPolicyBlocked.
func (g *Gate) Check(ctx context.Context, sourceKey string) error {
	rec, err := g.store.Get(ctx, sourceKey)
	if err != nil {
		return fmt.Errorf("load compliance record for %s: %w", sourceKey, err)
	}
	if rec == nil {
		return fmt.Errorf("%w: %s has no compliance record", ErrPolicyBlocked, sourceKey)
	}
	if !rec.Allowed {
		return fmt.Errorf("%w: %s is disabled", ErrPolicyBlocked, sourceKey)
	}
	if !rec.RobotsOK {
		return fmt.Errorf("%w: %s fails robots.txt", ErrPolicyBlocked, sourceKey)
	}
	return nil
}

// ReserveRequest consumes one unit of the source's hourly budget and
// returns the minimum delay the caller must observe before the next request
// to the same source. The counter lives in Redis keyed per source and hour
// so concurrent workers share a single budget.
func (g *Gate) ReserveRequest(ctx context.Context, sourceKey string) (time.Duration, error) {
	rec, err := g.store.Get(ctx, sourceKey)
	if err != nil {
		return 0, fmt.Errorf("load compliance record for %s: %w", sourceKey, err)
	}
	if rec == nil {
		return 0, nil
	}
	delay := time.Duration(rec.RateLimitSeconds * float64(time.Second))
	if rec.MaxRequestsPerHour <= 0 {
		return delay, nil // no budget configured
	}

	n, err := g.budget.TakeRequest(ctx, sourceKey, g.now())
	if err != nil {
		return 0, fmt.Errorf("reserve request for %s: %w", sourceKey, err)
	}
	if n > int64(rec.MaxRequestsPerHour) {
		return 0, fmt.Errorf("%w: %s used %d/%d this hour", ErrBudgetExhausted, sourceKey, n, rec.MaxRequestsPerHour)
	}
	return delay, nil
}

// ReportBlock records that the upstream refused us (403 or equivalent).
// Hitting BlockThreshold consecutive blocks on an auto-disable source kills
// the source until a human flips it back on.
func (g *Gate) ReportBlock(ctx context.Context, sourceKey string) error {
	blocks, err := g.store.RecordBlock(ctx, sourceKey, g.now())
	if err != nil {
		return fmt.Errorf("record block for %s: %w", sourceKey, err)
	}
	g.log.Warn("source reported a block",
		zap.String("source", sourceKey),
		zap.Int("consecutive_blocks", blocks))

	if blocks < BlockThreshold {
		return nil
	}
	rec, err := g.store.Get(ctx, sourceKey)
	if err != nil {
		return fmt.Errorf("load compliance record for %s: %w", sourceKey, err)
	}
	if rec != nil && rec.AutoDisableOnBlock && rec.Allowed {
		if err := g.store.Disable(ctx, sourceKey); err != nil {
			return fmt.Errorf("disable %s: %w", sourceKey, err)
		}
		g.log.Error("source auto-disabled after repeated blocks",
			zap.String("source", sourceKey),
			zap.Int("consecutive_blocks", blocks))
	}
	return nil
}

// ReportSuccess resets the consecutive block counter after a clean fetch.
func (g *Gate) ReportSuccess(ctx context.Context, sourceKey string) error {
	if err := g.store.ResetBlocks(ctx, sourceKey); err != nil {
		return fmt.Errorf("reset blocks for %s: %w", sourceKey, err)
	}
	return nil
}

// SourceStatus is the operator-facing view of one source's posture.
type SourceStatus struct {
	model.SourceComplianceRecord
	TOSReviewStale bool `json:"tosReviewStale"`
}

// Status lists all sources with staleness flags for the health surface.
func (g *Gate) Status(ctx context.Context) ([]SourceStatus, error) {
	recs, err := g.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list compliance records: %w", err)
	}
	out := make([]SourceStatus, 0, len(recs))
	for _, rec := range recs {
		stale := rec.TOSReviewedAt == nil || g.now().Sub(*rec.TOSReviewedAt) > TOSReviewWindow
		out = append(out, SourceStatus{SourceComplianceRecord: rec, TOSReviewStale: stale})
	}
	return out, nil
}
