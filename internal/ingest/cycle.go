package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobhunter/aggregator-service/internal/model"
)

// ProfileSource lists the profiles eligible for matching.
type ProfileSource interface {
	List(ctx context.Context) ([]model.UserProfile, error)
}

// Matcher runs the two-stage matching pipeline for one profile.
type Matcher interface {
	Run(ctx context.Context, profile *model.UserProfile) ([]model.MatchResult, error)
}

// MatchSink persists a cycle's results.
type MatchSink interface {
	InsertBatch(ctx context.Context, results []model.MatchResult) error
}

// Alerter delivers pushes and digests after a cycle. alert.Controller
// implements it.
type Alerter interface {
	PushAlerts(ctx context.Context, userID string, since time.Time) (int, error)
	SendDigest(ctx context.Context, userID string, since time.Time, limit int) (int, error)
}

// CycleConfig tunes the matching cycle runner.
type CycleConfig struct {
	AlertLookback time.Duration // how far back PushAlerts scans for unnotified matches
	DigestWindow  time.Duration
	DigestLimit   int
}

// Cycle drives matching and digest runs across all eligible users.
type Cycle struct {
	profiles ProfileSource
	engine   Matcher
	sink     MatchSink
	alerts   Alerter
	cfg      CycleConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewCycle(profiles ProfileSource, engine Matcher, sink MatchSink, alerts Alerter, cfg CycleConfig, log *zap.Logger) *Cycle {
	if cfg.AlertLookback <= 0 {
		cfg.AlertLookback = 24 * time.Hour
	}
	if cfg.DigestWindow <= 0 {
		cfg.DigestWindow = 24 * time.Hour
	}
	if cfg.DigestLimit <= 0 {
		cfg.DigestLimit = 20
	}
	return &Cycle{
		profiles: profiles,
		engine:   engine,
		sink:     sink,
		alerts:   alerts,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// RunMatching matches every eligible profile against the posting corpus,
// persists the results and pushes high-score alerts. Per-user failures are
// logged and the cycle moves on.
func (c *Cycle) RunMatching(ctx context.Context) error {
	profiles, err := c.profiles.List(ctx)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}

	var matched, stored, pushed int
	for i := range profiles {
		p := &profiles[i]
		results, err := c.engine.Run(ctx, p)
		if err != nil {
			c.log.Warn("matching failed", zap.String("user", p.UserID), zap.Error(err))
			continue
		}
		if len(results) == 0 {
			continue
		}
		matched++

		if err := c.sink.InsertBatch(ctx, results); err != nil {
			c.log.Warn("persist matches failed", zap.String("user", p.UserID), zap.Error(err))
			continue
		}
		stored += len(results)

		n, err := c.alerts.PushAlerts(ctx, p.UserID, c.now().Add(-c.cfg.AlertLookback))
		if err != nil {
			c.log.Warn("push alerts failed", zap.String("user", p.UserID), zap.Error(err))
			continue
		}
		pushed += n
	}

	c.log.Info("matching cycle done",
		zap.Int("profiles", len(profiles)),
		zap.Int("matched", matched),
		zap.Int("results", stored),
		zap.Int("alerts", pushed))
	return nil
}

// RunDigest sends every user their daily summary.
func (c *Cycle) RunDigest(ctx context.Context) error {
	profiles, err := c.profiles.List(ctx)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}

	var sent int
	since := c.now().Add(-c.cfg.DigestWindow)
	for i := range profiles {
		p := &profiles[i]
		n, err := c.alerts.SendDigest(ctx, p.UserID, since, c.cfg.DigestLimit)
		if err != nil {
			c.log.Warn("digest failed", zap.String("user", p.UserID), zap.Error(err))
			continue
		}
		if n > 0 {
			sent++
		}
	}

	c.log.Info("digest cycle done", zap.Int("profiles", len(profiles)), zap.Int("digests", sent))
	return nil
}
