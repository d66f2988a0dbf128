// Package alert decides which fresh matches are worth interrupting a user
// for and delivers them. High-score matches push immediately, capped per
// user per day; everything else waits for the daily digest.
package alert

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobhunter/aggregator-service/internal/model"
)

// MatchSource is the persistence surface the controller reads and flags.
type MatchSource interface {
	UnnotifiedAbove(ctx context.Context, userID string, minScore float64, since time.Time) ([]model.MatchResult, error)
	MarkNotified(ctx context.Context, ids []string) error
	DigestSince(ctx context.Context, userID string, since time.Time, limit int) ([]model.MatchResult, error)
}

// Sender delivers alerts to the user-facing channel.
type Sender interface {
	Send(ctx context.Context, userID string, matches []model.MatchResult) error
	SendDigest(ctx context.Context, userID string, groups []DigestGroup) error
}

// DigestGroup is one company's block in the daily digest. Matches inside a
// group stay in score order.
type DigestGroup struct {
	Company string              `json:"company"`
	Matches []model.MatchResult `json:"matches"`
}

// DailyCounter tracks how many alerts a user received today.
type DailyCounter interface {
	// Add increments the user's daily count by n and returns the new total.
	Add(ctx context.Context, userID string, day time.Time, n int) (int64, error)
	// Current returns today's count without changing it.
	Current(ctx context.Context, userID string, day time.Time) (int64, error)
}

// Config bounds alerting per user.
type Config struct {
	MinScore float64 // immediate-push floor on the final score
	DailyCap int     // max pushes per user per day
}

// Controller applies the alert policy for all users.
type Controller struct {
	matches MatchSource
	sender  Sender
	counter DailyCounter
	cfg     Config
	log     *zap.Logger
	now     func() time.Time
}

func NewController(matches MatchSource, sender Sender, counter DailyCounter, cfg Config, log *zap.Logger) *Controller {
	return &Controller{matches: matches, sender: sender, counter: counter, cfg: cfg, log: log, now: time.Now}
}

// PushAlerts delivers a user's fresh high-score matches, respecting the
// daily cap. Matches are only flagged notified after a successful send, so
// a delivery failure retries next cycle.
func (c *Controller) PushAlerts(ctx context.Context, userID string, since time.Time) (int, error) {
	now := c.now()

	used, err := c.counter.Current(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("read alert count for %s: %w", userID, err)
	}
	remaining := c.cfg.DailyCap - int(used)
	if remaining <= 0 {
		return 0, nil
	}

	matches, err := c.matches.UnnotifiedAbove(ctx, userID, c.cfg.MinScore, since)
	if err != nil {
		return 0, fmt.Errorf("load unnotified matches for %s: %w", userID, err)
	}
	if len(matches) == 0 {
		return 0, nil
	}
	if len(matches) > remaining {
		matches = matches[:remaining]
	}

	if err := c.sender.Send(ctx, userID, matches); err != nil {
		return 0, fmt.Errorf("send alerts to %s: %w", userID, err)
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	if err := c.matches.MarkNotified(ctx, ids); err != nil {
		return 0, fmt.Errorf("mark notified for %s: %w", userID, err)
	}
	if _, err := c.counter.Add(ctx, userID, now, len(matches)); err != nil {
		c.log.Warn("alert counter update failed", zap.String("user", userID), zap.Error(err))
	}

	c.log.Info("alerts pushed",
		zap.String("user", userID),
		zap.Int("count", len(matches)),
		zap.Float64("top_score", matches[0].ScoreFinal))
	return len(matches), nil
}

// SendDigest delivers the daily summary of the user's best recent matches,
// grouped by company. The digest ignores the push cap and the notified flag.
func (c *Controller) SendDigest(ctx context.Context, userID string, since time.Time, limit int) (int, error) {
	matches, err := c.matches.DigestSince(ctx, userID, since, limit)
	if err != nil {
		return 0, fmt.Errorf("load digest for %s: %w", userID, err)
	}
	if len(matches) == 0 {
		return 0, nil
	}
	if err := c.sender.SendDigest(ctx, userID, groupByCompany(matches)); err != nil {
		return 0, fmt.Errorf("send digest to %s: %w", userID, err)
	}
	return len(matches), nil
}

// groupByCompany buckets matches by company, companies ordered by their best
// match, matches within a company kept in score order.
func groupByCompany(matches []model.MatchResult) []DigestGroup {
	var (
		groups []DigestGroup
		index  = make(map[string]int)
	)
	for _, m := range matches {
		i, ok := index[m.Company]
		if !ok {
			i = len(groups)
			index[m.Company] = i
			groups = append(groups, DigestGroup{Company: m.Company})
		}
		groups[i].Matches = append(groups[i].Matches, m)
	}
	return groups
}
