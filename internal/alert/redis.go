package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobhunter/aggregator-service/internal/model"
)

// RedisSender publishes alerts on per-user pub/sub channels; downstream
// delivery surfaces (SSE bridges, bots) subscribe there.
type RedisSender struct {
	rdb *redis.Client
}

func NewRedisSender(rdb *redis.Client) *RedisSender {
	return &RedisSender{rdb: rdb}
}

type alertMessage struct {
	Kind    string              `json:"kind"` // alert | digest
	UserID  string              `json:"userId"`
	Matches []model.MatchResult `json:"matches,omitempty"`
	Groups  []DigestGroup       `json:"groups,omitempty"`
	SentAt  time.Time           `json:"sentAt"`
}

func (s *RedisSender) Send(ctx context.Context, userID string, matches []model.MatchResult) error {
	return s.publish(ctx, alertMessage{Kind: "alert", UserID: userID, Matches: matches})
}

func (s *RedisSender) SendDigest(ctx context.Context, userID string, groups []DigestGroup) error {
	return s.publish(ctx, alertMessage{Kind: "digest", UserID: userID, Groups: groups})
}

func (s *RedisSender) publish(ctx context.Context, msg alertMessage) error {
	msg.SentAt = time.Now().UTC()
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Kind, err)
	}
	if err := s.rdb.Publish(ctx, "alerts:"+msg.UserID, payload).Err(); err != nil {
		return fmt.Errorf("publish %s for %s: %w", msg.Kind, msg.UserID, err)
	}
	return nil
}

// RedisCounter keeps per-user daily alert counts with a 24h expiry.
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Add(ctx context.Context, userID string, day time.Time, n int) (int64, error) {
	key := counterKey(userID, day)
	total, err := c.rdb.IncrBy(ctx, key, int64(n)).Result()
	if err != nil {
		return 0, err
	}
	if total == int64(n) {
		c.rdb.Expire(ctx, key, 24*time.Hour)
	}
	return total, nil
}

func (c *RedisCounter) Current(ctx context.Context, userID string, day time.Time) (int64, error) {
	n, err := c.rdb.Get(ctx, counterKey(userID, day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func counterKey(userID string, day time.Time) string {
	return "alerts:count:" + userID + ":" + day.UTC().Format("20060102")
}
