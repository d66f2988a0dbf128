package rerank

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keys assessments by profile content and posting identity, so a
// CV or skills edit naturally produces fresh keys. A per-user generation
// counter additionally invalidates everything at once when the profile
// changes, without scanning for old keys.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Key derives the cache key for one (user, posting) assessment.
func (c *RedisCache) Key(ctx context.Context, userID, jobHash, cvText string, skills []string) string {
	gen, err := c.rdb.Get(ctx, genKey(userID)).Result()
	if err != nil {
		gen = "0"
	}

	sorted := append([]string(nil), skills...)
	sort.Strings(sorted)

	sum := md5.Sum([]byte(jobHash + "|" + cvText + "|" + strings.Join(sorted, ",")))
	return fmt.Sprintf("rerank:%s:g%s:%s", userID, gen, hex.EncodeToString(sum[:]))
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Assessment, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var a Assessment
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode cached assessment: %w", err)
	}
	return &a, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, a *Assessment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}

// InvalidateUser bumps the user's generation counter, orphaning all existing
// keys; they age out through the TTL.
func (c *RedisCache) InvalidateUser(ctx context.Context, userID string) error {
	return c.rdb.Incr(ctx, genKey(userID)).Err()
}

func genKey(userID string) string {
	return "rerank:gen:" + userID
}
