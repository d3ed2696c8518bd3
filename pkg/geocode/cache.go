package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores geocode results. Implementations swallow their own errors: a
// cache failure is a miss, never a geocoding failure.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool)
	Set(ctx context.Context, key string, r *Result)
}

// addressKey returns SHA-256 hex of the normalized address, or "" when blank.
func addressKey(address string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(address)), " ")
	if normalized == "" {
		return ""
	}
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("addr:%x", h)
}

// coordKey buckets coordinates to about 11 m so nearby lookups share an entry.
func coordKey(lat, lng float64) string {
	return fmt.Sprintf("latlng:%.4f:%.4f", lat, lng)
}

// RedisCache keeps results in Redis as JSON under a common prefix.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a cache with the given TTL. A zero TTL means 30 days.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisCache{rdb: rdb, prefix: "storedir:geocode:", ttl: ttl}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*Result, bool) {
	s, err := c.rdb.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			zap.L().Debug("geocode: cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var r Result
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, false
	}
	return &r, true
}

// Set implements Cache. Non-matches are cached too so repeated bad addresses
// do not spend quota.
func (c *RedisCache) Set(ctx context.Context, key string, r *Result) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key, b, c.ttl).Err(); err != nil {
		zap.L().Debug("geocode: cache write failed", zap.Error(err))
	}
}
