package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Lease gives one invocation exclusive use of a neighborhood.
type Lease interface {
	// Acquire returns false when another invocation holds the neighborhood.
	Acquire(ctx context.Context, neighborhoodID int64) (bool, error)
	Release(ctx context.Context, neighborhoodID int64) error
}

// NoopLease always grants. Without a lease discovery is at-least-once and
// relies on insert-or-ignore.
type NoopLease struct{}

// Acquire implements Lease.
func (NoopLease) Acquire(context.Context, int64) (bool, error) { return true, nil }

// Release implements Lease.
func (NoopLease) Release(context.Context, int64) error { return nil }

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease holds neighborhoods with SET NX PX keys.
type RedisLease struct {
	rdb   *redis.Client
	ttl   time.Duration
	token string
}

// NewRedisLease creates a lease with the given TTL. Each RedisLease has its
// own holder token.
func NewRedisLease(rdb *redis.Client, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLease{rdb: rdb, ttl: ttl, token: uuid.NewString()}
}

// LeaseKey is the Redis key that guards a neighborhood.
func LeaseKey(neighborhoodID int64) string {
	return fmt.Sprintf("storedir:lease:neighborhood:%d", neighborhoodID)
}

// Acquire implements Lease.
func (l *RedisLease) Acquire(ctx context.Context, neighborhoodID int64) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, LeaseKey(neighborhoodID), l.token, l.ttl).Result()
	if err != nil {
		return false, eris.Wrapf(err, "discovery: acquire lease %d", neighborhoodID)
	}
	return ok, nil
}

// Release implements Lease.
func (l *RedisLease) Release(ctx context.Context, neighborhoodID int64) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{LeaseKey(neighborhoodID)}, l.token).Err(); err != nil {
		return eris.Wrapf(err, "discovery: release lease %d", neighborhoodID)
	}
	return nil
}
