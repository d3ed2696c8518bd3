package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestLeaseKey(t *testing.T) {
	assert.Equal(t, "storedir:lease:neighborhood:42", LeaseKey(42))
}

func TestNoopLease(t *testing.T) {
	var l NoopLease
	ok, err := l.Acquire(context.Background(), 1)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, l.Release(context.Background(), 1))
}

func TestRedisLease_UnreachableReturnsError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = rdb.Close() }()

	l := NewRedisLease(rdb, 0)
	assert.Equal(t, time.Minute, l.ttl)
	assert.NotEmpty(t, l.token)

	ok, err := l.Acquire(context.Background(), 7)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, l.Release(context.Background(), 7))
}

func TestNewRedisLease_DistinctTokens(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer func() { _ = rdb.Close() }()

	assert.NotEqual(t, NewRedisLease(rdb, time.Second).token, NewRedisLease(rdb, time.Second).token)
}
