package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("auction:*"))
	assert.True(t, hasPattern("auction:?"))
	assert.True(t, hasPattern("auction:[ab]"))
	assert.False(t, hasPattern("auction:42"))
}

func TestKeysCarryPrefix(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	c := NewFromClient(rdb, "league:")

	assert.Equal(t, "league:lock:auction:a1", NewLockManager(c).lockKey("auction:a1"))
	assert.Equal(t, "league:ratelimit:bids:a1:p1", NewRateLimiter(c, 0, 0).rateLimitKey("bids:a1:p1"))
	assert.Equal(t, "league:auction:snapshot:a1", NewSnapshotCache(c, 0).snapshotKey("a1"))
}

func TestRateLimiterDefaults(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	rl := NewRateLimiter(NewFromClient(rdb, ""), 0, 0)
	assert.Equal(t, 1, rl.waitLimit)
	assert.Equal(t, "1s", rl.waitWindow.String())
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
