package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

const defaultSnapshotTTL = 10 * time.Minute

// SnapshotCache implements domain.SnapshotCache using Redis hashes with a
// JSON-serialized snapshot. Terminal auctions keep their last snapshot for
// the full TTL; live ones are rewritten on every committed event.
//
// Key schema:
//
//	auction:snapshot:{id} - hash, field "data" holds JSON, field "status" the
//	                        auction status
type SnapshotCache struct {
	c   *Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client. A
// zero ttl uses ten minutes.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &SnapshotCache{c: c, ttl: ttl}
}

func (sc *SnapshotCache) snapshotKey(id string) string {
	return sc.c.Key("auction:snapshot:" + id)
}

// Set stores the snapshot and refreshes its TTL.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.AuctionID, err)
	}

	key := sc.snapshotKey(snap.AuctionID)

	pipe := sc.c.Underlying().TxPipeline()
	pipe.HSet(ctx, key, "data", data, "status", string(snap.Status))
	pipe.Expire(ctx, key, sc.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.AuctionID, err)
	}
	return nil
}

// Get retrieves the cached snapshot of an auction.
// It returns domain.ErrNotFound when the key does not exist.
func (sc *SnapshotCache) Get(ctx context.Context, auctionID string) (domain.Snapshot, error) {
	data, err := sc.c.Underlying().HGet(ctx, sc.snapshotKey(auctionID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("redis: get snapshot %s: %w", auctionID, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", auctionID, err)
	}
	return snap, nil
}

// Invalidate removes an auction's snapshot from the cache.
func (sc *SnapshotCache) Invalidate(ctx context.Context, auctionID string) error {
	if err := sc.c.Underlying().Del(ctx, sc.snapshotKey(auctionID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate snapshot %s: %w", auctionID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
