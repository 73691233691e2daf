package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// unreadTTL bounds staleness when an invalidation is lost (e.g. a crash
// between the DB write and the cache update). After expiry the next read
// falls through to the database and repopulates.
const unreadTTL = 12 * time.Hour

// UnreadCounter caches per-user unread notification counts so the badge
// endpoint does not hit Postgres on every poll. The database stays the
// source of truth; every cache operation here is best-effort.
type UnreadCounter struct {
	client *Client
	logger *zap.Logger
}

// NewUnreadCounter creates an unread-count cache.
func NewUnreadCounter(client *Client, logger *zap.Logger) *UnreadCounter {
	return &UnreadCounter{
		client: client,
		logger: logger,
	}
}

func (u *UnreadCounter) key(userID uuid.UUID) string {
	return fmt.Sprintf("unread:%s", userID)
}

// Get returns the cached count. The bool is false on a miss.
func (u *UnreadCounter) Get(ctx context.Context, userID uuid.UUID) (int64, bool, error) {
	val, err := u.client.rdb.Get(ctx, u.key(userID)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get failed: %w", err)
	}
	return val, true, nil
}

// Set stores an authoritative count read from the database.
func (u *UnreadCounter) Set(ctx context.Context, userID uuid.UUID, count int64) error {
	if err := u.client.rdb.Set(ctx, u.key(userID), count, unreadTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Incr bumps the cached count after a notification write. A missing key is
// left missing: incrementing an absent counter would fabricate a total the
// database never confirmed.
func (u *UnreadCounter) Incr(ctx context.Context, userID uuid.UUID) {
	key := u.key(userID)

	exists, err := u.client.rdb.Exists(ctx, key).Result()
	if err != nil || exists == 0 {
		return
	}

	if err := u.client.rdb.Incr(ctx, key).Err(); err != nil {
		u.logger.Debug("unread counter incr failed", zap.Error(err), zap.String("user_id", userID.String()))
	}
}

// Invalidate drops the cached count after mark-read operations; the next
// Get repopulates from the database.
func (u *UnreadCounter) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := u.client.rdb.Del(ctx, u.key(userID)).Err(); err != nil {
		u.logger.Debug("unread counter invalidate failed", zap.Error(err), zap.String("user_id", userID.String()))
	}
}
