package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tracketl/api/models"
	"tracketl/api/utils"
)

var ErrCacheMiss = errors.New("session cache miss")

// CacheClient is the subset of *redis.Client the cache uses.
type CacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// SessionCache keeps recently built sessions per user and date in Redis.
type SessionCache struct {
	client CacheClient
	ttl    time.Duration
}

func NewSessionCache(client CacheClient, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

func sessionCacheKey(userID string, date time.Time) string {
	return fmt.Sprintf("sessions:%s:%s", utils.FormatDate(date), userID)
}

func (c *SessionCache) Get(ctx context.Context, userID string, date time.Time) (models.Sessions, error) {
	data, err := c.client.Get(ctx, sessionCacheKey(userID, date)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get cached sessions: %w", err)
	}

	var sessions models.Sessions
	if err := json.Unmarshal(data, &sessions); err != nil {
		// Drop the unreadable entry so the next read rebuilds it.
		_ = c.Delete(ctx, userID, date)
		return nil, fmt.Errorf("decode cached sessions: %w", err)
	}
	return sessions, nil
}

func (c *SessionCache) Set(ctx context.Context, userID string, date time.Time, sessions models.Sessions) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := c.client.Set(ctx, sessionCacheKey(userID, date), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached sessions: %w", err)
	}
	return nil
}

func (c *SessionCache) Delete(ctx context.Context, userID string, date time.Time) error {
	if err := c.client.Del(ctx, sessionCacheKey(userID, date)).Err(); err != nil {
		return fmt.Errorf("delete cached sessions: %w", err)
	}
	return nil
}
