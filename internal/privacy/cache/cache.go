// Package cache is the read-through cache for privacy scores. Scores are
// cheap to compute but read on every dashboard load; a short TTL plus
// explicit invalidation on permission changes keeps them fresh.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"consentgate/internal/privacy"
	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/sentinel"
)

// DefaultTTL matches the upstream dashboard refresh cadence.
const DefaultTTL = 30 * time.Minute

type entry struct {
	Score    privacy.Score `json:"score"`
	CachedAt time.Time     `json:"cachedAt"`
}

// RedisCache stores scores in Redis under privacy_score:<user>.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func key(userID id.UserID) string {
	return fmt.Sprintf("privacy_score:%s", userID)
}

// Get returns the cached score and its age. Misses are sentinel.ErrNotFound.
func (c *RedisCache) Get(ctx context.Context, userID id.UserID) (*privacy.Score, time.Duration, error) {
	raw, err := c.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get cached privacy score: %w", err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// A corrupt entry reads as a miss; the next Set overwrites it.
		return nil, 0, sentinel.ErrNotFound
	}
	return &e.Score, time.Since(e.CachedAt), nil
}

func (c *RedisCache) Set(ctx context.Context, userID id.UserID, score privacy.Score) error {
	raw, err := json.Marshal(entry{Score: score, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal privacy score: %w", err)
	}
	if err := c.client.Set(ctx, key(userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache privacy score: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, userID id.UserID) error {
	if err := c.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate privacy score: %w", err)
	}
	return nil
}

// MemoryCache is the in-process equivalent for tests and local development.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[id.UserID]entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[id.UserID]entry)}
}

func (c *MemoryCache) Get(_ context.Context, userID id.UserID) (*privacy.Score, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok {
		return nil, 0, sentinel.ErrNotFound
	}
	score := e.Score
	return &score, time.Since(e.CachedAt), nil
}

func (c *MemoryCache) Set(_ context.Context, userID id.UserID, score privacy.Score) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = entry{Score: score, CachedAt: time.Now().UTC()}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID id.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}
