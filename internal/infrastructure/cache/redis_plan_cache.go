package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/propledger/backend/internal/domain/settlement"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	planKeyPrefix        = "settlement:plan:"
	defaultScanBatchSize = 100
	defaultRedisTTL      = 10 * time.Minute
)

// RedisPlanCache implements settlement.PlanCache on Redis, shared by every
// instance. Entries are JSON-encoded CachedPlan values.
type RedisPlanCache struct {
	client     redis.UniversalClient
	ownsClient bool
	defaultTTL time.Duration
	logger     *zap.Logger
}

// RedisPlanCacheOption configures a RedisPlanCache
type RedisPlanCacheOption func(*RedisPlanCache)

// WithRedisTTL sets the TTL used when Set is called with zero
func WithRedisTTL(ttl time.Duration) RedisPlanCacheOption {
	return func(c *RedisPlanCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithRedisLogger sets the logger
func WithRedisLogger(logger *zap.Logger) RedisPlanCacheOption {
	return func(c *RedisPlanCache) {
		c.logger = logger
	}
}

// NewRedisPlanCache connects to addr and verifies the connection
func NewRedisPlanCache(ctx context.Context, opts *redis.Options, cacheOpts ...RedisPlanCacheOption) (*RedisPlanCache, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := NewRedisPlanCacheWithClient(client, cacheOpts...)
	c.ownsClient = true
	return c, nil
}

// NewRedisPlanCacheWithClient wraps an existing client; the caller keeps
// ownership and closes it
func NewRedisPlanCacheWithClient(client redis.UniversalClient, opts ...RedisPlanCacheOption) *RedisPlanCache {
	c := &RedisPlanCache{
		client:     client,
		defaultTTL: defaultRedisTTL,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func planKey(digest string) string {
	return planKeyPrefix + digest
}

// Get returns the cached plan for digest, or nil on a miss. Undecodable
// entries are deleted and reported as an error.
func (c *RedisPlanCache) Get(ctx context.Context, digest string) (*settlement.CachedPlan, error) {
	key := planKey(digest)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("Cache miss for plan", zap.String("digest", digest))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan from cache: %w", err)
	}

	var plan settlement.CachedPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		c.logger.Warn("Dropping corrupted plan cache entry", zap.String("digest", digest), zap.Error(err))
		_ = c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
	}

	c.logger.Debug("Cache hit for plan", zap.String("digest", digest))
	return &plan, nil
}

// Set stores plan under digest. A nil plan is ignored.
func (c *RedisPlanCache) Set(ctx context.Context, digest string, plan *settlement.CachedPlan, ttl time.Duration) error {
	if plan == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := c.client.Set(ctx, planKey(digest), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set plan in cache: %w", err)
	}

	c.logger.Debug("Cached plan", zap.String("digest", digest), zap.Duration("ttl", ttl))
	return nil
}

// Delete removes one entry
func (c *RedisPlanCache) Delete(ctx context.Context, digest string) error {
	if err := c.client.Del(ctx, planKey(digest)).Err(); err != nil {
		return fmt.Errorf("failed to delete plan from cache: %w", err)
	}
	return nil
}

// InvalidateAll removes every plan entry using SCAN so Redis is never
// blocked by KEYS
func (c *RedisPlanCache) InvalidateAll(ctx context.Context) error {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, planKeyPrefix+"*", defaultScanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.logger.Info("Invalidated plan cache", zap.Int64("deleted_count", deleted))
	return nil
}

// Close closes the client if this cache created it
func (c *RedisPlanCache) Close() error {
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

var _ settlement.PlanCache = (*RedisPlanCache)(nil)
