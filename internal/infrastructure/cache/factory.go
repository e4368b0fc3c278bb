package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/propledger/backend/internal/domain/settlement"
	"github.com/propledger/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PlanCacheFactory builds the plan cache described by configuration
type PlanCacheFactory struct {
	redisConfig           config.RedisConfig
	ttl                   time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// PlanCacheFactoryOption configures the factory
type PlanCacheFactoryOption func(*PlanCacheFactory)

// WithLogger sets the logger handed to every created cache
func WithLogger(logger *zap.Logger) PlanCacheFactoryOption {
	return func(f *PlanCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to an
// in-memory cache instead of failing. Enabled by default.
func WithInMemoryFallback(allow bool) PlanCacheFactoryOption {
	return func(f *PlanCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewPlanCacheFactory creates a factory; ttl is the default entry lifetime
func NewPlanCacheFactory(redisCfg config.RedisConfig, ttl time.Duration, opts ...PlanCacheFactoryOption) *PlanCacheFactory {
	f := &PlanCacheFactory{
		redisConfig:           redisCfg,
		ttl:                   ttl,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateInMemory returns a process-local cache
func (f *PlanCacheFactory) CreateInMemory() *InMemoryPlanCache {
	return NewInMemoryPlanCache(WithInMemoryTTL(f.ttl), WithInMemoryLogger(f.logger.Named("plan_cache_l1")))
}

// CreateRedis returns a Redis-backed cache after checking the connection
func (f *PlanCacheFactory) CreateRedis(ctx context.Context) (*RedisPlanCache, error) {
	return NewRedisPlanCache(ctx, &redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}, WithRedisTTL(f.ttl), WithRedisLogger(f.logger.Named("plan_cache_l2")))
}

// Create returns a tiered cache when Redis is enabled and reachable, an
// in-memory cache otherwise
func (f *PlanCacheFactory) Create(ctx context.Context) (settlement.PlanCache, error) {
	l1 := f.CreateInMemory()
	if !f.redisConfig.Enabled {
		f.logger.Info("Using in-memory plan cache")
		return l1, nil
	}

	l2, err := f.CreateRedis(ctx)
	if err == nil {
		f.logger.Info("Using tiered plan cache", zap.String("redis_addr", f.redisConfig.Addr()))
		return NewTieredPlanCache(l1, l2, WithL1TTL(f.ttl), WithTieredLogger(f.logger.Named("plan_cache"))), nil
	}

	if !f.allowInMemoryFallback {
		_ = l1.Close()
		return nil, fmt.Errorf("redis required for plan cache but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory plan cache", zap.Error(err))
	return l1, nil
}
