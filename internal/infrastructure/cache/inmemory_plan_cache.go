package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/propledger/backend/internal/domain/settlement"
	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = 30 * time.Second
	defaultInMemoryTTL     = 5 * time.Minute
)

// cacheEntry wraps a cached value with its expiry
type cacheEntry[T any] struct {
	value     *T
	expiresAt time.Time
}

func (e *cacheEntry[T]) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// InMemoryPlanCache implements settlement.PlanCache in process memory. It is
// the L1 tier in front of Redis and the fallback when Redis is disabled.
type InMemoryPlanCache struct {
	plans      sync.Map // digest -> *cacheEntry[settlement.CachedPlan]
	defaultTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
	stopCh     chan struct{}
	stopped    atomic.Bool

	hits   atomic.Int64
	misses atomic.Int64
}

// InMemoryPlanCacheOption configures an InMemoryPlanCache
type InMemoryPlanCacheOption func(*InMemoryPlanCache)

// WithInMemoryTTL sets the TTL used when Set is called with zero
func WithInMemoryTTL(ttl time.Duration) InMemoryPlanCacheOption {
	return func(c *InMemoryPlanCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithInMemoryLogger sets the logger
func WithInMemoryLogger(logger *zap.Logger) InMemoryPlanCacheOption {
	return func(c *InMemoryPlanCache) {
		c.logger = logger
	}
}

// withClock replaces time.Now, for tests
func withClock(now func() time.Time) InMemoryPlanCacheOption {
	return func(c *InMemoryPlanCache) {
		c.now = now
	}
}

// NewInMemoryPlanCache creates the cache and starts its cleanup goroutine;
// call Close to stop it.
func NewInMemoryPlanCache(opts ...InMemoryPlanCacheOption) *InMemoryPlanCache {
	c := &InMemoryPlanCache{
		defaultTTL: defaultInMemoryTTL,
		logger:     zap.NewNop(),
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupExpired()
	return c
}

// Get returns the cached plan for digest, or nil on a miss
func (c *InMemoryPlanCache) Get(_ context.Context, digest string) (*settlement.CachedPlan, error) {
	if value, ok := c.plans.Load(digest); ok {
		entry := value.(*cacheEntry[settlement.CachedPlan])
		if !entry.isExpired(c.now()) {
			c.hits.Add(1)
			c.logger.Debug("L1 cache hit for plan", zap.String("digest", digest))
			return entry.value, nil
		}
		c.plans.Delete(digest)
	}

	c.misses.Add(1)
	c.logger.Debug("L1 cache miss for plan", zap.String("digest", digest))
	return nil, nil
}

// Set stores plan under digest. A nil plan is ignored.
func (c *InMemoryPlanCache) Set(_ context.Context, digest string, plan *settlement.CachedPlan, ttl time.Duration) error {
	if plan == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.plans.Store(digest, &cacheEntry[settlement.CachedPlan]{
		value:     plan,
		expiresAt: c.now().Add(ttl),
	})
	c.logger.Debug("Cached plan in L1", zap.String("digest", digest), zap.Duration("ttl", ttl))
	return nil
}

// Delete removes one entry
func (c *InMemoryPlanCache) Delete(_ context.Context, digest string) error {
	c.plans.Delete(digest)
	return nil
}

// InvalidateAll removes every entry
func (c *InMemoryPlanCache) InvalidateAll(_ context.Context) error {
	c.plans.Range(func(key, _ any) bool {
		c.plans.Delete(key)
		return true
	})
	c.logger.Info("Invalidated L1 plan cache")
	return nil
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *InMemoryPlanCache) Close() error {
	if c.stopped.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
	return nil
}

// Stats returns hit and miss counters
func (c *InMemoryPlanCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Count returns the number of stored entries, expired ones included
func (c *InMemoryPlanCache) Count() int {
	n := 0
	c.plans.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *InMemoryPlanCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

// removeExpired drops expired entries and returns how many were removed
func (c *InMemoryPlanCache) removeExpired() int {
	now := c.now()
	removed := 0
	c.plans.Range(func(key, value any) bool {
		if value.(*cacheEntry[settlement.CachedPlan]).isExpired(now) {
			c.plans.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		c.logger.Debug("Cleaned up expired L1 plan entries", zap.Int("removed", removed))
	}
	return removed
}

var _ settlement.PlanCache = (*InMemoryPlanCache)(nil)
