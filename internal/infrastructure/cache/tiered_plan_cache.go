package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/propledger/backend/internal/domain/settlement"
	"go.uber.org/zap"
)

// TieredPlanCache reads through a local L1 into a shared L2 and writes to
// both. L2 failures are logged and degrade to L1-only behaviour; a broken
// Redis never fails a settlement request.
type TieredPlanCache struct {
	l1     settlement.PlanCache
	l2     settlement.PlanCache
	l1TTL  time.Duration
	logger *zap.Logger

	l1Hits atomic.Int64
	l2Hits atomic.Int64
	misses atomic.Int64
}

// TieredPlanCacheOption configures a TieredPlanCache
type TieredPlanCacheOption func(*TieredPlanCache)

// WithL1TTL sets how long entries promoted from L2 live in L1
func WithL1TTL(ttl time.Duration) TieredPlanCacheOption {
	return func(c *TieredPlanCache) {
		c.l1TTL = ttl
	}
}

// WithTieredLogger sets the logger
func WithTieredLogger(logger *zap.Logger) TieredPlanCacheOption {
	return func(c *TieredPlanCache) {
		c.logger = logger
	}
}

// NewTieredPlanCache combines l1 and l2
func NewTieredPlanCache(l1, l2 settlement.PlanCache, opts ...TieredPlanCacheOption) *TieredPlanCache {
	c := &TieredPlanCache{
		l1:     l1,
		l2:     l2,
		l1TTL:  defaultInMemoryTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get checks L1, then L2, promoting L2 hits into L1
func (c *TieredPlanCache) Get(ctx context.Context, digest string) (*settlement.CachedPlan, error) {
	if plan, err := c.l1.Get(ctx, digest); err == nil && plan != nil {
		c.l1Hits.Add(1)
		return plan, nil
	}

	plan, err := c.l2.Get(ctx, digest)
	if err != nil {
		c.logger.Warn("L2 plan cache read failed", zap.String("digest", digest), zap.Error(err))
		c.misses.Add(1)
		return nil, nil
	}
	if plan == nil {
		c.misses.Add(1)
		return nil, nil
	}

	c.l2Hits.Add(1)
	if err := c.l1.Set(ctx, digest, plan, c.l1TTL); err != nil {
		c.logger.Warn("Failed to promote plan into L1", zap.String("digest", digest), zap.Error(err))
	}
	return plan, nil
}

// Set writes L1 with the L1 TTL and L2 with ttl
func (c *TieredPlanCache) Set(ctx context.Context, digest string, plan *settlement.CachedPlan, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.l1.Set(ctx, digest, plan, l1TTL); err != nil {
		return err
	}
	if err := c.l2.Set(ctx, digest, plan, ttl); err != nil {
		c.logger.Warn("L2 plan cache write failed", zap.String("digest", digest), zap.Error(err))
	}
	return nil
}

// Delete removes the entry from both tiers
func (c *TieredPlanCache) Delete(ctx context.Context, digest string) error {
	return errors.Join(c.l1.Delete(ctx, digest), c.l2.Delete(ctx, digest))
}

// InvalidateAll clears both tiers
func (c *TieredPlanCache) InvalidateAll(ctx context.Context) error {
	return errors.Join(c.l1.InvalidateAll(ctx), c.l2.InvalidateAll(ctx))
}

// Close closes both tiers
func (c *TieredPlanCache) Close() error {
	return errors.Join(c.l1.Close(), c.l2.Close())
}

// Stats returns L1 hits, L2 hits and misses
func (c *TieredPlanCache) Stats() (l1Hits, l2Hits, misses int64) {
	return c.l1Hits.Load(), c.l2Hits.Load(), c.misses.Load()
}

var _ settlement.PlanCache = (*TieredPlanCache)(nil)
