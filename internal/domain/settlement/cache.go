package settlement

import (
	"context"
	"time"
)

// CachedPlan is the cached outcome of settling one input batch
type CachedPlan struct {
	Balances   []InvestorBalance  `json:"balances"`
	Aggregates []AggregateBalance `json:"aggregates"`
	Plan       *Plan              `json:"plan"`
	ComputedAt time.Time          `json:"computed_at"`
}

// PlanCache stores plans keyed by the digest of the batch they were computed
// from. Plans are deterministic in their input, so entries never go stale;
// TTLs only bound memory.
type PlanCache interface {
	// Get returns nil, nil on a miss
	Get(ctx context.Context, digest string) (*CachedPlan, error)
	// Set stores plan; a zero ttl means the implementation default
	Set(ctx context.Context, digest string, plan *CachedPlan, ttl time.Duration) error
	Delete(ctx context.Context, digest string) error
	InvalidateAll(ctx context.Context) error
	Close() error
}
