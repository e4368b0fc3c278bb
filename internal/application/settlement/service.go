// Package settlement orchestrates settlement planning: it loads inputs,
// runs the pure engine, caches and exports the results.
package settlement

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/settlement"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/propledger/backend/internal/infrastructure/export"
	"github.com/propledger/backend/internal/infrastructure/logger"
	"github.com/propledger/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Plan sources reported in results, logs and metrics
const (
	SourceSelection = "selection"
	SourceBatch     = "batch"
	SourceProperty  = "property"
)

// ErrExportNotConfigured is returned by ExportStatement without storage
var ErrExportNotConfigured = shared.NewDomainError(shared.ErrInvalidState.Code, "statement export is not configured")

// Selection chooses the property-months to settle together
type Selection struct {
	TenantID    string              `json:"tenant_id"`
	PropertyIDs []string            `json:"property_ids"`
	Periods     []settlement.Period `json:"periods"`
	// InvestorIDs optionally restricts the balances that are settled
	InvestorIDs []string `json:"investor_ids,omitempty"`
}

func (s Selection) query() settlement.InputQuery {
	return settlement.InputQuery{
		TenantID:    s.TenantID,
		PropertyIDs: s.PropertyIDs,
		Periods:     s.Periods,
	}
}

// PlanResult is one computed settlement plan with its inputs
type PlanResult struct {
	ID          uuid.UUID                     `json:"id"`
	TenantID    string                        `json:"tenant_id,omitempty"`
	Source      string                        `json:"source"`
	Selection   *Selection                    `json:"selection,omitempty"`
	Digest      string                        `json:"digest"`
	Balances    []settlement.InvestorBalance  `json:"balances"`
	Aggregates  []settlement.AggregateBalance `json:"aggregates"`
	Plan        *settlement.Plan              `json:"plan"`
	Summary     settlement.Summary            `json:"summary"`
	Cached      bool                          `json:"cached"`
	GeneratedAt time.Time                     `json:"generated_at"`
}

// StatementExport describes a stored statement
type StatementExport struct {
	PlanID      uuid.UUID `json:"plan_id"`
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expires_at"`
	Size        int       `json:"size"`
	ContentType string    `json:"content_type"`
}

// Config tunes the service
type Config struct {
	CacheTTL          time.Duration
	MaxParallelPlans  int
	ExportPrefix      string
	DownloadURLExpiry time.Duration
}

// Service is the settlement application service
type Service struct {
	inputs  settlement.InputRepository
	cache   settlement.PlanCache
	storage StatementStorage
	writer  *export.Writer
	metrics *telemetry.SettlementMetrics
	cfg     Config
	now     func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithPlanCache enables plan caching
func WithPlanCache(cache settlement.PlanCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithStatementExport enables ExportStatement
func WithStatementExport(storage StatementStorage, writer *export.Writer) Option {
	return func(s *Service) {
		s.storage = storage
		s.writer = writer
	}
}

// WithMetrics records plan metrics
func WithMetrics(metrics *telemetry.SettlementMetrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithConfig sets service tuning
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service reading inputs from inputs
func NewService(inputs settlement.InputRepository, opts ...Option) *Service {
	s := &Service{
		inputs: inputs,
		cfg: Config{
			MaxParallelPlans: 4,
			ExportPrefix:     "statements",
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlanForSelection loads the selection's inputs and settles them together
func (s *Service) PlanForSelection(ctx context.Context, sel Selection) (*PlanResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "plan_for_selection",
		attribute.Int(telemetry.SpanAttrPropertyCount, len(sel.PropertyIDs)),
		attribute.Int(telemetry.SpanAttrPeriodCount, len(sel.Periods)),
	)
	defer span.End()
	ctx = logger.WithTenantID(ctx, sel.TenantID)

	batch, err := s.inputs.LoadBatch(ctx, sel.query())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, err := s.compute(ctx, *batch, sel.InvestorIDs, SourceSelection)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	result.TenantID = sel.TenantID
	result.Selection = &sel
	return result, nil
}

// PlanFromBatch settles a caller-supplied batch without touching storage.
// investorIDs optionally restricts the balances that are settled.
func (s *Service) PlanFromBatch(ctx context.Context, batch settlement.Batch, investorIDs ...string) (*PlanResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "plan_from_batch",
		attribute.Int(telemetry.SpanAttrPropertyCount, len(batch.Reports)),
	)
	defer span.End()

	result, err := s.compute(ctx, batch, investorIDs, SourceBatch)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// PlanSingleProperty settles one property-month on its own. Returns a
// NOT_FOUND error when no report exists for it.
func (s *Service) PlanSingleProperty(ctx context.Context, tenantID, propertyID string, period settlement.Period) (*PlanResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "plan_single_property")
	defer span.End()
	ctx = logger.WithTenantID(ctx, tenantID)

	sel := Selection{
		TenantID:    tenantID,
		PropertyIDs: []string{propertyID},
		Periods:     []settlement.Period{period},
	}
	batch, err := s.inputs.LoadBatch(ctx, sel.query())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(batch.Reports) == 0 {
		err := shared.NewDomainError(shared.ErrNotFound.Code,
			fmt.Sprintf("no financial report for property %s in %s", propertyID, period))
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, err := s.compute(ctx, *batch, nil, SourceProperty)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	result.TenantID = tenantID
	result.Selection = &sel
	return result, nil
}

// PlanMany plans independent selections concurrently, at most
// MaxParallelPlans at a time. Results keep the order of selections; the
// first failure cancels the rest.
func (s *Service) PlanMany(ctx context.Context, selections []Selection) ([]*PlanResult, error) {
	results := make([]*PlanResult, len(selections))

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.MaxParallelPlans > 0 {
		g.SetLimit(s.cfg.MaxParallelPlans)
	}
	for i := range selections {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := s.PlanForSelection(gctx, selections[i])
			if err != nil {
				return fmt.Errorf("selection %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ExportStatement renders result as CSV, stores it and returns where
func (s *Service) ExportStatement(ctx context.Context, result *PlanResult) (*StatementExport, error) {
	if s.storage == nil || s.writer == nil {
		return nil, ErrExportNotConfigured
	}
	if result == nil || result.Plan == nil {
		return nil, settlement.NewInvalidInputError("plan", "nothing to export")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "export_statement",
		attribute.String(telemetry.SpanAttrPlanID, result.ID.String()),
	)
	defer span.End()
	ctx = logger.WithPlanID(ctx, result.ID.String())

	data, err := s.writer.Render(export.Statement{
		ID:          result.ID.String(),
		TenantID:    result.TenantID,
		GeneratedAt: result.GeneratedAt,
		Balances:    result.Balances,
		Plan:        result.Plan,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to render statement: %w", err)
	}

	key := export.ObjectKey(s.cfg.ExportPrefix, result.TenantID, result.ID.String(), result.GeneratedAt)
	if err := s.storage.Put(ctx, key, data, export.ContentType); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to store statement: %w", err)
	}
	url, expiresAt, err := s.storage.DownloadURL(ctx, key, s.cfg.DownloadURLExpiry)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to sign statement URL: %w", err)
	}

	s.metrics.RecordStatementExported(ctx)
	logger.L(ctx).Info("Statement exported", zap.String("key", key), zap.Int("bytes", len(data)))

	return &StatementExport{
		PlanID:      result.ID,
		Key:         key,
		URL:         url,
		ExpiresAt:   expiresAt,
		Size:        len(data),
		ContentType: export.ContentType,
	}, nil
}

// compute runs the engine on batch, consulting the cache by batch digest
func (s *Service) compute(ctx context.Context, batch settlement.Batch, investorIDs []string, source string) (*PlanResult, error) {
	start := s.now()
	id := uuid.New()
	ctx = logger.WithPlanID(ctx, id.String())
	log := logger.L(ctx)

	digest, err := batch.Digest(digestExtras(investorIDs, source)...)
	if err != nil {
		return nil, err
	}

	if cached := s.lookup(ctx, digest); cached != nil {
		result := s.newResult(id, source, digest, cached.Balances, cached.Aggregates, cached.Plan)
		result.Cached = true
		s.observe(ctx, result, start)
		log.Debug("Plan served from cache", zap.String("digest", digest))
		return result, nil
	}

	balances := batch.Balances()
	if len(investorIDs) > 0 {
		balances = settlement.FilterBalances(balances, settlement.ForInvestors(investorIDs...))
	}

	var aggregates []settlement.AggregateBalance
	if source == SourceProperty {
		aggregates = make([]settlement.AggregateBalance, 0, len(balances))
		for _, b := range balances {
			aggregates = append(aggregates, settlement.AggregateFromBalance(b))
		}
	} else {
		aggregates = settlement.Aggregate(balances)
	}
	plan, err := settlement.Settle(aggregates)
	if err != nil {
		return nil, err
	}

	result := s.newResult(id, source, digest, balances, aggregates, plan)
	s.store(ctx, digest, result)
	s.observe(ctx, result, start)

	fields := []zap.Field{
		zap.String("source", source),
		zap.Int("reports", len(batch.Reports)),
		zap.Int("investors", len(aggregates)),
		zap.Int("transactions", result.Summary.TransactionCount),
		zap.String("total_transferred", result.Summary.TotalTransferred.StringFixed(2)),
		zap.Int("unsettled", result.Summary.UnsettledCount),
	}
	if !result.Summary.Balanced {
		log.Warn("Settlement plan is imbalanced", append(fields,
			zap.String("total_credits", plan.TotalCredits.StringFixed(2)),
			zap.String("total_debits", plan.TotalDebits.StringFixed(2)),
		)...)
	} else {
		log.Info("Settlement plan computed", fields...)
	}
	return result, nil
}

func (s *Service) newResult(id uuid.UUID, source, digest string, balances []settlement.InvestorBalance, aggregates []settlement.AggregateBalance, plan *settlement.Plan) *PlanResult {
	return &PlanResult{
		ID:          id,
		Source:      source,
		Digest:      digest,
		Balances:    balances,
		Aggregates:  aggregates,
		Plan:        plan,
		Summary:     plan.Summary(),
		GeneratedAt: s.now().UTC(),
	}
}

// lookup returns the cached plan for digest, or nil. Cache errors only log.
func (s *Service) lookup(ctx context.Context, digest string) *settlement.CachedPlan {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.Get(ctx, digest)
	if err != nil {
		logger.L(ctx).Warn("Plan cache lookup failed", zap.Error(err))
		cached = nil
	}
	s.metrics.RecordCacheLookup(ctx, cached != nil)
	return cached
}

func (s *Service) store(ctx context.Context, digest string, result *PlanResult) {
	if s.cache == nil {
		return
	}
	err := s.cache.Set(ctx, digest, &settlement.CachedPlan{
		Balances:   result.Balances,
		Aggregates: result.Aggregates,
		Plan:       result.Plan,
		ComputedAt: result.GeneratedAt,
	}, s.cfg.CacheTTL)
	if err != nil {
		logger.L(ctx).Warn("Failed to cache plan", zap.Error(err))
	}
}

func (s *Service) observe(ctx context.Context, result *PlanResult, start time.Time) {
	s.metrics.RecordPlan(ctx, telemetry.PlanObservation{
		TenantID:         logger.GetTenantID(ctx),
		Source:           result.Source,
		Duration:         s.now().Sub(start),
		TransactionCount: result.Summary.TransactionCount,
		UnsettledCount:   result.Summary.UnsettledCount,
		Balanced:         result.Summary.Balanced,
		CacheHit:         result.Cached,
	})
}

// digestExtras folds the plan options into the cache key. The investor
// filter is order-insensitive.
func digestExtras(investorIDs []string, source string) []string {
	ids := append([]string(nil), investorIDs...)
	sort.Strings(ids)
	return []string{"source=" + source, "investors=" + strings.Join(ids, ",")}
}
