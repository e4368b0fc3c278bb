package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics constructor gets no meter
var ErrMeterNil = errors.New("telemetry: meter is nil")

// PlanObservation is what the settlement service reports after each plan
type PlanObservation struct {
	TenantID         string
	Source           string // selection, batch, property
	Duration         time.Duration
	TransactionCount int
	UnsettledCount   int
	Balanced         bool
	CacheHit         bool
}

// SettlementMetrics records settlement planning activity.
type SettlementMetrics struct {
	plansTotal        *Counter
	transactionsTotal *Counter
	unsettledTotal    *Counter
	cacheLookups      *Counter
	statementsTotal   *Counter
	planDuration      *Histogram
}

// NewSettlementMetrics creates the settlement instruments on meter
func NewSettlementMetrics(meter metric.Meter) (*SettlementMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var err error
	m := &SettlementMetrics{}

	if m.plansTotal, err = NewCounter(meter, "settlement_plans_total", "Settlement plans computed", "{plans}"); err != nil {
		return nil, err
	}
	if m.transactionsTotal, err = NewCounter(meter, "settlement_transactions_total", "Transfers emitted by settlement plans", "{transactions}"); err != nil {
		return nil, err
	}
	if m.unsettledTotal, err = NewCounter(meter, "settlement_unsettled_investors_total", "Investors left with a residual balance", "{investors}"); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = NewCounter(meter, "settlement_plan_cache_lookups_total", "Plan cache lookups", "{lookups}"); err != nil {
		return nil, err
	}
	if m.statementsTotal, err = NewCounter(meter, "settlement_statements_exported_total", "CSV statements exported", "{statements}"); err != nil {
		return nil, err
	}
	m.planDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "settlement_plan_duration_seconds",
		Description: "Time to compute a settlement plan",
		Unit:        "s",
		Boundaries:  PlanDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordPlan records one computed (or cached) plan. Safe on a nil receiver.
func (m *SettlementMetrics) RecordPlan(ctx context.Context, obs PlanObservation) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrPlanSource.String(obs.Source),
		AttrBalanced.Bool(obs.Balanced),
		AttrCacheHit.Bool(obs.CacheHit),
	}
	if obs.TenantID != "" {
		attrs = append(attrs, AttrTenantID.String(obs.TenantID))
	}

	m.plansTotal.Inc(ctx, attrs...)
	m.transactionsTotal.Add(ctx, int64(obs.TransactionCount), attrs...)
	if obs.UnsettledCount > 0 {
		m.unsettledTotal.Add(ctx, int64(obs.UnsettledCount), attrs...)
	}
	m.planDuration.RecordDuration(ctx, obs.Duration, AttrPlanSource.String(obs.Source), AttrCacheHit.Bool(obs.CacheHit))
}

// RecordCacheLookup counts a plan cache lookup. Safe on a nil receiver.
func (m *SettlementMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	m.cacheLookups.Inc(ctx, AttrCacheHit.Bool(hit))
}

// RecordStatementExported counts an exported statement. Safe on a nil receiver.
func (m *SettlementMetrics) RecordStatementExported(ctx context.Context) {
	if m == nil {
		return
	}
	m.statementsTotal.Inc(ctx)
}
