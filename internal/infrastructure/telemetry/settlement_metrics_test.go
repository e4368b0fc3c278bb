package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func newTestSettlementMetrics(t *testing.T) (*SettlementMetrics, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewSettlementMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func TestNewSettlementMetrics_NilMeter(t *testing.T) {
	_, err := NewSettlementMetrics(nil)
	assert.ErrorIs(t, err, ErrMeterNil)
}

func TestSettlementMetrics_RecordPlan(t *testing.T) {
	m, reader := newTestSettlementMetrics(t)
	ctx := context.Background()

	m.RecordPlan(ctx, PlanObservation{Source: "selection", TenantID: "t1", Duration: 3 * time.Millisecond, TransactionCount: 4, Balanced: true})
	m.RecordPlan(ctx, PlanObservation{Source: "batch", Duration: time.Millisecond, TransactionCount: 2, UnsettledCount: 1})
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, false)
	m.RecordStatementExported(ctx)

	data := collect(t, reader)
	assert.EqualValues(t, 2, sumOf(t, data["settlement_plans_total"]))
	assert.EqualValues(t, 6, sumOf(t, data["settlement_transactions_total"]))
	assert.EqualValues(t, 1, sumOf(t, data["settlement_unsettled_investors_total"]))
	assert.EqualValues(t, 2, sumOf(t, data["settlement_plan_cache_lookups_total"]))
	assert.EqualValues(t, 1, sumOf(t, data["settlement_statements_exported_total"]))

	hist, ok := data["settlement_plan_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.EqualValues(t, 2, count)
}

func TestSettlementMetrics_NilReceiver(t *testing.T) {
	var m *SettlementMetrics
	assert.NotPanics(t, func() {
		m.RecordPlan(context.Background(), PlanObservation{})
		m.RecordCacheLookup(context.Background(), true)
		m.RecordStatementExported(context.Background())
	})
}
