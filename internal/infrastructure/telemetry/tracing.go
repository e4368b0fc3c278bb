package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for application spans
const TracerName = "github.com/propledger/backend"

// StartServiceSpan starts a span named {service}.{method}.
//
//	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "plan_selection")
//	defer span.End()
func StartServiceSpan(ctx context.Context, service, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(
		ctx,
		fmt.Sprintf("%s.%s", service, method),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// RecordError records err on the span and marks it failed
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Span attribute keys for settlement spans
const (
	SpanAttrPlanID           = "settlement.plan_id"
	SpanAttrPropertyCount    = "settlement.property_count"
	SpanAttrPeriodCount      = "settlement.period_count"
	SpanAttrInvestorCount    = "settlement.investor_count"
	SpanAttrTransactionCount = "settlement.transaction_count"
	SpanAttrUnsettledCount   = "settlement.unsettled_count"
	SpanAttrCacheHit         = "settlement.cache_hit"
)
