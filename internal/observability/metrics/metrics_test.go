package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("state", "responded"),
		attribute.String("user_id", "456"),
		attribute.String("prompt", "hello"),
		attribute.String("outcome", "ok"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" || attr.Key == "prompt" {
			t.Fatalf("unexpected label %s retained", attr.Key)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordGeneration(ctx, "responded", "")
	m.RecordSettlement(ctx, "ok", 15)
	m.RecordDeposit(ctx, "ok")
	m.RecordReconciliation(ctx, "settlement_failed")
	m.ObserveProviderLatency(ctx, "openai", time.Second, false)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "tollgate-test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordGeneration(context.Background(), "rejected", "insufficient_funds")
	m.RecordSettlement(context.Background(), "ok", 15)
}
