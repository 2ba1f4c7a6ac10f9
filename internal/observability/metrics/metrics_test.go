package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("credit_kind", "free"),
		attribute.String("user_id", "3f1c"),
		attribute.String("event_type", "order_created"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "credit_kind" && attrs[1].Key != "credit_kind" {
		t.Fatalf("expected credit_kind to be retained")
	}
	if attrs[0].Key != "event_type" && attrs[1].Key != "event_type" {
		t.Fatalf("expected event_type to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordGenerationConsumed(ctx, "free")
	m.RecordGenerationDenied(ctx, "out_of_credits")
	m.RecordPaymentEvent(ctx, "lemonsqueezy", "order_created", "applied")
	m.RecordTransaction(ctx, "high_res_image")
	m.RecordCreditGrant(ctx, "set")
	m.RecordRateLimitAllowed(ctx, "/api/generations")
	m.RecordRateLimitDenied(ctx, "/api/generations", "user-rate")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "logoforge"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordGenerationConsumed(context.Background(), "purchased")
}
