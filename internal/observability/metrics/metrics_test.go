package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "suno"),
		attribute.String("order_id", "456"),
		attribute.String("channel", "email"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "order_id" {
			t.Fatalf("order_id must not be used as a metric label")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordOrderCreated(context.Background())
	m.RecordProviderCall(context.Background(), "suno", "submit", time.Second, errors.New("boom"))
	m.RecordDelivery(context.Background(), "email", "sent")
	m.RecordEventAppendFailure(context.Background(), "delivered")
}

func TestNoopMetricsRecord(t *testing.T) {
	m := NewNoop()
	if m == nil {
		t.Fatalf("expected noop metrics")
	}
	m.RecordProviderCall(context.Background(), "openai", "chat", time.Millisecond, nil)
}
