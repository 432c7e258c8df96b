package kafka

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PublisherMetrics tracks snapshot delivery.
type PublisherMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
}

type publisherMetrics struct {
	published metric.Int64Counter
	failed    metric.Int64Counter
}

// NewPublisherMetrics creates the publisher counters on mp.
func NewPublisherMetrics(mp metric.MeterProvider) (PublisherMetrics, error) {
	meter := mp.Meter("kafka_snapshot_publisher", metric.WithInstrumentationVersion("v0.1.0"))
	m := new(publisherMetrics)

	var err error
	if m.published, err = meter.Int64Counter(
		"messages_published_total",
		metric.WithDescription("Total number of snapshots published to Kafka"),
	); err != nil {
		return nil, err
	}

	if m.failed, err = meter.Int64Counter(
		"publish_errors_total",
		metric.WithDescription("Total number of snapshot publish failures"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *publisherMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.published.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *publisherMetrics) IncPublishError(ctx context.Context, topic string) {
	m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}
