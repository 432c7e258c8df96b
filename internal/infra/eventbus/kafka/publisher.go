package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/recon-armada/internal/app/orchestration"
	"github.com/ahrav/recon-armada/internal/infra/eventbus/kafka/tracing"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

// SnapshotMessage is the record value written for every snapshot.
type SnapshotMessage struct {
	RunID    string                 `json:"run_id"`
	Final    bool                   `json:"final"`
	Snapshot orchestration.Snapshot `json:"snapshot"`
}

// SnapshotPublisher writes run snapshots to a topic, keyed by run id so a run's
// snapshots stay ordered within one partition.
type SnapshotPublisher struct {
	producer sarama.SyncProducer
	topic    string

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics PublisherMetrics
}

// NewSnapshotPublisher wraps producer. metrics may be nil.
func NewSnapshotPublisher(
	producer sarama.SyncProducer,
	topic string,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics PublisherMetrics,
) *SnapshotPublisher {
	return &SnapshotPublisher{
		producer: producer,
		topic:    topic,
		logger:   log.With("component", "kafka.snapshot_publisher", "topic", topic),
		tracer:   tracer,
		metrics:  metrics,
	}
}

// Publish sends one snapshot of run runID.
func (p *SnapshotPublisher) Publish(ctx context.Context, runID string, snap orchestration.Snapshot) error {
	ctx, span := tracing.StartProducerSpan(ctx, p.topic, p.tracer)
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("iteration", snap.Iteration),
	)

	value, err := json.Marshal(SnapshotMessage{RunID: runID, Final: !snap.HasUnfinished(), Snapshot: snap})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode snapshot")
		p.incError(ctx)
		return fmt.Errorf("failed to encode snapshot %d of run %s: %w", snap.Iteration, runID, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(runID),
		Value: sarama.ByteEncoder(value),
	}
	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send snapshot")
		p.incError(ctx)
		return fmt.Errorf("failed to send snapshot to kafka topic %s: %w", p.topic, err)
	}

	if p.metrics != nil {
		p.metrics.IncMessagePublished(ctx, p.topic)
	}
	p.logger.Debug(ctx, "Published snapshot to Kafka",
		"run_id", runID,
		"iteration", snap.Iteration,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

func (p *SnapshotPublisher) incError(ctx context.Context) {
	if p.metrics != nil {
		p.metrics.IncPublishError(ctx, p.topic)
	}
}

// Close releases the producer.
func (p *SnapshotPublisher) Close() error { return p.producer.Close() }
