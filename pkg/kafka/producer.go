package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compressionCodec(cfg.Compression),
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	}
	return kafka.Snappy
}

// Topic returns the topic events are written to.
func (p *Producer) Topic() string {
	return p.topic
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// RelationshipEvent describes one synchronized relationship between a source
// record and a derived record.
type RelationshipEvent struct {
	EventType     string    `json:"event_type"` // relationship.synced
	SchemaVersion string    `json:"schema_version"`
	SourceID      string    `json:"source_id"`
	SourceType    string    `json:"source_type"`
	TargetID      string    `json:"target_id"`
	TargetType    string    `json:"target_type"`
	Action        string    `json:"action"`
	Status        string    `json:"status,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PublishRelationshipEvents publishes relationship events in one batch, keyed
// by source id so events for a source stay ordered.
func (p *Producer) PublishRelationshipEvents(ctx context.Context, events []*RelationshipEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRelationshipEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		headers := []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source_type", Value: []byte(event.SourceType)},
			{Key: "target_type", Value: []byte(event.TargetType)},
			{Key: "schema_version", Value: []byte(event.SchemaVersion)},
		}
		for _, key := range carrier.Keys() {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(carrier.Get(key))})
		}

		messages[i] = kafka.Message{
			Topic:   p.topic,
			Key:     []byte(event.SourceID),
			Value:   data,
			Headers: headers,
		}
	}

	err := p.writer.WriteMessages(ctx, messages...)
	metrics.RecordPublish(p.topic, err)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish relationship events batch")
		tracing.RecordError(span, err)
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published relationship events batch")

	return nil
}
