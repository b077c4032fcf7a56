package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// MessageHandler synchronizes one decoded change event.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// MessageReader is the part of kafka.Reader the consumer drives.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds document change events to a MessageHandler. An offset is
// committed once its event is handled or given up on, never before.
type Consumer struct {
	reader       MessageReader
	topic        string
	logger       ectologger.Logger
	handler      MessageHandler
	maxRetries   int
	retryBackoff time.Duration
	running      atomic.Bool
	wg           sync.WaitGroup
	cancel       context.CancelFunc
}

type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// MaxRetries bounds handler retries for one event before it is dropped.
	MaxRetries   int
	RetryBackoff time.Duration
}

func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(reader, cfg, logger, handler)
}

func newConsumer(reader MessageReader, cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Consumer{
		reader:       reader,
		topic:        cfg.Topic,
		logger:       logger,
		handler:      handler,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running.Store(true)

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithField("topic", c.topic).Info("Change event consumer started")
	return nil
}

func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	defer c.running.Store(false)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("Change event consumer stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch change event")
			if !sleep(ctx, c.retryBackoff) {
				return
			}
			continue
		}

		c.processMessage(ctx, msg)
	}
}

// processMessage hands one message to the handler. Handler failures are
// retried with a linear backoff; after the last attempt the event is dropped
// and the next change to the same document heals it.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	incoming := NewIncomingMessage(msg)
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(incoming.Headers))
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	status := "processed"
	if err := incoming.Parse(); err != nil {
		log.WithError(err).Error("Failed to parse change event")
		status = "unparseable"
	} else if err := c.handle(ctx, incoming); err != nil {
		if ctx.Err() != nil {
			// Shutting down: leave the offset uncommitted for the next owner.
			return
		}
		log.WithError(err).WithField("document_id", incoming.GetDocumentID()).Error("Dropping change event after retries")
		tracing.RecordError(span, err)
		status = "dropped"
	}
	metrics.RecordMessage(msg.Topic, status)

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit change event offset")
	}
}

func (c *Consumer) handle(ctx context.Context, msg *IncomingMessage) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.RecordMessage(msg.Topic, "retried")
			if !sleep(ctx, time.Duration(attempt)*c.retryBackoff) {
				return ctx.Err()
			}
		}
		if err = c.handler(ctx, msg); err == nil {
			return nil
		}
		c.logger.WithContext(ctx).WithError(err).WithField("attempt", attempt+1).Warn("Change event handler failed")
	}
	return err
}

// Health reports whether the fetch loop is running.
func (c *Consumer) Health() bool {
	return c.running.Load()
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
