package kafka

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Ramsey-B/fusion/pkg/metrics"
	"github.com/Ramsey-B/fusion/pkg/redis"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

// MessageHandler processes incoming Kafka messages
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// DeadLetters parks messages that can never be processed
type DeadLetters interface {
	Add(ctx context.Context, entry *redis.DLQEntry) (string, error)
}

// messageReader is the part of kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer handles Kafka message consumption
type Consumer struct {
	reader  messageReader
	topic   string
	logger  ectologger.Logger
	handler MessageHandler
	dlq     DeadLetters
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// NewConsumer creates a new Kafka consumer. dlq may be nil, in which case unprocessable
// messages are logged and committed.
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler, dlq DeadLetters) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return newConsumer(reader, cfg.Topic, logger, handler, dlq)
}

func newConsumer(reader messageReader, topic string, logger ectologger.Logger, handler MessageHandler, dlq DeadLetters) *Consumer {
	return &Consumer{
		reader:  reader,
		topic:   topic,
		logger:  logger,
		handler: handler,
		dlq:     dlq,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": c.topic,
	}).Info("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			continue
		}

		c.processMessage(ctx, msg)
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	incoming := newIncomingMessage(msg)
	ctx = extractTraceContext(ctx, incoming)

	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	if err := c.handler(ctx, incoming); err != nil {
		reason, permanent := classify(err)
		if !permanent {
			// left uncommitted so the group redelivers it after a rebalance or restart
			log.WithError(err).Error("Failed to process message (not committing)")
			return
		}

		log.WithError(err).Warn("Message cannot be processed, parking it")
		c.park(ctx, incoming, reason, err)
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}

func (c *Consumer) park(ctx context.Context, msg *IncomingMessage, reason redis.DLQReason, cause error) {
	metrics.RecordDLQMessage(msg.Topic, string(reason))
	if c.dlq == nil {
		return
	}

	_, err := c.dlq.Add(ctx, &redis.DLQEntry{
		Topic:        msg.Topic,
		Key:          msg.Key,
		Value:        string(msg.Value),
		Partition:    msg.Partition,
		Offset:       msg.Offset,
		Reason:       reason,
		ErrorMessage: cause.Error(),
	})
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Failed to park message")
	}
}

// classify separates messages that will never succeed from transient failures
func classify(err error) (redis.DLQReason, bool) {
	var malformed *MalformedError
	if errors.As(err, &malformed) {
		return redis.DLQReasonMalformed, true
	}
	if httperror.IsHTTPError(err) {
		code := httperror.GetStatusCode(err)
		if code >= http.StatusBadRequest && code < http.StatusInternalServerError {
			return redis.DLQReasonRejected, true
		}
	}
	return "", false
}

func extractTraceContext(ctx context.Context, msg *IncomingMessage) context.Context {
	if msg.TraceParent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{HeaderTraceParent: msg.TraceParent}
	if msg.TraceState != "" {
		carrier[HeaderTraceState] = msg.TraceState
	}
	return propagation.TraceContext{}.Extract(ctx, carrier)
}

// Health returns the consumer health status
func (c *Consumer) Health() bool {
	return c.reader != nil
}
