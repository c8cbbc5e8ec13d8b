package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fusion/pkg/metrics"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

// messageWriter is the part of kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON messages to Kafka
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer. Topics are chosen per message.
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, logger)
}

func newProducer(writer messageWriter, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Message is one outgoing record
type Message struct {
	Topic     string
	Key       string
	EventType string
	Version   string
	Value     any
}

// Publish encodes and writes messages in one batch. Keys keep per-entity ordering.
func (p *Producer) Publish(ctx context.Context, messages ...Message) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	if len(messages) == 0 {
		return nil
	}

	traceParent := tracing.GetTraceParent(ctx)
	traceState := tracing.GetTraceState(ctx)

	out := make([]kafka.Message, len(messages))
	for i, m := range messages {
		data, err := json.Marshal(m.Value)
		if err != nil {
			return err
		}

		headers := []kafka.Header{
			{Key: HeaderEventType, Value: []byte(m.EventType)},
			{Key: HeaderSchemaVersion, Value: []byte(m.Version)},
		}
		if traceParent != "" {
			headers = append(headers, kafka.Header{Key: HeaderTraceParent, Value: []byte(traceParent)})
		}
		if traceState != "" {
			headers = append(headers, kafka.Header{Key: HeaderTraceState, Value: []byte(traceState)})
		}

		out[i] = kafka.Message{
			Topic:   m.Topic,
			Key:     []byte(m.Key),
			Value:   data,
			Headers: headers,
		}
	}

	start := time.Now()
	err := p.writer.WriteMessages(ctx, out...)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordKafkaPublish(messages[0].Topic, status, time.Since(start).Seconds())

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(out),
		}).Error("Failed to publish messages")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(out),
		"topic":      messages[0].Topic,
	}).Debug("Published messages")

	return nil
}
