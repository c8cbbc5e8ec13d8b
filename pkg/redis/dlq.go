package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fusion/pkg/tracing"
)

const (
	// DefaultDLQStream is the stream that collects undeliverable messages
	DefaultDLQStream = "fusion:dlq"

	// DLQMaxLen caps the stream, oldest entries are trimmed
	DLQMaxLen = 10000
)

// ErrDLQEntryNotFound is returned when deleting an entry the stream no longer holds
var ErrDLQEntryNotFound = errors.New("DLQ entry not found")

// DLQReason classifies why a message was parked
type DLQReason string

const (
	DLQReasonMalformed DLQReason = "malformed"
	DLQReasonRejected  DLQReason = "rejected"
)

// DLQEntry is a consumed message that could not be applied
type DLQEntry struct {
	ID           string    `json:"id"`
	StreamID     string    `json:"stream_id,omitempty"`
	Topic        string    `json:"topic"`
	Key          string    `json:"key"`
	Value        string    `json:"value"`
	Partition    int       `json:"partition"`
	Offset       int64     `json:"offset"`
	Reason       DLQReason `json:"reason"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}

// DeadLetterQueue parks messages in a Redis stream for inspection
type DeadLetterQueue struct {
	client     *Client
	streamName string
	logger     ectologger.Logger
}

// NewDeadLetterQueue creates a new dead letter queue
func NewDeadLetterQueue(client *Client, streamName string, logger ectologger.Logger) *DeadLetterQueue {
	if streamName == "" {
		streamName = DefaultDLQStream
	}
	return &DeadLetterQueue{
		client:     client,
		streamName: streamName,
		logger:     logger,
	}
}

// Add appends an entry and returns its stream message ID
func (d *DeadLetterQueue) Add(ctx context.Context, entry *DLQEntry) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.DeadLetterQueue.Add")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.TraceID = tracing.GetTraceID(ctx)

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal DLQ entry: %w", err)
	}

	messageID, err := d.client.Redis().XAdd(ctx, &redis.XAddArgs{
		Stream: d.streamName,
		MaxLen: DLQMaxLen,
		Approx: true,
		Values: map[string]any{
			"data":   string(data),
			"topic":  entry.Topic,
			"reason": string(entry.Reason),
		},
	}).Result()
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Error("Failed to add message to DLQ")
		return "", fmt.Errorf("failed to add to DLQ: %w", err)
	}

	entry.StreamID = messageID

	d.logger.WithContext(ctx).Infof("Added message to DLQ: id=%s topic=%s reason=%s", entry.ID, entry.Topic, entry.Reason)
	return messageID, nil
}

// List returns the newest entries first
func (d *DeadLetterQueue) List(ctx context.Context, count int64) ([]DLQEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.DeadLetterQueue.List")
	defer span.End()

	if count <= 0 {
		count = 100
	}

	messages, err := d.client.Redis().XRevRangeN(ctx, d.streamName, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ: %w", err)
	}

	entries := make([]DLQEntry, 0, len(messages))
	for _, msg := range messages {
		entry, err := decodeEntry(msg)
		if err != nil {
			d.logger.WithContext(ctx).WithError(err).Warnf("Skipping DLQ entry: %s", msg.ID)
			continue
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

// Delete removes an entry by stream message ID
func (d *DeadLetterQueue) Delete(ctx context.Context, messageID string) error {
	ctx, span := tracing.StartSpan(ctx, "redis.DeadLetterQueue.Delete")
	defer span.End()

	count, err := d.client.Redis().XDel(ctx, d.streamName, messageID).Result()
	if err != nil {
		return fmt.Errorf("failed to delete DLQ entry: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrDLQEntryNotFound, messageID)
	}

	d.logger.WithContext(ctx).Infof("Deleted DLQ entry: %s", messageID)
	return nil
}

// Count returns the number of parked messages
func (d *DeadLetterQueue) Count(ctx context.Context) (int64, error) {
	return d.client.Redis().XLen(ctx, d.streamName).Result()
}

func decodeEntry(msg redis.XMessage) (*DLQEntry, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid DLQ entry format")
	}

	var entry DLQEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DLQ entry: %w", err)
	}
	entry.StreamID = msg.ID
	return &entry, nil
}
