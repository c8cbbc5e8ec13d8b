package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Header keys carried on every produced message
const (
	HeaderEventType     = "event_type"
	HeaderSchemaVersion = "schema_version"
	HeaderTraceParent   = "traceparent"
	HeaderTraceState    = "tracestate"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string
}

func newIncomingMessage(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &IncomingMessage{
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Time,
		Topic:       msg.Topic,
		TraceParent: headers[HeaderTraceParent],
		TraceState:  headers[HeaderTraceState],
	}
}

// EventType returns the event type header, if any
func (m *IncomingMessage) EventType() string {
	return m.Headers[HeaderEventType]
}

// Decode unmarshals the message value. Failures are wrapped as MalformedError so the
// consumer parks the message instead of retrying it.
func (m *IncomingMessage) Decode(v any) error {
	if err := json.Unmarshal(m.Value, v); err != nil {
		return &MalformedError{Topic: m.Topic, Offset: m.Offset, Err: err}
	}
	return nil
}

// MalformedError marks a message that can never be processed
type MalformedError struct {
	Topic  string
	Offset int64
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed message on %s at offset %d: %v", e.Topic, e.Offset, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}
