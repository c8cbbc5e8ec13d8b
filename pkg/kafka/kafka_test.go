package kafka

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fusion/pkg/redis"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		r.mu.Lock()
		if len(r.pending) > 0 {
			msg := r.pending[0]
			r.pending = r.pending[1:]
			r.mu.Unlock()
			return msg, nil
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeDLQ struct {
	entries []*redis.DLQEntry
}

func (d *fakeDLQ) Add(_ context.Context, entry *redis.DLQEntry) (string, error) {
	d.entries = append(d.entries, entry)
	return "1-0", nil
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, testLogger())

	err := p.Publish(context.Background(), Message{
		Topic:     "fusion-accounts",
		Key:       "fa-1",
		EventType: "fusion_account.updated",
		Version:   "1.0",
		Value:     map[string]string{"unique_id": "jdoe"},
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "fusion-accounts", msg.Topic)
	assert.Equal(t, "fa-1", string(msg.Key))
	assert.JSONEq(t, `{"unique_id":"jdoe"}`, string(msg.Value))

	headers := newIncomingMessage(msg).Headers
	assert.Equal(t, "fusion_account.updated", headers[HeaderEventType])
	assert.Equal(t, "1.0", headers[HeaderSchemaVersion])
	_, hasTrace := headers[HeaderTraceParent]
	assert.False(t, hasTrace)

	t.Run("empty batch is a no-op", func(t *testing.T) {
		require.NoError(t, p.Publish(context.Background()))
		assert.Len(t, w.messages, 1)
	})

	t.Run("write errors are returned", func(t *testing.T) {
		failing := newProducer(&fakeWriter{err: errors.New("broker down")}, testLogger())
		err := failing.Publish(context.Background(), Message{Topic: "t", Value: 1})
		assert.EqualError(t, err, "broker down")
	})
}

func TestConsumer_ProcessMessage(t *testing.T) {
	msg := kafka.Message{Topic: "review-decisions", Key: []byte("rr-1"), Value: []byte(`{"target":"id-1"}`), Offset: 7}

	t.Run("successful messages are committed", func(t *testing.T) {
		reader := &fakeReader{}
		dlq := &fakeDLQ{}
		var seen *IncomingMessage
		c := newConsumer(reader, "review-decisions", testLogger(), func(_ context.Context, in *IncomingMessage) error {
			seen = in
			return nil
		}, dlq)

		c.processMessage(context.Background(), msg)
		require.NotNil(t, seen)
		assert.Equal(t, "rr-1", seen.Key)
		assert.Equal(t, 1, reader.commits())
		assert.Empty(t, dlq.entries)
	})

	t.Run("malformed messages are parked and committed", func(t *testing.T) {
		reader := &fakeReader{}
		dlq := &fakeDLQ{}
		c := newConsumer(reader, "review-decisions", testLogger(), func(_ context.Context, in *IncomingMessage) error {
			var v []string
			return in.Decode(&v)
		}, dlq)

		c.processMessage(context.Background(), msg)
		assert.Equal(t, 1, reader.commits())
		require.Len(t, dlq.entries, 1)
		assert.Equal(t, redis.DLQReasonMalformed, dlq.entries[0].Reason)
		assert.Equal(t, int64(7), dlq.entries[0].Offset)
		assert.Equal(t, "rr-1", dlq.entries[0].Key)
	})

	t.Run("rejected messages are parked", func(t *testing.T) {
		reader := &fakeReader{}
		dlq := &fakeDLQ{}
		c := newConsumer(reader, "review-decisions", testLogger(), func(context.Context, *IncomingMessage) error {
			return httperror.NewHTTPError(http.StatusConflict, "review request is closed")
		}, dlq)

		c.processMessage(context.Background(), msg)
		assert.Equal(t, 1, reader.commits())
		require.Len(t, dlq.entries, 1)
		assert.Equal(t, redis.DLQReasonRejected, dlq.entries[0].Reason)
	})

	t.Run("transient failures are not committed", func(t *testing.T) {
		reader := &fakeReader{}
		dlq := &fakeDLQ{}
		c := newConsumer(reader, "review-decisions", testLogger(), func(context.Context, *IncomingMessage) error {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save review request")
		}, dlq)

		c.processMessage(context.Background(), msg)
		assert.Equal(t, 0, reader.commits())
		assert.Empty(t, dlq.entries)
	})

	t.Run("without a dlq unprocessable messages are still committed", func(t *testing.T) {
		reader := &fakeReader{}
		c := newConsumer(reader, "review-decisions", testLogger(), func(_ context.Context, in *IncomingMessage) error {
			var v []string
			return in.Decode(&v)
		}, nil)

		c.processMessage(context.Background(), msg)
		assert.Equal(t, 1, reader.commits())
	})
}

func TestConsumer_StartStop(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{
		{Topic: "source-accounts", Key: []byte("a"), Value: []byte(`{}`)},
		{Topic: "source-accounts", Key: []byte("b"), Value: []byte(`{}`)},
	}}

	var mu sync.Mutex
	var keys []string
	c := newConsumer(reader, "source-accounts", testLogger(), func(_ context.Context, in *IncomingMessage) error {
		mu.Lock()
		defer mu.Unlock()
		keys = append(keys, in.Key)
		return nil
	}, nil)

	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return reader.commits() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestExtractTraceContext(t *testing.T) {
	msg := &IncomingMessage{TraceParent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	ctx := extractTraceContext(context.Background(), msg)
	assert.NotEqual(t, context.Background(), ctx)

	same := extractTraceContext(context.Background(), &IncomingMessage{})
	assert.Equal(t, context.Background(), same)
}
