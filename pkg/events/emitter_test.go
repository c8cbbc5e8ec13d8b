package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fusion/pkg/kafka"
	"github.com/Ramsey-B/fusion/pkg/models"
)

type recordingProducer struct {
	messages []kafka.Message
	err      error
}

func (p *recordingProducer) Publish(_ context.Context, messages ...kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, messages...)
	return nil
}

var topics = Topics{FusionAccounts: "fusion-accounts", ReviewRequests: "review-requests", Errors: "fusion-errors"}

func newTestEmitter(p *recordingProducer) *Emitter {
	return NewEmitter(p, topics, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestEmitter_PublishFusionAccount(t *testing.T) {
	p := &recordingProducer{}
	e := newTestEmitter(p)

	fa := &models.FusionAccount{ID: "fa-1", FusionSourceID: "fs-1", UniqueID: "jdoe", Provenance: models.ProvenanceAuto, Orphan: true}
	require.NoError(t, e.PublishFusionAccount(context.Background(), fa))
	require.Len(t, p.messages, 1)

	msg := p.messages[0]
	assert.Equal(t, "fusion-accounts", msg.Topic)
	assert.Equal(t, "fa-1", msg.Key)
	assert.Equal(t, string(EventTypeFusionAccountUpdated), msg.EventType)
	assert.Equal(t, SchemaVersion, msg.Version)

	data, err := json.Marshal(msg.Value)
	require.NoError(t, err)
	var decoded FusionAccountUpdatedEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "fs-1", decoded.FusionSourceID)
	assert.Equal(t, "jdoe", decoded.FusionAccount.UniqueID)
	assert.Equal(t, []string{"auto", "orphan"}, decoded.Statuses)
	assert.NotEmpty(t, decoded.CorrelationID)
}

func TestEmitter_PublishReviewRequest(t *testing.T) {
	p := &recordingProducer{}
	e := newTestEmitter(p)

	req := &models.ReviewRequest{ID: "rr-1", FusionSourceID: "fs-1", Reviewers: []string{"id-r"}}
	require.NoError(t, e.PublishReviewRequest(context.Background(), req))
	require.Len(t, p.messages, 1)
	assert.Equal(t, "review-requests", p.messages[0].Topic)
	assert.Equal(t, "rr-1", p.messages[0].Key)
}

func TestEmitter_NotifyErrors(t *testing.T) {
	p := &recordingProducer{}
	e := newTestEmitter(p)

	report := &models.ErrorReport{FusionSourceID: "fs-1", PassID: "pass-1", Errors: []string{"boom"}}
	require.NoError(t, e.NotifyErrors(context.Background(), report))
	require.Len(t, p.messages, 1)
	assert.Equal(t, "fusion-errors", p.messages[0].Topic)
	assert.Equal(t, string(EventTypeFusionErrors), p.messages[0].EventType)

	t.Run("producer errors are returned", func(t *testing.T) {
		failing := newTestEmitter(&recordingProducer{err: errors.New("broker down")})
		assert.Error(t, failing.NotifyErrors(context.Background(), report))
	})
}

func TestReviewDecisionMessage_Decode(t *testing.T) {
	var msg ReviewDecisionMessage
	require.NoError(t, json.Unmarshal([]byte(`{"review_id":"rr-1","reviewer_id":"id-r","target":"id-1"}`), &msg))
	assert.Equal(t, "rr-1", msg.ReviewID)
	assert.Equal(t, "id-r", msg.ReviewerID)
	assert.Equal(t, "id-1", msg.Target)
}
