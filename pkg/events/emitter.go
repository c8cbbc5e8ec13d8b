// Package events publishes the outcome of reconciliation passes and defines the
// messages fusion consumes
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fusion/pkg/kafka"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Topics names the outbound topics
type Topics struct {
	FusionAccounts string
	ReviewRequests string
	Errors         string
}

type publisher interface {
	Publish(ctx context.Context, messages ...kafka.Message) error
}

// Emitter publishes fusion account mutations, review requests and error reports
type Emitter struct {
	producer publisher
	topics   Topics
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer publisher, topics Topics, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		topics:   topics,
		logger:   logger,
	}
}

// PublishFusionAccount emits one mutation event for a changed fusion account
func (e *Emitter) PublishFusionAccount(ctx context.Context, fa *models.FusionAccount) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.PublishFusionAccount")
	defer span.End()

	event := FusionAccountUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventTypeFusionAccountUpdated, fa.FusionSourceID),
		FusionAccount: fa,
		Statuses:      fa.Statuses(),
	}

	return e.emit(ctx, e.topics.FusionAccounts, fa.ID, event.EventType, event)
}

// PublishReviewRequest emits a newly opened review request
func (e *Emitter) PublishReviewRequest(ctx context.Context, req *models.ReviewRequest) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.PublishReviewRequest")
	defer span.End()

	event := ReviewRequestOpenedEvent{
		BaseEvent:     NewBaseEvent(EventTypeReviewRequestOpened, req.FusionSourceID),
		ReviewRequest: req,
	}

	return e.emit(ctx, e.topics.ReviewRequests, req.ID, event.EventType, event)
}

// NotifyErrors emits the batched error report of a pass
func (e *Emitter) NotifyErrors(ctx context.Context, report *models.ErrorReport) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.NotifyErrors")
	defer span.End()

	event := FusionErrorsEvent{
		BaseEvent: NewBaseEvent(EventTypeFusionErrors, report.FusionSourceID),
		Report:    report,
	}

	return e.emit(ctx, e.topics.Errors, report.PassID, event.EventType, event)
}

func (e *Emitter) emit(ctx context.Context, topic, key string, eventType EventType, value any) error {
	err := e.producer.Publish(ctx, kafka.Message{
		Topic:     topic,
		Key:       key,
		EventType: string(eventType),
		Version:   SchemaVersion,
		Value:     value,
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
			"key":        key,
		}).Errorf("Failed to emit %s event", eventType)
		return err
	}
	return nil
}
