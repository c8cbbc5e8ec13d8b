package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fusion/pkg/models"
)

// EventType defines the type of event
type EventType string

const (
	// Outbound
	EventTypeFusionAccountUpdated EventType = "fusion_account.updated"
	EventTypeReviewRequestOpened  EventType = "review_request.opened"
	EventTypeFusionErrors         EventType = "fusion.errors"

	// Inbound
	EventTypeReviewDecided         EventType = "review.decided"
	EventTypeSourceAccountUpserted EventType = "source_account.upserted"
	EventTypeSourceAccountDeleted  EventType = "source_account.deleted"
	EventTypeIdentityUpserted      EventType = "identity.upserted"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType      EventType `json:"event_type"`
	SchemaVersion  string    `json:"schema_version"`
	FusionSourceID string    `json:"fusion_source_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
}

// FusionAccountUpdatedEvent carries a changed fusion account
type FusionAccountUpdatedEvent struct {
	BaseEvent
	FusionAccount *models.FusionAccount `json:"fusion_account"`
	Statuses      []string              `json:"statuses"`
}

// ReviewRequestOpenedEvent asks the listed reviewers to disambiguate an account
type ReviewRequestOpenedEvent struct {
	BaseEvent
	ReviewRequest *models.ReviewRequest `json:"review_request"`
}

// FusionErrorsEvent is the batched error report of one pass
type FusionErrorsEvent struct {
	BaseEvent
	Report *models.ErrorReport `json:"report"`
}

// ReviewDecisionMessage delivers a reviewer's decision. The message key is the review ID
// when ReviewID is empty.
type ReviewDecisionMessage struct {
	ReviewID string `json:"review_id"`
	models.ReviewDecision
}

// SourceRecordMessage feeds the directory. Exactly one payload is set, matching the
// event type header.
type SourceRecordMessage struct {
	EventType EventType                          `json:"event_type"`
	Account   *models.UpsertSourceAccountRequest `json:"account,omitempty"`
	Identity  *models.UpsertIdentityRequest      `json:"identity,omitempty"`
	AccountID string                             `json:"account_id,omitempty"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType, fusionSourceID string) BaseEvent {
	return BaseEvent{
		EventType:      eventType,
		SchemaVersion:  SchemaVersion,
		FusionSourceID: fusionSourceID,
		Timestamp:      time.Now().UTC(),
		CorrelationID:  uuid.NewString(),
	}
}
