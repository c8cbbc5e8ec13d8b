// Package processor applies the messages fusion consumes from Kafka: reviewer decisions
// and the source accounts and identities that feed the directory.
package processor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fusion/pkg/events"
	"github.com/Ramsey-B/fusion/pkg/kafka"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/tracing"
	"github.com/Ramsey-B/fusion/pkg/utils"
)

// DecisionApplier records a reviewer decision on a stored review request
type DecisionApplier interface {
	Decide(ctx context.Context, id string, decision models.ReviewDecision) (*models.ReviewRequest, error)
}

// AccountStore upserts and removes source accounts
type AccountStore interface {
	Upsert(ctx context.Context, req models.UpsertSourceAccountRequest) (*models.SourceAccount, error)
	Delete(ctx context.Context, id string) error
}

// IdentityStore upserts identities
type IdentityStore interface {
	Upsert(ctx context.Context, req models.UpsertIdentityRequest) error
}

// Processor handles the inbound topics
type Processor struct {
	logger     ectologger.Logger
	decisions  DecisionApplier
	accounts   AccountStore
	identities IdentityStore
}

// NewProcessor creates a new message processor
func NewProcessor(logger ectologger.Logger, decisions DecisionApplier, accounts AccountStore, identities IdentityStore) *Processor {
	return &Processor{
		logger:     logger,
		decisions:  decisions,
		accounts:   accounts,
		identities: identities,
	}
}

// HandleReviewDecision applies a decision from the review-decisions topic
func (p *Processor) HandleReviewDecision(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleReviewDecision")
	defer span.End()

	var decision events.ReviewDecisionMessage
	if err := msg.Decode(&decision); err != nil {
		return err
	}
	if decision.ReviewID == "" {
		decision.ReviewID = msg.Key
	}
	if decision.ReviewID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "review decision is missing the review id")
	}
	if _, err := utils.Validate(decision.ReviewDecision); err != nil {
		return err
	}

	req, err := p.decisions.Decide(ctx, decision.ReviewID, decision.ReviewDecision)
	if err != nil {
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"review_request_id": req.ID,
		"reviewer_id":       decision.ReviewerID,
		"target":            decision.Target,
	}).Info("Applied review decision")

	return nil
}

// HandleSourceRecord upserts or removes a directory record from the source-accounts topic
func (p *Processor) HandleSourceRecord(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleSourceRecord")
	defer span.End()

	var record events.SourceRecordMessage
	if err := msg.Decode(&record); err != nil {
		return err
	}

	eventType := record.EventType
	if eventType == "" {
		eventType = events.EventType(msg.EventType())
	}

	log := p.logger.WithContext(ctx).WithField("event_type", eventType)

	switch eventType {
	case events.EventTypeSourceAccountUpserted:
		if record.Account == nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "source account payload is missing")
		}
		req, err := utils.Validate(*record.Account)
		if err != nil {
			return err
		}
		if _, err := p.accounts.Upsert(ctx, req); err != nil {
			return err
		}
		log.WithField("account_id", req.ID).Debug("Upserted source account")

	case events.EventTypeSourceAccountDeleted:
		id := record.AccountID
		if id == "" {
			id = msg.Key
		}
		if id == "" {
			return httperror.NewHTTPError(http.StatusBadRequest, "account id is missing")
		}
		if err := p.accounts.Delete(ctx, id); err != nil {
			return err
		}
		log.WithField("account_id", id).Debug("Deleted source account")

	case events.EventTypeIdentityUpserted:
		if record.Identity == nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "identity payload is missing")
		}
		req, err := utils.Validate(*record.Identity)
		if err != nil {
			return err
		}
		if err := p.identities.Upsert(ctx, req); err != nil {
			return err
		}
		log.WithField("identity_id", req.ID).Debug("Upserted identity")

	default:
		return httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported event type %q", eventType))
	}

	return nil
}
