// Package review turns ambiguous matches into reviewer decisions and hands terminal
// requests back to the fusion account builder
package review

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fusion/pkg/models"
)

var (
	// ErrReviewClosed is returned for decisions or withdrawals on a request that can no longer change
	ErrReviewClosed = errors.New("review request is closed")
	// ErrReviewPending is returned when resolving a request nobody has decided yet
	ErrReviewPending = errors.New("review request is still pending")
	// ErrUnknownTarget is returned when a decision names an identity that was not offered
	ErrUnknownTarget = errors.New("decision target is not a candidate of this review")
	// ErrNotReviewer is returned when the deciding reviewer was not assigned to the request
	ErrNotReviewer = errors.New("reviewer is not assigned to this review")
)

// Workflow is the review request state machine. It performs no I/O.
type Workflow struct {
	logger ectologger.Logger
}

// NewWorkflow creates a new Workflow
func NewWorkflow(logger ectologger.Logger) *Workflow {
	return &Workflow{
		logger: logger,
	}
}

// Open creates a pending review request for an ambiguous match. It returns false when the
// match is not ambiguous, nobody can review it, or no candidate clears the score floor.
func (w *Workflow) Open(account *models.SourceAccount, result *models.MatchResult, reviewers []string, settings *models.FusionSettings, now time.Time) (*models.ReviewRequest, bool) {
	if account == nil || result == nil || result.Classification != models.ClassificationAmbiguous {
		return nil, false
	}
	if len(reviewers) == 0 {
		return nil, false
	}

	floor := 0.0
	if settings.GlobalMergingScore {
		floor = settings.MergingScore
	}

	candidates := make([]models.MatchCandidate, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		if c.Score >= floor {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	req := &models.ReviewRequest{
		ID:             uuid.New().String(),
		FusionSourceID: settings.ID,
		Account:        *account,
		Candidates:     candidates,
		Reviewers:      slices.Clone(reviewers),
		State:          models.ReviewStatePending,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
	if d := settings.ExpirationDuration(); d > 0 {
		req.Expiry = now.UTC().Add(d)
	}

	return req, true
}

// Decide records a reviewer decision. A pending request completes; a completed request that
// has not been applied yet takes the newer decision.
func (w *Workflow) Decide(ctx context.Context, req *models.ReviewRequest, decision models.ReviewDecision, now time.Time) error {
	if req.State == models.ReviewStateCancelled || req.Applied {
		return ErrReviewClosed
	}
	if len(req.Reviewers) > 0 && !slices.Contains(req.Reviewers, decision.ReviewerID) {
		return ErrNotReviewer
	}
	if !decision.IsNewIdentity() && !req.HasCandidate(decision.Target) {
		return ErrUnknownTarget
	}

	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = now.UTC()
	}

	if req.State == models.ReviewStateCompleted && req.Decision != nil {
		w.logger.WithContext(ctx).WithFields(map[string]any{
			"review_id":         req.ID,
			"previous_reviewer": req.Decision.ReviewerID,
			"previous_target":   req.Decision.Target,
			"reviewer":          decision.ReviewerID,
			"target":            decision.Target,
		}).Warn("Conflicting review decision, keeping the latest")
	}

	req.Decision = &decision
	req.State = models.ReviewStateCompleted
	req.UpdatedAt = now.UTC()
	return nil
}

// Expire cancels a pending request once its expiry has passed. It reports whether the state changed.
func (w *Workflow) Expire(req *models.ReviewRequest, now time.Time) bool {
	if req.State != models.ReviewStatePending || req.Expiry.IsZero() {
		return false
	}
	if now.Before(req.Expiry) {
		return false
	}
	req.State = models.ReviewStateCancelled
	req.UpdatedAt = now.UTC()
	return true
}

// Withdraw cancels a pending request regardless of its expiry
func (w *Workflow) Withdraw(req *models.ReviewRequest, now time.Time) error {
	if req.IsTerminal() {
		return ErrReviewClosed
	}
	req.State = models.ReviewStateCancelled
	req.UpdatedAt = now.UTC()
	return nil
}

// Resolve turns a terminal request into the single fusion account mutation it triggers and
// marks it applied. Applied requests are discarded by the caller.
func (w *Workflow) Resolve(req *models.ReviewRequest) (*models.Resolution, error) {
	if req.Applied {
		return nil, ErrReviewClosed
	}

	var res *models.Resolution
	switch req.State {
	case models.ReviewStateCompleted:
		if req.Decision == nil {
			return nil, fmt.Errorf("review %s completed without a decision", req.ID)
		}
		reviewer := req.Decision.ReviewerName
		if reviewer == "" {
			reviewer = req.Decision.ReviewerID
		}
		if req.Decision.IsNewIdentity() {
			res = &models.Resolution{
				Kind:       models.ResolutionCreateNew,
				Request:    req,
				Provenance: models.ProvenanceAuthorized,
				Message:    fmt.Sprintf("New identity approved by %s", reviewer),
			}
		} else {
			res = &models.Resolution{
				Kind:       models.ResolutionLinkExisting,
				Request:    req,
				IdentityID: req.Decision.Target,
				Provenance: models.ProvenanceManual,
				Message:    fmt.Sprintf("Assignment approved by %s", reviewer),
			}
		}
	case models.ReviewStateCancelled:
		res = &models.Resolution{
			Kind:    models.ResolutionRequeue,
			Request: req,
		}
	default:
		return nil, ErrReviewPending
	}

	req.Applied = true
	return res, nil
}
