package review

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fusion/pkg/metrics"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

// Store persists review requests
type Store interface {
	Create(ctx context.Context, req *models.ReviewRequest) error
	Get(ctx context.Context, id string) (*models.ReviewRequest, error)
	Save(ctx context.Context, req *models.ReviewRequest) error
	Delete(ctx context.Context, id string) error
	ListByFusionSource(ctx context.Context, fusionSourceID string) ([]models.ReviewRequest, error)
}

// Service applies externally delivered decisions to stored review requests. The HTTP routes
// and the review-decisions consumer both go through it.
type Service struct {
	store    Store
	workflow *Workflow
	logger   ectologger.Logger
	now      func() time.Time
}

// NewService creates a new review Service
func NewService(store Store, workflow *Workflow, logger ectologger.Logger) *Service {
	return &Service{
		store:    store,
		workflow: workflow,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns one review request
func (s *Service) Get(ctx context.Context, id string) (*models.ReviewRequest, error) {
	return s.store.Get(ctx, id)
}

// List returns the review requests of a fusion source
func (s *Service) List(ctx context.Context, fusionSourceID string) ([]models.ReviewRequest, error) {
	return s.store.ListByFusionSource(ctx, fusionSourceID)
}

// Decide records a reviewer decision on a stored request
func (s *Service) Decide(ctx context.Context, id string, decision models.ReviewDecision) (*models.ReviewRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Decide")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"review_id": id,
		"reviewer":  decision.ReviewerID,
		"target":    decision.Target,
	})

	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.workflow.Decide(ctx, req, decision, s.now()); err != nil {
		log.WithError(err).Warn("Rejected review decision")
		return nil, toHTTPError(err)
	}

	if err := s.store.Save(ctx, req); err != nil {
		return nil, err
	}

	metrics.RecordReviewDecision(req.FusionSourceID)
	log.Info("Recorded review decision")
	return req, nil
}

// Withdraw cancels a pending request. The account goes back to the unmatched pool on the next pass.
func (s *Service) Withdraw(ctx context.Context, id string) (*models.ReviewRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Withdraw")
	defer span.End()

	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.workflow.Withdraw(req, s.now()); err != nil {
		return nil, toHTTPError(err)
	}

	if err := s.store.Save(ctx, req); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithField("review_id", id).Info("Withdrew review request")
	return req, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrReviewClosed), errors.Is(err, ErrReviewPending):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotReviewer):
		return httperror.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrUnknownTarget):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
