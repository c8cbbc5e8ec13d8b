package reviewrequest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fusion/pkg/database"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

const table = "review_requests"

var columns = []string{
	"id", "fusion_source_id", "account_id", "account", "candidates", "reviewers", "state",
	"decision", "expiry", "applied", "created_at", "updated_at",
}

type row struct {
	ID             string                                  `db:"id"`
	FusionSourceID string                                  `db:"fusion_source_id"`
	AccountID      string                                  `db:"account_id"`
	Account        database.JSONB[models.SourceAccount]    `db:"account"`
	Candidates     database.JSONB[[]models.MatchCandidate] `db:"candidates"`
	Reviewers      pq.StringArray                          `db:"reviewers"`
	State          string                                  `db:"state"`
	Decision       database.JSONB[*models.ReviewDecision]  `db:"decision"`
	Expiry         *time.Time                              `db:"expiry"`
	Applied        bool                                    `db:"applied"`
	CreatedAt      time.Time                               `db:"created_at"`
	UpdatedAt      time.Time                               `db:"updated_at"`
}

func toRow(req *models.ReviewRequest) row {
	rw := row{
		ID:             req.ID,
		FusionSourceID: req.FusionSourceID,
		AccountID:      req.Account.ID,
		Account:        database.NewJSONB(req.Account),
		Candidates:     database.NewJSONB(req.Candidates),
		Reviewers:      pq.StringArray(req.Reviewers),
		State:          string(req.State),
		Decision:       database.NewJSONB(req.Decision),
		Applied:        req.Applied,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
	}
	if rw.Reviewers == nil {
		rw.Reviewers = pq.StringArray{}
	}
	// a zero expiry means the request never expires
	if !req.Expiry.IsZero() {
		expiry := req.Expiry
		rw.Expiry = &expiry
	}
	return rw
}

func (r row) toModel() models.ReviewRequest {
	req := models.ReviewRequest{
		ID:             r.ID,
		FusionSourceID: r.FusionSourceID,
		Account:        r.Account.GetValue(),
		Candidates:     r.Candidates.GetValue(),
		Reviewers:      []string(r.Reviewers),
		State:          models.ReviewState(r.State),
		Decision:       r.Decision.GetValue(),
		Applied:        r.Applied,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.Expiry != nil {
		req.Expiry = *r.Expiry
	}
	return req
}

// Repository handles review request persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new review request repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new review request
func (r *Repository) Create(ctx context.Context, req *models.ReviewRequest) error {
	ctx, span := tracing.StartSpan(ctx, "reviewrequest.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}

	rw := toRow(req)
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(rw.ID, rw.FusionSourceID, rw.AccountID, rw.Account, rw.Candidates, rw.Reviewers, rw.State,
		rw.Decision, rw.Expiry, rw.Applied, rw.CreatedAt, rw.UpdatedAt)

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"review_request_id": req.ID,
			"fusion_source_id":  req.FusionSourceID,
		}).Error("Failed to create review request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create review request")
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit review request")
	}
	return nil
}

// Get retrieves a review request by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.ReviewRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewrequest.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rw row
	if err := r.db.GetContext(ctx, &rw, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("review request %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get review request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review request")
	}

	req := rw.toModel()
	return &req, nil
}

// Save updates the mutable state of a review request
func (r *Repository) Save(ctx context.Context, req *models.ReviewRequest) error {
	ctx, span := tracing.StartSpan(ctx, "reviewrequest.Repository.Save")
	defer span.End()

	req.UpdatedAt = time.Now().UTC()
	rw := toRow(req)

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("state", rw.State),
		ub.Assign("decision", rw.Decision),
		ub.Assign("reviewers", rw.Reviewers),
		ub.Assign("expiry", rw.Expiry),
		ub.Assign("applied", rw.Applied),
		ub.Assign("updated_at", rw.UpdatedAt),
	)
	ub.Where(ub.Equal("id", req.ID))

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"review_request_id": req.ID}).Error("Failed to save review request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save review request")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("review request %s not found", req.ID))
	}

	return nil
}

// Delete removes a review request
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "reviewrequest.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(table)
	db.Where(db.Equal("id", id))

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	query, args := db.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"review_request_id": id}).Error("Failed to delete review request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete review request")
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit review request delete")
	}
	return nil
}

// ListByFusionSource retrieves the review requests of a fusion source, oldest first
func (r *Repository) ListByFusionSource(ctx context.Context, fusionSourceID string) ([]models.ReviewRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewrequest.Repository.ListByFusionSource")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("fusion_source_id", fusionSourceID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list review requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list review requests")
	}

	out := make([]models.ReviewRequest, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}
