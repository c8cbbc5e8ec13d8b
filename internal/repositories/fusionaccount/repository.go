package fusionaccount

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

const table = "fusion_accounts"

var columns = []string{
	"id", "fusion_source_id", "unique_id", "name", "identity_id", "provenance",
	"orphan", "reviewer", "edited", "disabled", "account_ids", "sources", "reviews",
	"history", "attributes", "fingerprint", "created_at", "updated_at",
}

// columns overwritten when a fusion account is saved again
var updatable = []string{
	"unique_id", "name", "identity_id", "provenance", "orphan", "reviewer", "edited", "disabled",
	"account_ids", "sources", "reviews", "history", "attributes", "fingerprint", "updated_at",
}

// row is the fusion_accounts table shape
type row struct {
	ID             string                                `db:"id"`
	FusionSourceID string                                `db:"fusion_source_id"`
	UniqueID       string                                `db:"unique_id"`
	Name           string                                `db:"name"`
	IdentityID     string                                `db:"identity_id"`
	Provenance     string                                `db:"provenance"`
	Orphan         bool                                  `db:"orphan"`
	Reviewer       bool                                  `db:"reviewer"`
	Edited         bool                                  `db:"edited"`
	Disabled       bool                                  `db:"disabled"`
	AccountIDs     pq.StringArray                        `db:"account_ids"`
	Sources        pq.StringArray                        `db:"sources"`
	Reviews        pq.StringArray                        `db:"reviews"`
	History        database.JSONB[[]models.HistoryEntry] `db:"history"`
	Attributes     database.JSONB[map[string]any]        `db:"attributes"`
	Fingerprint    string                                `db:"fingerprint"`
	CreatedAt      time.Time                             `db:"created_at"`
	UpdatedAt      time.Time                             `db:"updated_at"`
}

func toRow(fa *models.FusionAccount) row {
	return row{
		ID:             fa.ID,
		FusionSourceID: fa.FusionSourceID,
		UniqueID:       fa.UniqueID,
		Name:           fa.Name,
		IdentityID:     fa.IdentityID,
		Provenance:     string(fa.Provenance),
		Orphan:         fa.Orphan,
		Reviewer:       fa.Reviewer,
		Edited:         fa.Edited,
		Disabled:       fa.Disabled,
		AccountIDs:     pq.StringArray(nonNil(fa.AccountIDs)),
		Sources:        pq.StringArray(nonNil(fa.Sources)),
		Reviews:        pq.StringArray(nonNil(fa.Reviews)),
		History:        database.NewJSONB(fa.History),
		Attributes:     database.NewJSONB(fa.Attributes),
		Fingerprint:    fa.Fingerprint,
		CreatedAt:      fa.CreatedAt,
		UpdatedAt:      fa.UpdatedAt,
	}
}

func (r row) toModel() models.FusionAccount {
	return models.FusionAccount{
		ID:             r.ID,
		FusionSourceID: r.FusionSourceID,
		UniqueID:       r.UniqueID,
		Name:           r.Name,
		IdentityID:     r.IdentityID,
		Provenance:     models.Provenance(r.Provenance),
		Orphan:         r.Orphan,
		Reviewer:       r.Reviewer,
		Edited:         r.Edited,
		Disabled:       r.Disabled,
		AccountIDs:     []string(r.AccountIDs),
		Sources:        []string(r.Sources),
		Reviews:        []string(r.Reviews),
		History:        r.History.GetValue(),
		Attributes:     r.Attributes.GetValue(),
		Fingerprint:    r.Fingerprint,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Repository handles fusion account persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new fusion account repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Save inserts or replaces a fusion account
func (r *Repository) Save(ctx context.Context, fa *models.FusionAccount) error {
	ctx, span := tracing.StartSpan(ctx, "fusionaccount.Repository.Save")
	defer span.End()

	if fa.CreatedAt.IsZero() {
		fa.CreatedAt = time.Now().UTC()
	}
	if fa.UpdatedAt.IsZero() {
		fa.UpdatedAt = fa.CreatedAt
	}

	rw := toRow(fa)
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(rw.ID, rw.FusionSourceID, rw.UniqueID, rw.Name, rw.IdentityID, rw.Provenance,
		rw.Orphan, rw.Reviewer, rw.Edited, rw.Disabled, rw.AccountIDs, rw.Sources, rw.Reviews,
		rw.History, rw.Attributes, rw.Fingerprint, rw.CreatedAt, rw.UpdatedAt)
	database.Upsert(ib, []string{"id"}, updatable...)

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"fusion_account_id": fa.ID}).Error("Failed to save fusion account")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save fusion account")
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit fusion account")
	}
	return nil
}

// Get retrieves a fusion account by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.FusionAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "fusionaccount.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rw row
	if err := r.db.GetContext(ctx, &rw, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("fusion account %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get fusion account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get fusion account")
	}

	fa := rw.toModel()
	return &fa, nil
}

// ListByFusionSource retrieves every fusion account of a fusion source, oldest first
func (r *Repository) ListByFusionSource(ctx context.Context, fusionSourceID string) ([]models.FusionAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "fusionaccount.Repository.ListByFusionSource")
	defer span.End()

	return r.list(ctx, models.ListFusionAccountsQuery{FusionSourceID: fusionSourceID})
}

// List retrieves fusion accounts matching a query
func (r *Repository) List(ctx context.Context, q models.ListFusionAccountsQuery) ([]models.FusionAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "fusionaccount.Repository.List")
	defer span.End()

	if q.Limit < 1 || q.Limit > 500 {
		q.Limit = 100
	}
	return r.list(ctx, q)
}

func (r *Repository) list(ctx context.Context, q models.ListFusionAccountsQuery) ([]models.FusionAccount, error) {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)

	var where []string
	if q.FusionSourceID != "" {
		where = append(where, sb.Equal("fusion_source_id", q.FusionSourceID))
	}
	if q.Provenance != "" {
		where = append(where, sb.Equal("provenance", q.Provenance))
	}
	if q.OrphanOnly {
		where = append(where, sb.Equal("orphan", true))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("created_at", "id")
	if q.Limit > 0 {
		sb.Limit(q.Limit)
		sb.Offset(q.Offset)
	}

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list fusion accounts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list fusion accounts")
	}

	out := make([]models.FusionAccount, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}

// ListUniqueIDs returns the unique IDs of every fusion account on the platform
func (r *Repository) ListUniqueIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "fusionaccount.Repository.ListUniqueIDs")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("unique_id")
	sb.From(table)

	query, args := sb.Build()
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unique ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unique ids")
	}
	return ids, nil
}

// SetDisabled toggles the disabled flag. Fusion accounts are never deleted.
func (r *Repository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	ctx, span := tracing.StartSpan(ctx, "fusionaccount.Repository.SetDisabled")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("disabled", disabled),
		ub.Assign("edited", true),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"fusion_account_id": id}).Error("Failed to update fusion account")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update fusion account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("fusion account %s not found", id))
	}
	return nil
}
