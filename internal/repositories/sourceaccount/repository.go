package sourceaccount

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fusion/pkg/database"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

const table = "source_accounts"

var columns = []string{
	"id", "source_id", "source_name", "native_identity", "name", "identity_id",
	"correlated", "disabled", "attributes", "created_at", "updated_at",
}

type row struct {
	models.SourceAccount
	Attributes database.JSONB[map[string]any] `db:"attributes"`
}

func (r row) toModel() models.SourceAccount {
	acc := r.SourceAccount
	acc.Attributes = r.Attributes.GetValue()
	if acc.Attributes == nil {
		acc.Attributes = map[string]any{}
	}
	return acc
}

// Repository stores the source accounts aggregated from the authoritative sources
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new source account repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or refreshes a source account
func (r *Repository) Upsert(ctx context.Context, req models.UpsertSourceAccountRequest) (*models.SourceAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "sourceaccount.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	attributes := req.Attributes
	if attributes == nil {
		attributes = map[string]any{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(req.ID, req.SourceID, req.SourceName, req.NativeIdentity, req.Name, req.IdentityID,
		req.Correlated, req.Disabled, database.NewJSONB(attributes), now, now)
	database.Upsert(ib, []string{"id"},
		"source_id", "source_name", "native_identity", "name", "identity_id",
		"correlated", "disabled", "attributes", "updated_at")
	ib.SQL("RETURNING created_at")

	query, args := ib.Build()
	var createdAt time.Time
	if err := r.db.GetContext(ctx, &createdAt, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"account_id":  req.ID,
			"source_name": req.SourceName,
		}).Error("Failed to upsert source account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert source account")
	}

	return &models.SourceAccount{
		ID:             req.ID,
		SourceID:       req.SourceID,
		SourceName:     req.SourceName,
		NativeIdentity: req.NativeIdentity,
		Name:           req.Name,
		IdentityID:     req.IdentityID,
		Correlated:     req.Correlated,
		Disabled:       req.Disabled,
		Attributes:     attributes,
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}, nil
}

// GetAccount retrieves a source account by ID. A missing account is not an error; it
// returns nil so callers can treat it as removed.
func (r *Repository) GetAccount(ctx context.Context, id string) (*models.SourceAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "sourceaccount.Repository.GetAccount")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rw row
	if err := r.db.GetContext(ctx, &rw, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get source account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get source account")
	}

	acc := rw.toModel()
	return &acc, nil
}

// ListAccounts retrieves the accounts of the given sources, matched by source name or ID
func (r *Repository) ListAccounts(ctx context.Context, sources []string) ([]models.SourceAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "sourceaccount.Repository.ListAccounts")
	defer span.End()

	if len(sources) == 0 {
		return []models.SourceAccount{}, nil
	}

	flat := sqlbuilder.Flatten(sources)
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Or(
		sb.In("source_name", flat...),
		sb.In("source_id", flat...),
	))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"sources": sources}).Error("Failed to list source accounts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list source accounts")
	}

	out := make([]models.SourceAccount, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}

// Delete removes a source account. Fusion accounts drop the link on their next pass.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "sourceaccount.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(table)
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"account_id": id}).Error("Failed to delete source account")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete source account")
	}
	return nil
}
