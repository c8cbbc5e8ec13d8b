package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fusion/pkg/database"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

const table = "identities"

var columns = []string{"id", "name", "attributes", "account_ids", "reviewer", "created_at", "updated_at"}

type row struct {
	models.IdentityRecord
	Attributes database.JSONB[map[string]any] `db:"attributes"`
	AccountIDs pq.StringArray                 `db:"account_ids"`
}

func (r row) toModel() models.IdentityRecord {
	id := r.IdentityRecord
	id.Attributes = r.Attributes.GetValue()
	id.AccountIDs = []string(r.AccountIDs)
	return id
}

// Repository stores the resolved identities used as matching candidates
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new identity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or refreshes an identity
func (r *Repository) Upsert(ctx context.Context, req models.UpsertIdentityRequest) error {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	attributes := req.Attributes
	if attributes == nil {
		attributes = map[string]any{}
	}
	accountIDs := pq.StringArray(req.AccountIDs)
	if accountIDs == nil {
		accountIDs = pq.StringArray{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(req.ID, req.Name, database.NewJSONB(attributes), accountIDs, req.Reviewer, now, now)
	database.Upsert(ib, []string{"id"}, "name", "attributes", "account_ids", "reviewer", "updated_at")

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_id": req.ID}).Error("Failed to upsert identity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert identity")
	}
	return nil
}

// ListIdentities retrieves every identity ordered by ID
func (r *Repository) ListIdentities(ctx context.Context) ([]models.IdentityRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.ListIdentities")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.OrderBy("id")

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list identities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list identities")
	}

	out := make([]models.IdentityRecord, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}
