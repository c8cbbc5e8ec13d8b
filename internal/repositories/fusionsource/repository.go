package fusionsource

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fusion/pkg/database"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

const table = "fusion_sources"

var columns = []string{"id", "name", "enabled", "settings", "created_at", "updated_at"}

type row struct {
	ID        string                                `db:"id"`
	Name      string                                `db:"name"`
	Enabled   bool                                  `db:"enabled"`
	Settings  database.JSONB[models.FusionSettings] `db:"settings"`
	CreatedAt time.Time                             `db:"created_at"`
	UpdatedAt time.Time                             `db:"updated_at"`
}

// toModel lets the columns win over whatever the settings document carries
func (r row) toModel() models.FusionSettings {
	s := r.Settings.GetValue()
	s.ID = r.ID
	s.Name = r.Name
	s.Enabled = r.Enabled
	s.CreatedAt = r.CreatedAt
	s.UpdatedAt = r.UpdatedAt
	return s
}

// Repository stores fusion source configurations
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new fusion source repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new fusion source and assigns its ID
func (r *Repository) Create(ctx context.Context, settings *models.FusionSettings) error {
	ctx, span := tracing.StartSpan(ctx, "fusionsource.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	settings.ID = uuid.NewString()
	settings.CreatedAt = now
	settings.UpdatedAt = now

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(settings.ID, settings.Name, settings.Enabled, database.NewJSONB(*settings), now, now)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": settings.Name}).Error("Failed to create fusion source")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create fusion source")
	}

	return nil
}

// Get retrieves a fusion source by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.FusionSettings, error) {
	ctx, span := tracing.StartSpan(ctx, "fusionsource.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rw row
	if err := r.db.GetContext(ctx, &rw, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("fusion source %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get fusion source")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get fusion source")
	}

	s := rw.toModel()
	return &s, nil
}

// List retrieves every fusion source
func (r *Repository) List(ctx context.Context) ([]models.FusionSettings, error) {
	ctx, span := tracing.StartSpan(ctx, "fusionsource.Repository.List")
	defer span.End()

	return r.list(ctx, false)
}

// ListEnabled retrieves the fusion sources the scheduler should run
func (r *Repository) ListEnabled(ctx context.Context) ([]models.FusionSettings, error) {
	ctx, span := tracing.StartSpan(ctx, "fusionsource.Repository.ListEnabled")
	defer span.End()

	return r.list(ctx, true)
}

func (r *Repository) list(ctx context.Context, enabledOnly bool) ([]models.FusionSettings, error) {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	if enabledOnly {
		sb.Where(sb.Equal("enabled", true))
	}
	sb.OrderBy("name")

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list fusion sources")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list fusion sources")
	}

	out := make([]models.FusionSettings, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.toModel())
	}
	return out, nil
}

// Update replaces the configuration of a fusion source
func (r *Repository) Update(ctx context.Context, settings *models.FusionSettings) error {
	ctx, span := tracing.StartSpan(ctx, "fusionsource.Repository.Update")
	defer span.End()

	settings.UpdatedAt = time.Now().UTC()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("name", settings.Name),
		ub.Assign("enabled", settings.Enabled),
		ub.Assign("settings", database.NewJSONB(*settings)),
		ub.Assign("updated_at", settings.UpdatedAt),
	)
	ub.Where(ub.Equal("id", settings.ID))

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"fusion_source_id": settings.ID}).Error("Failed to update fusion source")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update fusion source")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("fusion source %s not found", settings.ID))
	}
	return nil
}

// Delete removes a fusion source along with its fusion accounts and review requests
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "fusionsource.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(table)
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"fusion_source_id": id}).Error("Failed to delete fusion source")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete fusion source")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("fusion source %s not found", id))
	}
	return nil
}
