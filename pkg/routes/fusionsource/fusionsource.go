package fusionsource

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	fusionerrors "github.com/Ramsey-B/fusion/pkg/errors"
	"github.com/Ramsey-B/fusion/pkg/fusion"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/scheduler"
	"github.com/Ramsey-B/fusion/pkg/utils"
)

// Store persists fusion source settings
type Store interface {
	Create(ctx context.Context, settings *models.FusionSettings) error
	Get(ctx context.Context, id string) (*models.FusionSettings, error)
	List(ctx context.Context) ([]models.FusionSettings, error)
	Update(ctx context.Context, settings *models.FusionSettings) error
	Delete(ctx context.Context, id string) error
}

// PassRunner runs an on-demand pass under the fusion source lock
type PassRunner interface {
	RunSource(ctx context.Context, settings *models.FusionSettings) (*fusion.PassResult, error)
}

// Reporter produces the account analysis report
type Reporter interface {
	Report(ctx context.Context, settings *models.FusionSettings) (*models.Report, error)
}

type Handler struct {
	logger   ectologger.Logger
	store    Store
	runner   PassRunner
	reporter Reporter
}

func NewHandler(logger ectologger.Logger, store Store, runner PassRunner, reporter Reporter) *Handler {
	return &Handler{logger: logger, store: store, runner: runner, reporter: reporter}
}

// Register registers fusion source routes
func Register(g *echo.Group, h *Handler) {
	g.GET("", h.ListFusionSources)
	g.GET("/:id", h.GetFusionSource)
	g.POST("", h.CreateFusionSource)
	g.PUT("/:id", h.UpdateFusionSource)
	g.DELETE("/:id", h.DeleteFusionSource)
	g.POST("/:id/run", h.RunFusionSource)
	g.GET("/:id/report", h.ReportFusionSource)
}

// ListFusionSources lists every fusion source
func (h *Handler) ListFusionSources(c echo.Context) error {
	sources, err := h.store.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sources)
}

// GetFusionSource gets a fusion source by ID
func (h *Handler) GetFusionSource(c echo.Context) error {
	settings, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

// CreateFusionSource creates a fusion source
func (h *Handler) CreateFusionSource(c echo.Context) error {
	ctx := c.Request().Context()

	settings, err := bindSettings(c)
	if err != nil {
		return err
	}

	if err := h.store.Create(ctx, settings); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{"id": settings.ID, "name": settings.Name}).Info("Created fusion source")
	return c.JSON(http.StatusCreated, settings)
}

// UpdateFusionSource replaces the settings of a fusion source
func (h *Handler) UpdateFusionSource(c echo.Context) error {
	ctx := c.Request().Context()

	existing, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	settings, err := bindSettings(c)
	if err != nil {
		return err
	}
	settings.ID = existing.ID
	settings.CreatedAt = existing.CreatedAt

	if err := h.store.Update(ctx, settings); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, settings)
}

// DeleteFusionSource deletes a fusion source
func (h *Handler) DeleteFusionSource(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := h.store.Delete(ctx, id); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithField("id", id).Info("Deleted fusion source")
	return c.NoContent(http.StatusNoContent)
}

// RunFusionSource runs a reconciliation pass now and returns its summary
func (h *Handler) RunFusionSource(c echo.Context) error {
	ctx := c.Request().Context()

	settings, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	result, err := h.runner.RunSource(ctx, settings)
	if err != nil {
		if errors.Is(err, scheduler.ErrPassInProgress) {
			return httperror.NewHTTPError(http.StatusConflict, err.Error())
		}
		return fusionerrors.ToHTTPError(err)
	}

	return c.JSON(http.StatusOK, RunResponse{
		Summary: result.Summary,
		Errors:  result.Errors.Messages(),
	})
}

// RunResponse is the body returned by an on-demand pass
type RunResponse struct {
	Summary models.PassSummary `json:"summary"`
	Errors  []string           `json:"errors"`
}

// ReportFusionSource returns how every unmatched account would classify right now
func (h *Handler) ReportFusionSource(c echo.Context) error {
	ctx := c.Request().Context()

	settings, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	report, err := h.reporter.Report(ctx, settings)
	if err != nil {
		return fusionerrors.ToHTTPError(err)
	}

	return c.JSON(http.StatusOK, report)
}

func bindSettings(c echo.Context) (*models.FusionSettings, error) {
	var settings models.FusionSettings
	if err := c.Bind(&settings); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if _, err := utils.Validate(settings); err != nil {
		return nil, err
	}
	if err := fusion.ValidateSettings(&settings); err != nil {
		return nil, fusionerrors.ToHTTPError(err)
	}

	return &settings, nil
}
