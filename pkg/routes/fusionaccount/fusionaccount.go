package fusionaccount

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	fusionctx "github.com/Ramsey-B/fusion/pkg/context"
	fusionerrors "github.com/Ramsey-B/fusion/pkg/errors"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/scheduler"
)

// Store reads and flags fusion accounts
type Store interface {
	Get(ctx context.Context, id string) (*models.FusionAccount, error)
	List(ctx context.Context, q models.ListFusionAccountsQuery) ([]models.FusionAccount, error)
	SetDisabled(ctx context.Context, id string, disabled bool) error
}

// SettingsReader loads the fusion source an account belongs to
type SettingsReader interface {
	Get(ctx context.Context, id string) (*models.FusionSettings, error)
}

// Locker serializes account mutations with reconciliation passes
type Locker interface {
	WithLock(ctx context.Context, settings *models.FusionSettings, fn func(ctx context.Context) error) error
}

// UniqueIDResetter regenerates a fusion account's unique id
type UniqueIDResetter interface {
	ResetUniqueID(ctx context.Context, settings *models.FusionSettings, fusionAccountID string) (*models.FusionAccount, error)
}

// LinkReader lists the source accounts linked to a fusion account in the graph projection
type LinkReader interface {
	LinkedAccounts(ctx context.Context, fusionAccountID string) ([]string, error)
}

type Handler struct {
	logger   ectologger.Logger
	accounts Store
	sources  SettingsReader
	locker   Locker
	resetter UniqueIDResetter
	links    LinkReader
}

func NewHandler(logger ectologger.Logger, accounts Store, sources SettingsReader, locker Locker, resetter UniqueIDResetter) *Handler {
	return &Handler{
		logger:   logger,
		accounts: accounts,
		sources:  sources,
		locker:   locker,
		resetter: resetter,
	}
}

// WithLinks enables the graph backed links endpoint
func (h *Handler) WithLinks(links LinkReader) *Handler {
	h.links = links
	return h
}

// Register registers fusion account routes
func Register(g *echo.Group, h *Handler) {
	g.GET("", h.ListFusionAccounts)
	g.GET("/:id", h.GetFusionAccount)
	g.GET("/:id/links", h.GetLinkedAccounts)
	g.POST("/:id/disable", h.DisableFusionAccount)
	g.POST("/:id/enable", h.EnableFusionAccount)
	g.POST("/:id/reset-unique-id", h.ResetUniqueID)
}

// ListFusionAccounts lists fusion accounts with optional filters
func (h *Handler) ListFusionAccounts(c echo.Context) error {
	var q models.ListFusionAccountsQuery
	if err := c.Bind(&q); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}

	accounts, err := h.accounts.List(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, accounts)
}

// GetFusionAccount gets a fusion account by ID
func (h *Handler) GetFusionAccount(c echo.Context) error {
	fa, err := h.accounts.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fa)
}

// GetLinkedAccounts lists the source account ids linked to a fusion account
func (h *Handler) GetLinkedAccounts(c echo.Context) error {
	if h.links == nil {
		return httperror.NewHTTPError(http.StatusNotImplemented, "graph projection is disabled")
	}

	ids, err := h.links.LinkedAccounts(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"fusion_account_id": c.Param("id"), "account_ids": ids})
}

// DisableFusionAccount marks a fusion account disabled
func (h *Handler) DisableFusionAccount(c echo.Context) error {
	return h.setDisabled(c, true)
}

// EnableFusionAccount clears the disabled flag
func (h *Handler) EnableFusionAccount(c echo.Context) error {
	return h.setDisabled(c, false)
}

func (h *Handler) setDisabled(c echo.Context, disabled bool) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := h.accounts.SetDisabled(ctx, id, disabled); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"fusion_account_id": id,
		"disabled":          disabled,
		"actor_id":          fusionctx.GetActorID(ctx),
	}).Info("Updated fusion account")

	fa, err := h.accounts.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fa)
}

// ResetUniqueID regenerates the unique id of a fusion account from its current template
func (h *Handler) ResetUniqueID(c echo.Context) error {
	ctx := c.Request().Context()

	fa, err := h.accounts.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	settings, err := h.sources.Get(ctx, fa.FusionSourceID)
	if err != nil {
		return err
	}

	var reset *models.FusionAccount
	err = h.locker.WithLock(ctx, settings, func(ctx context.Context) error {
		var err error
		reset, err = h.resetter.ResetUniqueID(ctx, settings, fa.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrPassInProgress) {
			return httperror.NewHTTPError(http.StatusConflict, err.Error())
		}
		return fusionerrors.ToHTTPError(err)
	}

	return c.JSON(http.StatusOK, reset)
}
