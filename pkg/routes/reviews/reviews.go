package reviews

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	fusionctx "github.com/Ramsey-B/fusion/pkg/context"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/utils"
)

// Service is the review workflow exposed over HTTP
type Service interface {
	Get(ctx context.Context, id string) (*models.ReviewRequest, error)
	List(ctx context.Context, fusionSourceID string) ([]models.ReviewRequest, error)
	Decide(ctx context.Context, id string, decision models.ReviewDecision) (*models.ReviewRequest, error)
	Withdraw(ctx context.Context, id string) (*models.ReviewRequest, error)
}

type Handler struct {
	logger  ectologger.Logger
	service Service
}

func NewHandler(logger ectologger.Logger, service Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register registers review routes
func Register(g *echo.Group, h *Handler) {
	g.GET("", h.ListReviews)
	g.GET("/:id", h.GetReview)
	g.POST("/:id/decision", h.DecideReview)
	g.POST("/:id/withdraw", h.WithdrawReview)
}

// ListReviews lists the review requests of a fusion source
func (h *Handler) ListReviews(c echo.Context) error {
	fusionSourceID := c.QueryParam("fusion_source_id")
	if fusionSourceID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "fusion_source_id query parameter is required")
	}

	requests, err := h.service.List(c.Request().Context(), fusionSourceID)
	if err != nil {
		return err
	}
	if requests == nil {
		requests = []models.ReviewRequest{}
	}
	return c.JSON(http.StatusOK, requests)
}

// GetReview gets a review request by ID
func (h *Handler) GetReview(c echo.Context) error {
	req, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, req)
}

// DecideReview records a reviewer's decision. The reviewer defaults to the calling actor.
func (h *Handler) DecideReview(c echo.Context) error {
	ctx := c.Request().Context()

	var decision models.ReviewDecision
	if err := c.Bind(&decision); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if decision.ReviewerID == "" {
		decision.ReviewerID = fusionctx.GetActorID(ctx)
	}

	decision, err := utils.Validate(decision)
	if err != nil {
		return err
	}

	req, err := h.service.Decide(ctx, c.Param("id"), decision)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, req)
}

// WithdrawReview cancels a pending review request
func (h *Handler) WithdrawReview(c echo.Context) error {
	req, err := h.service.Withdraw(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, req)
}
