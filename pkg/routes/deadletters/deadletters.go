package deadletters

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fusion/pkg/redis"
)

const maxListCount = 1000

// Queue is the dead letter stream the Kafka consumers park messages on
type Queue interface {
	List(ctx context.Context, count int64) ([]redis.DLQEntry, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, messageID string) error
}

type Handler struct {
	logger ectologger.Logger
	queue  Queue
}

func NewHandler(logger ectologger.Logger, queue Queue) *Handler {
	return &Handler{logger: logger, queue: queue}
}

// Register registers dead letter routes
func Register(g *echo.Group, h *Handler) {
	g.GET("", h.ListDeadLetters)
	g.GET("/count", h.CountDeadLetters)
	g.DELETE("/:id", h.DeleteDeadLetter)
}

type CountResponse struct {
	Count int64 `json:"count"`
}

// ListDeadLetters returns the newest parked messages
func (h *Handler) ListDeadLetters(c echo.Context) error {
	count := int64(100)
	if raw := c.QueryParam("count"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "count must be a positive integer")
		}
		count = min(parsed, maxListCount)
	}

	entries, err := h.queue.List(c.Request().Context(), count)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []redis.DLQEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) CountDeadLetters(c echo.Context) error {
	count, err := h.queue.Count(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CountResponse{Count: count})
}

// DeleteDeadLetter drops a parked message by its stream ID once it has been dealt with
func (h *Handler) DeleteDeadLetter(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := h.queue.Delete(ctx, id); err != nil {
		if errors.Is(err, redis.ErrDLQEntryNotFound) {
			return httperror.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}

	h.logger.WithContext(ctx).WithField("dlq_id", id).Info("Dead letter deleted")
	return c.NoContent(http.StatusNoContent)
}
