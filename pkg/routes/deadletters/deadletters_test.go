package deadletters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fusion/pkg/middleware"
	"github.com/Ramsey-B/fusion/pkg/redis"
)

type memQueue struct {
	entries   []redis.DLQEntry
	lastCount int64
}

func (q *memQueue) List(_ context.Context, count int64) ([]redis.DLQEntry, error) {
	q.lastCount = count
	if int64(len(q.entries)) < count {
		return q.entries, nil
	}
	return q.entries[:count], nil
}

func (q *memQueue) Count(_ context.Context) (int64, error) {
	return int64(len(q.entries)), nil
}

func (q *memQueue) Delete(_ context.Context, id string) error {
	for i, e := range q.entries {
		if e.StreamID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", redis.ErrDLQEntryNotFound, id)
}

func setup(entries ...redis.DLQEntry) (*echo.Echo, *memQueue) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	q := &memQueue{entries: entries}

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	Register(e.Group("/dead-letters"), NewHandler(logger, q))
	return e, q
}

func do(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestListDeadLetters(t *testing.T) {
	e, q := setup(
		redis.DLQEntry{ID: "a", Topic: "review-decisions", Reason: redis.DLQReasonMalformed},
		redis.DLQEntry{ID: "b", Topic: "source-accounts", Reason: redis.DLQReasonRejected},
	)

	t.Run("defaults the count", func(t *testing.T) {
		rec := do(e, http.MethodGet, "/dead-letters")
		require.Equal(t, http.StatusOK, rec.Code)

		var entries []redis.DLQEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		assert.Len(t, entries, 2)
		assert.Equal(t, int64(100), q.lastCount)
	})

	t.Run("caps the count", func(t *testing.T) {
		rec := do(e, http.MethodGet, "/dead-letters?count=50000")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(maxListCount), q.lastCount)
	})

	t.Run("rejects a bad count", func(t *testing.T) {
		rec := do(e, http.MethodGet, "/dead-letters?count=-3")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListDeadLetters_Empty(t *testing.T) {
	e, _ := setup()
	rec := do(e, http.MethodGet, "/dead-letters")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCountDeadLetters(t *testing.T) {
	e, _ := setup(redis.DLQEntry{ID: "a"})
	rec := do(e, http.MethodGet, "/dead-letters/count")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())
}

func TestDeleteDeadLetter(t *testing.T) {
	e, q := setup(redis.DLQEntry{ID: "a", StreamID: "1700000000000-0"})

	rec := do(e, http.MethodDelete, "/dead-letters/1700000000000-0")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, q.entries)

	rec = do(e, http.MethodDelete, "/dead-letters/1700000000000-0")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
