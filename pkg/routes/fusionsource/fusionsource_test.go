package fusionsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fusionerrors "github.com/Ramsey-B/fusion/pkg/errors"
	"github.com/Ramsey-B/fusion/pkg/fusion"
	"github.com/Ramsey-B/fusion/pkg/middleware"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/scheduler"
)

type memStore struct {
	sources map[string]*models.FusionSettings
	next    int
}

func (s *memStore) Create(_ context.Context, settings *models.FusionSettings) error {
	s.next++
	settings.ID = fmt.Sprintf("fs-%d", s.next)
	c := *settings
	s.sources[settings.ID] = &c
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*models.FusionSettings, error) {
	settings, ok := s.sources[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "fusion source not found")
	}
	c := *settings
	return &c, nil
}

func (s *memStore) List(_ context.Context) ([]models.FusionSettings, error) {
	out := []models.FusionSettings{}
	for _, settings := range s.sources {
		out = append(out, *settings)
	}
	return out, nil
}

func (s *memStore) Update(_ context.Context, settings *models.FusionSettings) error {
	if _, ok := s.sources[settings.ID]; !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "fusion source not found")
	}
	c := *settings
	s.sources[settings.ID] = &c
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	delete(s.sources, id)
	return nil
}

type fakeRunner struct {
	err error
}

func (r *fakeRunner) RunSource(_ context.Context, settings *models.FusionSettings) (*fusion.PassResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	errs := &fusionerrors.BatchError{}
	errs.Add(fusionerrors.WrapAccountError("a-7", fmt.Errorf("template failed")))
	return &fusion.PassResult{
		Summary: models.PassSummary{FusionSourceID: settings.ID, Baselines: 2},
		Errors:  errs,
	}, nil
}

type fakeReporter struct{}

func (fakeReporter) Report(_ context.Context, settings *models.FusionSettings) (*models.Report, error) {
	return &models.Report{
		FusionSourceID: settings.ID,
		Analyses: []models.AccountAnalysis{
			{AccountID: "a-1", Results: []string{"No matching identity found"}},
		},
	}, nil
}

const validBody = `{
	"name": "Employees",
	"enabled": true,
	"sources": ["HR", "CRM"],
	"merging_enabled": true,
	"merging_map": [{"identity": "displayName", "account": ["fullName"]}],
	"merging_score": 80,
	"uid_template": "{{ name }}"
}`

func setup(runner *fakeRunner) (*echo.Echo, *memStore) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := &memStore{sources: map[string]*models.FusionSettings{}}

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	Register(e.Group("/api/v1/fusion-sources"), NewHandler(logger, store, runner, fakeReporter{}))
	return e, store
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateFusionSource(t *testing.T) {
	t.Run("stores valid settings", func(t *testing.T) {
		e, store := setup(&fakeRunner{})
		rec := do(e, http.MethodPost, "/api/v1/fusion-sources", validBody)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Contains(t, store.sources, "fs-1")
		assert.Equal(t, []string{"HR", "CRM"}, store.sources["fs-1"].Sources)
	})

	t.Run("struct validation failures are 400", func(t *testing.T) {
		e, store := setup(&fakeRunner{})
		rec := do(e, http.MethodPost, "/api/v1/fusion-sources", `{"name": "Employees"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, store.sources)
	})

	t.Run("reserved attributes are a configuration error", func(t *testing.T) {
		e, _ := setup(&fakeRunner{})
		body := strings.Replace(validBody, `"displayName"`, `"history"`, 1)
		rec := do(e, http.MethodPost, "/api/v1/fusion-sources", body)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp middleware.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Message, "reserved")
	})

	t.Run("malformed unique id templates are rejected", func(t *testing.T) {
		e, store := setup(&fakeRunner{})
		body := strings.Replace(validBody, `{{ name }}`, `{{ name[ }}`, 1)
		rec := do(e, http.MethodPost, "/api/v1/fusion-sources", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, store.sources)
	})
}

func TestUpdateFusionSource(t *testing.T) {
	e, store := setup(&fakeRunner{})
	require.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/api/v1/fusion-sources", validBody).Code)

	body := strings.Replace(validBody, `"Employees"`, `"Staff"`, 1)
	rec := do(e, http.MethodPut, "/api/v1/fusion-sources/fs-1", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Staff", store.sources["fs-1"].Name)

	rec = do(e, http.MethodPut, "/api/v1/fusion-sources/fs-404", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunFusionSource(t *testing.T) {
	t.Run("returns the pass summary and errors", func(t *testing.T) {
		e, _ := setup(&fakeRunner{})
		require.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/api/v1/fusion-sources", validBody).Code)

		rec := do(e, http.MethodPost, "/api/v1/fusion-sources/fs-1/run", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body RunResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 2, body.Summary.Baselines)
		require.Len(t, body.Errors, 1)
		assert.Contains(t, body.Errors[0], "a-7")
	})

	t.Run("a running pass is a conflict", func(t *testing.T) {
		e, _ := setup(&fakeRunner{err: scheduler.ErrPassInProgress})
		require.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/api/v1/fusion-sources", validBody).Code)

		rec := do(e, http.MethodPost, "/api/v1/fusion-sources/fs-1/run", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("configuration errors are 400", func(t *testing.T) {
		e, _ := setup(&fakeRunner{err: fusionerrors.NewConfigurationError("unique id template is required")})
		require.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/api/v1/fusion-sources", validBody).Code)

		rec := do(e, http.MethodPost, "/api/v1/fusion-sources/fs-1/run", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestReportFusionSource(t *testing.T) {
	e, _ := setup(&fakeRunner{})
	require.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/api/v1/fusion-sources", validBody).Code)

	rec := do(e, http.MethodGet, "/api/v1/fusion-sources/fs-1/report", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Analyses, 1)
	assert.Equal(t, []string{"No matching identity found"}, report.Analyses[0].Results)

	rec = do(e, http.MethodDelete, "/api/v1/fusion-sources/fs-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(e, http.MethodGet, "/api/v1/fusion-sources/fs-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
