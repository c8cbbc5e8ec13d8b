package review

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fusion/pkg/models"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestWorkflow() *Workflow {
	return NewWorkflow(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func testSettings() *models.FusionSettings {
	return &models.FusionSettings{
		ID:                    "fs-1",
		Name:                  "fusion",
		GlobalMergingScore:    true,
		MergingScore:          70,
		MergingExpirationDays: 5,
	}
}

func ambiguousResult() *models.MatchResult {
	return &models.MatchResult{
		Classification: models.ClassificationAmbiguous,
		Candidates: []models.MatchCandidate{
			{IdentityID: "id-1", IdentityName: "John Doe", Score: 90},
			{IdentityID: "id-2", IdentityName: "Jon Doe", Score: 75},
			{IdentityID: "id-3", IdentityName: "J Doe", Score: 50},
		},
	}
}

func openRequest(t *testing.T, w *Workflow) *models.ReviewRequest {
	t.Helper()
	acc := &models.SourceAccount{ID: "acc-1", Name: "jdoe", SourceName: "HR"}
	req, ok := w.Open(acc, ambiguousResult(), []string{"rev-1", "rev-2"}, testSettings(), testNow)
	require.True(t, ok)
	return req
}

func TestWorkflow_Open(t *testing.T) {
	w := newTestWorkflow()
	acc := &models.SourceAccount{ID: "acc-1", Name: "jdoe", SourceName: "HR"}

	t.Run("opens a pending request above the score floor", func(t *testing.T) {
		req, ok := w.Open(acc, ambiguousResult(), []string{"rev-1"}, testSettings(), testNow)
		require.True(t, ok)
		assert.Equal(t, models.ReviewStatePending, req.State)
		assert.NotEmpty(t, req.ID)
		assert.Equal(t, "fs-1", req.FusionSourceID)
		assert.Len(t, req.Candidates, 2)
		assert.Equal(t, testNow.Add(5*24*time.Hour), req.Expiry)
	})

	t.Run("no reviewers", func(t *testing.T) {
		_, ok := w.Open(acc, ambiguousResult(), nil, testSettings(), testNow)
		assert.False(t, ok)
	})

	t.Run("not ambiguous", func(t *testing.T) {
		result := ambiguousResult()
		result.Classification = models.ClassificationIdentical
		_, ok := w.Open(acc, result, []string{"rev-1"}, testSettings(), testNow)
		assert.False(t, ok)
	})

	t.Run("zero expiration days never expires", func(t *testing.T) {
		settings := testSettings()
		settings.MergingExpirationDays = 0
		req, ok := w.Open(acc, ambiguousResult(), []string{"rev-1"}, settings, testNow)
		require.True(t, ok)
		assert.True(t, req.Expiry.IsZero())
		assert.False(t, w.Expire(req, testNow.Add(1000*time.Hour)))
	})
}

func TestWorkflow_Decide(t *testing.T) {
	ctx := context.Background()

	t.Run("pending completes", func(t *testing.T) {
		w := newTestWorkflow()
		req := openRequest(t, w)
		err := w.Decide(ctx, req, models.ReviewDecision{ReviewerID: "rev-1", Target: "id-1"}, testNow)
		require.NoError(t, err)
		assert.Equal(t, models.ReviewStateCompleted, req.State)
		assert.Equal(t, testNow, req.Decision.DecidedAt)
	})

	t.Run("last observed decision wins", func(t *testing.T) {
		w := newTestWorkflow()
		req := openRequest(t, w)
		require.NoError(t, w.Decide(ctx, req, models.ReviewDecision{ReviewerID: "rev-1", Target: "id-1"}, testNow))
		require.NoError(t, w.Decide(ctx, req, models.ReviewDecision{ReviewerID: "rev-2", Target: models.NewIdentityTarget}, testNow))
		assert.Equal(t, "rev-2", req.Decision.ReviewerID)
		assert.True(t, req.Decision.IsNewIdentity())
	})

	t.Run("cancelled requests are closed", func(t *testing.T) {
		w := newTestWorkflow()
		req := openRequest(t, w)
		require.NoError(t, w.Withdraw(req, testNow))
		err := w.Decide(ctx, req, models.ReviewDecision{ReviewerID: "rev-1", Target: "id-1"}, testNow)
		assert.ErrorIs(t, err, ErrReviewClosed)
	})

	t.Run("applied requests are closed", func(t *testing.T) {
		w := newTestWorkflow()
		req := openRequest(t, w)
		require.NoError(t, w.Decide(ctx, req, models.ReviewDecision{ReviewerID: "rev-1", Target: "id-1"}, testNow))
		_, err := w.Resolve(req)
		require.NoError(t, err)
		err = w.Decide(ctx, req, models.ReviewDecision{ReviewerID: "rev-1", Target: "id-2"}, testNow)
		assert.ErrorIs(t, err, ErrReviewClosed)
	})

	t.Run("target must be a candidate", func(t *testing.T) {
		w := newTestWorkflow()
		req := openRequest(t, w)
		err := w.Decide(ctx, req, models.ReviewDecision{ReviewerID: "rev-1", Target: "id-3"}, testNow)
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("reviewer must be assigned", func(t *testing.T) {
		w := newTestWorkflow()
		req := openRequest(t, w)
		err := w.Decide(ctx, req, models.ReviewDecision{ReviewerID: "someone", Target: "id-1"}, testNow)
		assert.ErrorIs(t, err, ErrNotReviewer)
	})
}

func TestWorkflow_Expire(t *testing.T) {
	w := newTestWorkflow()
	req := openRequest(t, w)

	assert.False(t, w.Expire(req, testNow.Add(24*time.Hour)))
	assert.Equal(t, models.ReviewStatePending, req.State)

	assert.True(t, w.Expire(req, req.Expiry))
	assert.Equal(t, models.ReviewStateCancelled, req.State)

	assert.False(t, w.Expire(req, req.Expiry.Add(time.Hour)))
}

func TestWorkflow_Withdraw(t *testing.T) {
	w := newTestWorkflow()
	req := openRequest(t, w)
	require.NoError(t, w.Withdraw(req, testNow))
	assert.Equal(t, models.ReviewStateCancelled, req.State)
	assert.ErrorIs(t, w.Withdraw(req, testNow), ErrReviewClosed)
}

func TestWorkflow_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("existing identity links manually", func(t *testing.T) {
		w := newTestWorkflow()
		req := openRequest(t, w)
		require.NoError(t, w.Decide(ctx, req, models.ReviewDecision{ReviewerID: "rev-1", ReviewerName: "Ada", Target: "id-2"}, testNow))

		res, err := w.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionLinkExisting, res.Kind)
		assert.Equal(t, "id-2", res.IdentityID)
		assert.Equal(t, models.ProvenanceManual, res.Provenance)
		assert.Equal(t, "Assignment approved by Ada", res.Message)
		assert.True(t, req.Applied)
	})

	t.Run("new identity is authorized", func(t *testing.T) {
		w := newTestWorkflow()
		req := openRequest(t, w)
		require.NoError(t, w.Decide(ctx, req, models.ReviewDecision{ReviewerID: "rev-1", Target: models.NewIdentityTarget}, testNow))

		res, err := w.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionCreateNew, res.Kind)
		assert.Equal(t, models.ProvenanceAuthorized, res.Provenance)
		assert.Equal(t, "New identity approved by rev-1", res.Message)
	})

	t.Run("cancelled requests requeue", func(t *testing.T) {
		w := newTestWorkflow()
		req := openRequest(t, w)
		require.True(t, w.Expire(req, req.Expiry))

		res, err := w.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionRequeue, res.Kind)
	})

	t.Run("pending cannot resolve", func(t *testing.T) {
		w := newTestWorkflow()
		req := openRequest(t, w)
		_, err := w.Resolve(req)
		assert.ErrorIs(t, err, ErrReviewPending)
	})

	t.Run("resolves exactly once", func(t *testing.T) {
		w := newTestWorkflow()
		req := openRequest(t, w)
		require.NoError(t, w.Withdraw(req, testNow))
		_, err := w.Resolve(req)
		require.NoError(t, err)
		_, err = w.Resolve(req)
		assert.ErrorIs(t, err, ErrReviewClosed)
	})
}
