package fusion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fusionerrors "github.com/Ramsey-B/fusion/pkg/errors"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/review"
)

type harness struct {
	directory  *memDirectory
	store      *memFusionStore
	reviews    *memReviewStore
	publisher  *recordingPublisher
	notifier   *recordingNotifier
	projector  *recordingProjector
	reconciler *Reconciler
	settings   *models.FusionSettings
}

func newHarness() *harness {
	h := &harness{
		directory: &memDirectory{
			identities: []models.IdentityRecord{
				{ID: "id-1", Name: "John Doe", Attributes: map[string]any{"displayName": "John Doe"}},
				{ID: "id-2", Name: "Joan Doe", Attributes: map[string]any{"displayName": "Joan Doe"}},
				{ID: "id-9", Name: "Rita Reviewer", Attributes: map[string]any{"displayName": "Rita Reviewer"}},
			},
			accounts: []models.SourceAccount{
				{ID: "a1", SourceID: "src-hr", SourceName: "HR", Name: "jdoe", IdentityID: "id-1", Correlated: true, Attributes: map[string]any{"fullName": "John Doe"}},
				{ID: "a9", SourceID: "src-hr", SourceName: "HR", Name: "rita", IdentityID: "id-9", Correlated: true, Attributes: map[string]any{"fullName": "Rita Reviewer"}},
			},
		},
		store:     newMemFusionStore(),
		reviews:   newMemReviewStore(),
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
		projector: &recordingProjector{},
		settings: &models.FusionSettings{
			ID:                    "fs-1",
			Name:                  "Fusion",
			Sources:               []string{"HR", "CRM"},
			MergingEnabled:        true,
			MergingMap:            []models.MergingMapEntry{{IdentityAttribute: "displayName", AccountAttributes: []string{"fullName"}}},
			GlobalMergingScore:    true,
			MergingScore:          60,
			MergingExpirationDays: 3,
			Reviewers:             []string{"id-9"},
			UIDTemplate:           "{{ name }}",
			UIDDigits:             2,
		},
	}
	h.reconciler = NewReconciler(testLogger(), h.directory, h.store, h.reviews, h.publisher, h.notifier).WithProjector(h.projector)
	h.reconciler.now = func() time.Time { return testNow }
	return h
}

func (h *harness) addAccount(acc models.SourceAccount) {
	h.directory.accounts = append(h.directory.accounts, acc)
}

func (h *harness) run(t *testing.T) *PassResult {
	t.Helper()
	result, err := h.reconciler.Run(context.Background(), h.settings)
	require.NoError(t, err)
	return result
}

func TestReconciler_FirstRunBaselines(t *testing.T) {
	h := newHarness()
	h.addAccount(models.SourceAccount{ID: "a2", SourceName: "CRM", Name: "someone", Attributes: map[string]any{"fullName": "Some One"}})

	result := h.run(t)

	assert.True(t, result.Summary.FirstRun)
	assert.Equal(t, 3, result.Summary.Baselines)
	assert.Equal(t, 0, result.Summary.Processed)
	assert.Equal(t, 3, result.Summary.Updated)
	assert.Len(t, h.store.accounts, 3)
	assert.Len(t, h.publisher.accounts, 3)
	assert.Equal(t, 3, h.projector.projected)

	fa := h.store.byAccount("a1")
	require.NotNil(t, fa)
	assert.Equal(t, models.ProvenanceBaseline, fa.Provenance)
	assert.Equal(t, "id-1", fa.IdentityID)
	assert.Equal(t, "[2024-05-10] Baseline account [jdoe (HR)]", fa.History[0].Message)

	reviewer := h.store.byAccount("a9")
	require.NotNil(t, reviewer)
	assert.True(t, reviewer.Reviewer)
}

func TestReconciler_UnchangedAccountsAreNotSaved(t *testing.T) {
	h := newHarness()
	h.run(t)
	saves := h.store.saves

	result := h.run(t)
	assert.False(t, result.Summary.FirstRun)
	assert.Equal(t, 0, result.Summary.Updated)
	assert.Equal(t, saves, h.store.saves)
}

func TestReconciler_IdenticalMatchLinks(t *testing.T) {
	h := newHarness()
	h.run(t)

	h.addAccount(models.SourceAccount{ID: "a2", SourceName: "CRM", Name: "john.doe", Attributes: map[string]any{"fullName": "John Doe"}})
	result := h.run(t)

	assert.Equal(t, 1, result.Summary.Processed)
	assert.Equal(t, 1, result.Summary.AutoLinked)
	assert.Equal(t, 1, result.Summary.Updated)

	fa := h.store.byAccount("a2")
	require.NotNil(t, fa)
	assert.Equal(t, []string{"a1", "a2"}, fa.AccountIDs)
	assert.Equal(t, models.ProvenanceAuto, fa.Provenance)
	assert.Equal(t, []string{"HR", "CRM"}, fa.Sources)
	assert.Equal(t, "[2024-05-10] Identical match found. [john.doe (CRM)]", fa.History[len(fa.History)-1].Message)
}

func TestReconciler_NoMatchBuildsUnmatched(t *testing.T) {
	h := newHarness()
	h.run(t)

	h.addAccount(models.SourceAccount{ID: "a3", SourceName: "CRM", Name: "zed", Attributes: map[string]any{"fullName": "Zed Quux"}})
	result := h.run(t)

	assert.Equal(t, 1, result.Summary.Unmatched)
	fa := h.store.byAccount("a3")
	require.NotNil(t, fa)
	assert.Equal(t, models.ProvenanceUnmatched, fa.Provenance)
	assert.Equal(t, "zed", fa.UniqueID)
	assert.Empty(t, fa.IdentityID)
}

func TestReconciler_MergingDisabled(t *testing.T) {
	h := newHarness()
	h.run(t)
	h.settings.MergingEnabled = false

	h.addAccount(models.SourceAccount{ID: "a2", SourceName: "CRM", Name: "john.doe", Attributes: map[string]any{"fullName": "John Doe"}})
	h.run(t)

	fa := h.store.byAccount("a2")
	require.NotNil(t, fa)
	assert.Equal(t, models.ProvenanceUnmatched, fa.Provenance)
	assert.Contains(t, fa.History[0].Message, MessageMergingDisabled)
}

func openAmbiguousReview(t *testing.T, h *harness) *models.ReviewRequest {
	t.Helper()
	h.run(t)

	h.addAccount(models.SourceAccount{ID: "a3", SourceName: "CRM", Name: "jond", Attributes: map[string]any{"fullName": "Jon Doe"}})
	result := h.run(t)

	require.Equal(t, 1, result.Summary.ReviewsOpened)
	require.Len(t, result.Opened, 1)
	req := h.reviews.only()
	require.NotNil(t, req)
	return req
}

func TestReconciler_AmbiguousOpensReview(t *testing.T) {
	h := newHarness()
	req := openAmbiguousReview(t, h)

	assert.Equal(t, models.ReviewStatePending, req.State)
	assert.Equal(t, "a3", req.Account.ID)
	require.Len(t, req.Candidates, 2)
	assert.Equal(t, "id-1", req.Candidates[0].IdentityID)
	assert.Equal(t, "id-2", req.Candidates[1].IdentityID)
	assert.Equal(t, testNow.Add(72*time.Hour), req.Expiry)
	assert.Len(t, h.publisher.reviews, 1)
	assert.Nil(t, h.store.byAccount("a3"))

	reviewer := h.store.byAccount("a9")
	require.NotNil(t, reviewer)
	assert.Equal(t, []string{"jond (CRM): " + req.ID}, reviewer.Reviews)

	t.Run("pending accounts are skipped by later passes", func(t *testing.T) {
		result := h.run(t)
		assert.Equal(t, 0, result.Summary.Processed)
		assert.Equal(t, 0, result.Summary.ReviewsOpened)
	})
}

func TestReconciler_NewIdentityDecision(t *testing.T) {
	h := newHarness()
	req := openAmbiguousReview(t, h)

	svc := review.NewService(h.reviews, review.NewWorkflow(testLogger()), testLogger())
	_, err := svc.Decide(context.Background(), req.ID, models.ReviewDecision{ReviewerID: "id-9", ReviewerName: "Rita", Target: models.NewIdentityTarget})
	require.NoError(t, err)

	before := len(h.store.accounts)
	result := h.run(t)

	assert.Equal(t, 1, result.Summary.ReviewsResolved)
	assert.Len(t, h.store.accounts, before+1)
	assert.Empty(t, h.reviews.requests)

	fa := h.store.byAccount("a3")
	require.NotNil(t, fa)
	assert.Equal(t, models.ProvenanceAuthorized, fa.Provenance)
	assert.False(t, fa.Orphan)
	assert.NotContains(t, fa.Statuses(), models.StatusOrphan)
	assert.Equal(t, "[2024-05-10] New identity approved by Rita [jond (CRM)]", fa.History[0].Message)

	reviewer := h.store.byAccount("a9")
	assert.Empty(t, reviewer.Reviews)
}

func TestReconciler_LinkExistingDecision(t *testing.T) {
	h := newHarness()
	req := openAmbiguousReview(t, h)

	svc := review.NewService(h.reviews, review.NewWorkflow(testLogger()), testLogger())
	_, err := svc.Decide(context.Background(), req.ID, models.ReviewDecision{ReviewerID: "id-9", ReviewerName: "Rita", Target: "id-1"})
	require.NoError(t, err)

	h.run(t)

	fa := h.store.byAccount("a3")
	require.NotNil(t, fa)
	assert.Equal(t, []string{"a1", "a3"}, fa.AccountIDs)
	assert.Equal(t, models.ProvenanceManual, fa.Provenance)
	assert.Equal(t, "[2024-05-10] Assignment approved by Rita [jond (CRM)]", fa.History[len(fa.History)-1].Message)
}

func TestReconciler_DecisionSurvivesFailedSave(t *testing.T) {
	h := newHarness()
	tx := &recordingTransactor{}
	h.reconciler.WithTransactor(tx)
	req := openAmbiguousReview(t, h)

	svc := review.NewService(h.reviews, review.NewWorkflow(testLogger()), testLogger())
	_, err := svc.Decide(context.Background(), req.ID, models.ReviewDecision{ReviewerID: "id-9", ReviewerName: "Rita", Target: "id-1"})
	require.NoError(t, err)

	h.store.saveErr = errors.New("db down")
	_, err = h.reconciler.Run(context.Background(), h.settings)
	require.Error(t, err)

	last := tx.txs[len(tx.txs)-1]
	assert.True(t, last.rolledBack)
	assert.False(t, last.committed)

	kept, err := h.reviews.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStateCompleted, kept.State)
	assert.Nil(t, h.store.byAccount("a3"))

	h.store.saveErr = nil
	result := h.run(t)

	assert.Equal(t, 1, result.Summary.ReviewsResolved)
	assert.Equal(t, 0, result.Summary.ReviewsOpened)
	assert.Empty(t, h.reviews.requests)
	assert.True(t, tx.txs[len(tx.txs)-1].committed)

	fa := h.store.byAccount("a3")
	require.NotNil(t, fa)
	assert.Equal(t, []string{"a1", "a3"}, fa.AccountIDs)
}

func TestReconciler_ExpiredReviewRequeues(t *testing.T) {
	h := newHarness()
	req := openAmbiguousReview(t, h)

	h.reconciler.now = func() time.Time { return req.Expiry.Add(time.Minute) }
	result := h.run(t)

	assert.Equal(t, 1, result.Summary.ReviewsResolved)
	assert.Equal(t, 1, result.Summary.Processed)
	assert.Equal(t, 1, result.Summary.ReviewsOpened)

	next := h.reviews.only()
	require.NotNil(t, next)
	assert.NotEqual(t, req.ID, next.ID)
	assert.Nil(t, h.store.byAccount("a3"))
}

func TestReconciler_DirectoryReviewersReceiveReviews(t *testing.T) {
	h := newHarness()
	h.settings.Reviewers = nil
	h.directory.identities[2].Reviewer = true

	req := openAmbiguousReview(t, h)
	assert.Equal(t, []string{"id-9"}, req.Reviewers)

	reviewer := h.store.byAccount("a9")
	require.NotNil(t, reviewer)
	assert.True(t, reviewer.Reviewer)
	assert.Equal(t, []string{"jond (CRM): " + req.ID}, reviewer.Reviews)
}

func TestReconciler_NoReviewersBuildsUnmatched(t *testing.T) {
	h := newHarness()
	h.settings.Reviewers = nil
	h.run(t)

	h.addAccount(models.SourceAccount{ID: "a3", SourceName: "CRM", Name: "jond", Attributes: map[string]any{"fullName": "Jon Doe"}})
	result := h.run(t)

	assert.Equal(t, 0, result.Summary.ReviewsOpened)
	fa := h.store.byAccount("a3")
	require.NotNil(t, fa)
	assert.Equal(t, models.ProvenanceUnmatched, fa.Provenance)
}

func TestReconciler_AccountErrorsDoNotStopThePass(t *testing.T) {
	h := newHarness()
	h.settings.UIDTemplate = "{{ login }}"
	h.directory.accounts[0].Attributes["login"] = "jdoe"

	result := h.run(t)

	assert.Equal(t, 1, result.Summary.Baselines)
	assert.Equal(t, 1, result.Summary.Failed)
	require.Equal(t, 1, result.Errors.Len())
	assert.True(t, fusionerrors.IsTemplateError(result.Errors.Errors[0]))
	assert.Equal(t, "a9", result.Errors.Errors[0].AccountID)

	require.Len(t, h.notifier.reports, 1)
	assert.Equal(t, "Fusion", h.notifier.reports[0].FusionSourceName)
	assert.Len(t, h.notifier.reports[0].Errors, 1)
}

func TestReconciler_ConfigurationErrorAborts(t *testing.T) {
	h := newHarness()
	h.settings.MergingMap = []models.MergingMapEntry{{IdentityAttribute: "displayName"}}

	_, err := h.reconciler.Run(context.Background(), h.settings)
	require.Error(t, err)
	assert.True(t, fusionerrors.IsConfigurationError(err))
	assert.Empty(t, h.store.accounts)
}

func TestReconciler_MalformedTemplateAborts(t *testing.T) {
	h := newHarness()
	h.settings.UIDTemplate = "{{ name[ }}"

	_, err := h.reconciler.Run(context.Background(), h.settings)
	require.Error(t, err)
	assert.True(t, fusionerrors.IsConfigurationError(err))
	assert.Empty(t, h.store.accounts)
	assert.Empty(t, h.notifier.reports)
}

func TestReconciler_PlatformScopeAvoidsOtherSourcesIDs(t *testing.T) {
	h := newHarness()
	h.store.accounts["other"] = &models.FusionAccount{ID: "other", FusionSourceID: "fs-2", UniqueID: "jdoe"}
	h.settings.UIDScope = models.UIDScopePlatform

	h.run(t)

	fa := h.store.byAccount("a1")
	require.NotNil(t, fa)
	assert.Equal(t, "jdoe01", fa.UniqueID)
}

func TestReconciler_Report(t *testing.T) {
	h := newHarness()
	h.run(t)
	h.addAccount(models.SourceAccount{ID: "a2", SourceName: "CRM", Name: "john.doe", Attributes: map[string]any{"fullName": "John Doe"}})
	h.addAccount(models.SourceAccount{ID: "a3", SourceName: "CRM", Name: "jond", Attributes: map[string]any{"fullName": "Jon Doe"}})
	h.addAccount(models.SourceAccount{ID: "a4", SourceName: "CRM", Name: "zed", Attributes: map[string]any{"fullName": "Zed Quux"}})
	saves := h.store.saves

	report, err := h.reconciler.Report(context.Background(), h.settings)
	require.NoError(t, err)
	require.Len(t, report.Analyses, 3)

	assert.Equal(t, []string{"Identical to John Doe"}, report.Analyses[0].Results)
	assert.Equal(t, []string{"Similar to John Doe [ displayName: 93 ]", "Similar to Joan Doe [ displayName: 93 ]"}, report.Analyses[1].Results)
	assert.Equal(t, []string{MessageNoMatch}, report.Analyses[2].Results)
	assert.Equal(t, saves, h.store.saves)
	assert.Empty(t, h.reviews.requests)
}

func TestReconciler_ResetUniqueID(t *testing.T) {
	h := newHarness()
	h.run(t)

	fa := h.store.byAccount("a1")
	require.NotNil(t, fa)
	require.Equal(t, "jdoe", fa.UniqueID)
	published := len(h.publisher.accounts)

	h.settings.UIDTemplate = "{{ fullName }}"
	h.settings.UIDSpaces = true
	h.settings.UIDCase = models.UIDCaseLower

	reset, err := h.reconciler.ResetUniqueID(context.Background(), h.settings, fa.ID)
	require.NoError(t, err)
	assert.Equal(t, "johndoe", reset.UniqueID)
	assert.Equal(t, "johndoe", h.store.accounts[fa.ID].UniqueID)
	assert.Len(t, h.publisher.accounts, published+1)

	t.Run("unknown fusion account", func(t *testing.T) {
		_, err := h.reconciler.ResetUniqueID(context.Background(), h.settings, "missing")
		require.Error(t, err)
	})
}
