package fusion

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fusion/pkg/database"
	fusionerrors "github.com/Ramsey-B/fusion/pkg/errors"
	"github.com/Ramsey-B/fusion/pkg/matching"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/review"
	"github.com/Ramsey-B/fusion/pkg/tracing"
	"github.com/Ramsey-B/fusion/pkg/uniqueid"
)

// History messages recorded by a pass
const (
	MessageBaseline        = "Baseline account"
	MessageMergingDisabled = "Identity merging not activated"
	MessageIdentical       = "Identical match found."
	MessageNoMatch         = "No matching identity found"
	MessageNoReviewers     = "No reviewers available for a similar match"
)

// Directory is the account and identity collaborator
type Directory interface {
	ListIdentities(ctx context.Context) ([]models.IdentityRecord, error)
	ListAccounts(ctx context.Context, sources []string) ([]models.SourceAccount, error)
	GetAccount(ctx context.Context, id string) (*models.SourceAccount, error)
}

// FusionAccountStore persists fusion accounts
type FusionAccountStore interface {
	ListByFusionSource(ctx context.Context, fusionSourceID string) ([]models.FusionAccount, error)
	ListUniqueIDs(ctx context.Context) ([]string, error)
	Save(ctx context.Context, fa *models.FusionAccount) error
}

// Publisher emits the mutations of a pass
type Publisher interface {
	PublishFusionAccount(ctx context.Context, fa *models.FusionAccount) error
	PublishReviewRequest(ctx context.Context, req *models.ReviewRequest) error
}

// Notifier delivers the batched error report of a pass
type Notifier interface {
	NotifyErrors(ctx context.Context, report *models.ErrorReport) error
}

// Projector mirrors fusion accounts into a secondary view after a pass
type Projector interface {
	Project(ctx context.Context, accounts []*models.FusionAccount) error
}

// Transactor opens the transaction the writes of a pass commit in. Stores join it through
// the context.
type Transactor interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// PassResult is what one reconciliation pass did
type PassResult struct {
	Summary models.PassSummary
	Errors  *fusionerrors.BatchError
	Changed []*models.FusionAccount
	Opened  []*models.ReviewRequest
}

// Reconciler runs reconciliation passes for fusion sources. Passes for the same fusion source
// must not run concurrently; the scheduler serializes them.
type Reconciler struct {
	logger     ectologger.Logger
	directory  Directory
	accounts   FusionAccountStore
	reviews    review.Store
	publisher  Publisher
	notifier   Notifier
	projector  Projector
	transactor Transactor
	classifier *matching.Classifier
	workflow   *review.Workflow
	builder    *Builder
	now        func() time.Time
}

// NewReconciler creates a new Reconciler
func NewReconciler(logger ectologger.Logger, directory Directory, accounts FusionAccountStore, reviews review.Store, publisher Publisher, notifier Notifier) *Reconciler {
	return &Reconciler{
		logger:     logger,
		directory:  directory,
		accounts:   accounts,
		reviews:    reviews,
		publisher:  publisher,
		notifier:   notifier,
		classifier: matching.NewClassifier(logger),
		workflow:   review.NewWorkflow(logger),
		builder:    NewBuilder(logger),
		now:        time.Now,
	}
}

// WithProjector sets the projector run after every pass
func (r *Reconciler) WithProjector(p Projector) *Reconciler {
	r.projector = p
	return r
}

// WithTransactor commits the writes of every pass in one transaction
func (r *Reconciler) WithTransactor(t Transactor) *Reconciler {
	r.transactor = t
	return r
}

// pass carries the per-run state of Run
type pass struct {
	*PassContext
	result  *PassResult
	pending map[string]*models.ReviewRequest
	open    []*models.ReviewRequest
	failed  map[string]bool

	// terminal requests applied this pass, deleted together with the account writes
	resolved []string
}

// settled reports whether an account is already linked or failed earlier in the pass
func (p *pass) settled(accountID string) bool {
	return p.failed[accountID] || p.FusionAccountFor(accountID) != nil
}

// Run performs one reconciliation pass. Only configuration and load failures abort it;
// per-account failures are collected and reported in one batch.
func (r *Reconciler) Run(ctx context.Context, settings *models.FusionSettings) (*PassResult, error) {
	ctx, span := tracing.StartSpan(ctx, "fusion.Reconciler.Run")
	defer span.End()

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	p, err := r.load(ctx, settings)
	if err != nil {
		return nil, err
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"fusion_source_id": settings.ID,
		"pass_id":          p.PassID,
	})
	log.Infof("Starting reconciliation pass over %d accounts", len(p.Accounts))

	if err := r.deliverReviews(ctx, p); err != nil {
		return nil, err
	}

	if p.FirstRun() {
		p.result.Summary.FirstRun = true
		for i := range p.Accounts {
			account := &p.Accounts[i]
			if p.settled(account.ID) {
				continue
			}
			r.build(ctx, p, account, models.ProvenanceBaseline, MessageBaseline)
		}
	}

	for i := range p.Accounts {
		account := &p.Accounts[i]
		if !account.Correlated || p.settled(account.ID) {
			continue
		}
		r.build(ctx, p, account, models.ProvenanceBaseline, MessageBaseline)
	}

	for i := range p.Accounts {
		account := &p.Accounts[i]
		if account.Correlated || p.settled(account.ID) {
			continue
		}
		if _, ok := p.pending[account.ID]; ok {
			continue
		}
		r.process(ctx, p, account)
	}

	r.refreshAll(p)

	if err := r.persist(ctx, p); err != nil {
		return nil, err
	}

	p.result.Summary.Failed = p.result.Errors.Len()
	p.result.Summary.FinishedAt = r.now().UTC()

	if p.result.Errors.Len() > 0 {
		r.notify(ctx, p)
	}

	if r.projector != nil && len(p.result.Changed) > 0 {
		if err := r.projector.Project(ctx, p.result.Changed); err != nil {
			log.WithError(err).Warn("Failed to project fusion accounts")
		}
	}

	log.WithFields(map[string]any{
		"processed":        p.result.Summary.Processed,
		"baselines":        p.result.Summary.Baselines,
		"auto_linked":      p.result.Summary.AutoLinked,
		"unmatched":        p.result.Summary.Unmatched,
		"reviews_opened":   p.result.Summary.ReviewsOpened,
		"reviews_resolved": p.result.Summary.ReviewsResolved,
		"updated":          p.result.Summary.Updated,
		"failed":           p.result.Summary.Failed,
	}).Info("Finished reconciliation pass")

	return p.result, nil
}

func (r *Reconciler) load(ctx context.Context, settings *models.FusionSettings) (*pass, error) {
	fusionAccounts, err := r.accounts.ListByFusionSource(ctx, settings.ID)
	if err != nil {
		return nil, err
	}
	identities, err := r.directory.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := r.directory.ListAccounts(ctx, settings.Sources)
	if err != nil {
		return nil, err
	}

	existing := uniqueid.NewSet()
	if settings.UIDScope == models.UIDScopePlatform {
		ids, err := r.accounts.ListUniqueIDs(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			existing.Add(id)
		}
	}

	now := r.now().UTC()
	passID := uuid.New().String()

	return &pass{
		PassContext: NewPassContext(passID, settings, now, accounts, identities, fusionAccounts, existing),
		result: &PassResult{
			Summary: models.PassSummary{
				PassID:         passID,
				FusionSourceID: settings.ID,
				StartedAt:      now,
			},
			Errors: &fusionerrors.BatchError{},
		},
		pending: map[string]*models.ReviewRequest{},
		failed:  map[string]bool{},
	}, nil
}

// deliverReviews expires overdue requests, applies every terminal one and discards it.
// Requests still pending keep their account out of this pass.
func (r *Reconciler) deliverReviews(ctx context.Context, p *pass) error {
	requests, err := r.reviews.ListByFusionSource(ctx, p.Settings.ID)
	if err != nil {
		return err
	}

	sort.SliceStable(requests, func(i, j int) bool {
		if !requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].CreatedAt.Before(requests[j].CreatedAt)
		}
		return requests[i].ID < requests[j].ID
	})

	for i := range requests {
		req := &requests[i]
		r.workflow.Expire(req, p.Now)

		if !req.IsTerminal() {
			p.pending[req.Account.ID] = req
			p.open = append(p.open, req)
			continue
		}

		res, err := r.workflow.Resolve(req)
		if err != nil {
			p.fail(&req.Account, err)
		} else if err := r.apply(ctx, p, res); err != nil {
			p.fail(&req.Account, err)
		}

		p.resolved = append(p.resolved, req.ID)
		p.result.Summary.ReviewsResolved++
	}

	return nil
}

// apply performs the single fusion account mutation of a resolved review
func (r *Reconciler) apply(ctx context.Context, p *pass, res *models.Resolution) error {
	if res.Kind == models.ResolutionRequeue {
		return nil
	}

	account := p.Account(res.Request.Account.ID)
	if account == nil {
		found, err := r.directory.GetAccount(ctx, res.Request.Account.ID)
		if err != nil {
			return fmt.Errorf("review %s: %w", res.Request.ID, err)
		}
		if found == nil {
			return fmt.Errorf("review %s: account %s no longer exists", res.Request.ID, res.Request.Account.ID)
		}
		account = found
	}

	if existing := p.FusionAccountFor(account.ID); existing != nil {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"review_id":         res.Request.ID,
			"fusion_account_id": existing.ID,
		}).Warn("Reviewed account is already linked, skipping decision")
		return nil
	}

	switch res.Kind {
	case models.ResolutionCreateNew:
		_, err := r.builder.Build(p.PassContext, account, res.Provenance, res.Message)
		return err
	case models.ResolutionLinkExisting:
		target := p.FusionAccountForIdentity(res.IdentityID)
		if target == nil {
			fa, err := r.builder.Build(p.PassContext, account, res.Provenance, res.Message)
			if err != nil {
				return err
			}
			fa.IdentityID = res.IdentityID
			p.Track(fa)
			return nil
		}
		r.builder.Link(p.PassContext, target, account, res.Provenance, res.Message)
		return nil
	default:
		return fmt.Errorf("unknown resolution %q", res.Kind)
	}
}

// process classifies one unmatched account and acts on the outcome
func (r *Reconciler) process(ctx context.Context, p *pass, account *models.SourceAccount) {
	p.result.Summary.Processed++
	settings := p.Settings

	if !settings.MergingEnabled {
		r.build(ctx, p, account, models.ProvenanceUnmatched, MessageMergingDisabled)
		return
	}

	result, err := r.classifier.Classify(ctx, account, p.Candidates(), settings)
	if err != nil {
		p.fail(account, err)
		return
	}

	switch result.Classification {
	case models.ClassificationIdentical:
		best := result.Best()
		target := p.FusionAccountForIdentity(best.IdentityID)
		if target == nil {
			fa := r.build(ctx, p, account, models.ProvenanceAuto, MessageIdentical)
			if fa != nil {
				fa.IdentityID = best.IdentityID
				p.Track(fa)
			}
			return
		}
		r.builder.Link(p.PassContext, target, account, models.ProvenanceAuto, MessageIdentical)
		p.result.Summary.AutoLinked++

	case models.ClassificationAmbiguous:
		req, ok := r.workflow.Open(account, result, p.Reviewers(), settings, p.Now)
		if !ok {
			r.build(ctx, p, account, models.ProvenanceUnmatched, MessageNoReviewers)
			return
		}
		p.pending[account.ID] = req
		p.open = append(p.open, req)
		p.result.Opened = append(p.result.Opened, req)
		p.result.Summary.ReviewsOpened++

	default:
		r.build(ctx, p, account, models.ProvenanceUnmatched, MessageNoMatch)
	}
}

// build creates a fusion account and counts it, recording failures against the account
func (r *Reconciler) build(ctx context.Context, p *pass, account *models.SourceAccount, provenance models.Provenance, message string) *models.FusionAccount {
	fa, err := r.builder.Build(p.PassContext, account, provenance, message)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("account_id", account.ID).Warn("Failed to build fusion account")
		p.fail(account, err)
		return nil
	}

	switch provenance {
	case models.ProvenanceBaseline:
		p.result.Summary.Baselines++
	case models.ProvenanceAuto:
		p.result.Summary.AutoLinked++
	case models.ProvenanceUnmatched:
		p.result.Summary.Unmatched++
	}
	return fa
}

// refreshAll recomputes every fusion account and marks reviewers with their open requests
func (r *Reconciler) refreshAll(p *pass) {
	assigned := p.Reviewers()
	reviewers := make(map[string]bool, len(assigned))
	for _, id := range assigned {
		reviewers[id] = true
	}

	for _, fa := range p.FusionAccounts {
		fa.Reviewer = fa.IdentityID != "" && reviewers[fa.IdentityID]
		fa.Reviews = []string{}
		if fa.Reviewer {
			for _, req := range p.open {
				if slices.Contains(req.Reviewers, fa.IdentityID) {
					fa.Reviews = append(fa.Reviews, fmt.Sprintf("%s: %s", req.Account.Label(), req.ID))
				}
			}
		}
		r.builder.Refresh(p.Settings, fa, p.Linked(fa))
	}
}

// persist commits the pass in one transaction: changed fusion accounts, opened review
// requests and the deletion of the requests applied this pass. Events are published after
// the commit.
func (r *Reconciler) persist(ctx context.Context, p *pass) error {
	var changed []*models.FusionAccount
	for _, fa := range p.FusionAccounts {
		if p.Changed(fa) {
			fa.UpdatedAt = p.Now
			changed = append(changed, fa)
		}
	}

	err := r.inTx(ctx, func(ctx context.Context) error {
		for _, fa := range changed {
			if err := r.accounts.Save(ctx, fa); err != nil {
				return err
			}
		}
		for _, req := range p.result.Opened {
			if err := r.reviews.Create(ctx, req); err != nil {
				return err
			}
		}
		for _, id := range p.resolved {
			if err := r.reviews.Delete(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, fa := range changed {
		if err := r.publisher.PublishFusionAccount(ctx, fa); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("fusion_account_id", fa.ID).Warn("Failed to publish fusion account")
		}
		p.result.Changed = append(p.result.Changed, fa)
		p.result.Summary.Updated++
	}

	for _, req := range p.result.Opened {
		if err := r.publisher.PublishReviewRequest(ctx, req); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("review_id", req.ID).Warn("Failed to publish review request")
		}
	}

	return nil
}

// inTx runs fn inside the transactor's transaction, or directly when none is set
func (r *Reconciler) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.transactor == nil {
		return fn(ctx)
	}

	ctx, tx, err := r.transactor.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Reconciler) notify(ctx context.Context, p *pass) {
	report := &models.ErrorReport{
		FusionSourceID:   p.Settings.ID,
		FusionSourceName: p.Settings.Name,
		PassID:           p.PassID,
		Errors:           p.result.Errors.Messages(),
		ReportedAt:       p.Now,
	}
	if err := r.notifier.NotifyErrors(ctx, report); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to send pass error report")
	}
}

// fail records a per-account error. Configuration errors never reach here; they abort Run.
func (p *pass) fail(account *models.SourceAccount, err error) {
	p.failed[account.ID] = true
	p.result.Errors.Add(fusionerrors.WrapAccountError(account.ID, err).AddName(account.Name, account.SourceName))
}
