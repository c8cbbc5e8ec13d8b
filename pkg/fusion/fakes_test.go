package fusion

import (
	"context"
	"database/sql"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fusion/pkg/database"
	"github.com/Ramsey-B/fusion/pkg/models"
)

var testNow = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type memDirectory struct {
	identities []models.IdentityRecord
	accounts   []models.SourceAccount
}

func (d *memDirectory) ListIdentities(_ context.Context) ([]models.IdentityRecord, error) {
	return append([]models.IdentityRecord(nil), d.identities...), nil
}

func (d *memDirectory) ListAccounts(_ context.Context, sources []string) ([]models.SourceAccount, error) {
	wanted := map[string]bool{}
	for _, s := range sources {
		wanted[s] = true
	}
	var out []models.SourceAccount
	for _, a := range d.accounts {
		if wanted[a.SourceName] || wanted[a.SourceID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *memDirectory) GetAccount(_ context.Context, id string) (*models.SourceAccount, error) {
	for _, a := range d.accounts {
		if a.ID == id {
			acc := a
			return &acc, nil
		}
	}
	return nil, nil
}

type memFusionStore struct {
	accounts map[string]*models.FusionAccount
	saves    int
	saveErr  error
}

func newMemFusionStore() *memFusionStore {
	return &memFusionStore{accounts: map[string]*models.FusionAccount{}}
}

func (s *memFusionStore) ListByFusionSource(_ context.Context, fusionSourceID string) ([]models.FusionAccount, error) {
	var out []models.FusionAccount
	for _, fa := range s.accounts {
		if fa.FusionSourceID == fusionSourceID {
			out = append(out, *fa.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out, nil
}

func (s *memFusionStore) ListUniqueIDs(_ context.Context) ([]string, error) {
	var out []string
	for _, fa := range s.accounts {
		out = append(out, fa.UniqueID)
	}
	return out, nil
}

func (s *memFusionStore) Save(_ context.Context, fa *models.FusionAccount) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.accounts[fa.ID] = fa.Clone()
	return nil
}

func (s *memFusionStore) byAccount(accountID string) *models.FusionAccount {
	for _, fa := range s.accounts {
		if fa.HasAccount(accountID) {
			return fa
		}
	}
	return nil
}

type memReviewStore struct {
	requests map[string]*models.ReviewRequest
}

func newMemReviewStore() *memReviewStore {
	return &memReviewStore{requests: map[string]*models.ReviewRequest{}}
}

func (s *memReviewStore) Create(_ context.Context, req *models.ReviewRequest) error {
	c := *req
	s.requests[req.ID] = &c
	return nil
}

func (s *memReviewStore) Get(_ context.Context, id string) (*models.ReviewRequest, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "review request not found")
	}
	return req, nil
}

func (s *memReviewStore) Save(_ context.Context, req *models.ReviewRequest) error {
	s.requests[req.ID] = req
	return nil
}

func (s *memReviewStore) Delete(_ context.Context, id string) error {
	delete(s.requests, id)
	return nil
}

func (s *memReviewStore) ListByFusionSource(_ context.Context, fusionSourceID string) ([]models.ReviewRequest, error) {
	var out []models.ReviewRequest
	for _, r := range s.requests {
		if r.FusionSourceID == fusionSourceID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memReviewStore) only() *models.ReviewRequest {
	for _, r := range s.requests {
		return r
	}
	return nil
}

type recordingPublisher struct {
	accounts []string
	reviews  []string
}

func (p *recordingPublisher) PublishFusionAccount(_ context.Context, fa *models.FusionAccount) error {
	p.accounts = append(p.accounts, fa.ID)
	return nil
}

func (p *recordingPublisher) PublishReviewRequest(_ context.Context, req *models.ReviewRequest) error {
	p.reviews = append(p.reviews, req.ID)
	return nil
}

type recordingNotifier struct {
	reports []*models.ErrorReport
}

func (n *recordingNotifier) NotifyErrors(_ context.Context, report *models.ErrorReport) error {
	n.reports = append(n.reports, report)
	return nil
}

type recordingProjector struct {
	projected int
}

func (p *recordingProjector) Project(_ context.Context, accounts []*models.FusionAccount) error {
	p.projected += len(accounts)
	return nil
}

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool { return !t.committed && !t.rolledBack }

func (t *fakeTx) ExecContext(_ context.Context, _ string, _ ...any) (sql.Result, error) {
	return nil, nil
}

func (t *fakeTx) GetContext(_ context.Context, _ any, _ string, _ ...any) error { return nil }

func (t *fakeTx) SelectContext(_ context.Context, _ any, _ string, _ ...any) error { return nil }

func (t *fakeTx) Commit(_ context.Context) error {
	if t.IsOpen() {
		t.committed = true
	}
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if t.IsOpen() {
		t.rolledBack = true
	}
	return nil
}

type recordingTransactor struct {
	txs []*fakeTx
}

func (r *recordingTransactor) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	tx := &fakeTx{}
	r.txs = append(r.txs, tx)
	return ctx, tx, nil
}
