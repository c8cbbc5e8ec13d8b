// Package directory joins the identity and source account stores into the view a
// reconciliation pass reads from
package directory

import (
	"context"

	"github.com/Ramsey-B/fusion/pkg/models"
)

type identityLister interface {
	ListIdentities(ctx context.Context) ([]models.IdentityRecord, error)
}

type accountReader interface {
	ListAccounts(ctx context.Context, sources []string) ([]models.SourceAccount, error)
	GetAccount(ctx context.Context, id string) (*models.SourceAccount, error)
}

// Directory serves identities and source accounts from their repositories
type Directory struct {
	identities identityLister
	accounts   accountReader
}

func New(identities identityLister, accounts accountReader) *Directory {
	return &Directory{identities: identities, accounts: accounts}
}

func (d *Directory) ListIdentities(ctx context.Context) ([]models.IdentityRecord, error) {
	return d.identities.ListIdentities(ctx)
}

func (d *Directory) ListAccounts(ctx context.Context, sources []string) ([]models.SourceAccount, error) {
	return d.accounts.ListAccounts(ctx, sources)
}

func (d *Directory) GetAccount(ctx context.Context, id string) (*models.SourceAccount, error) {
	return d.accounts.GetAccount(ctx, id)
}
