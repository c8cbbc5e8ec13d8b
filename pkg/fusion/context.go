package fusion

import (
	"slices"
	"time"

	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/uniqueid"
)

// PassContext is the state one reconciliation pass threads through every engine call.
// Only the pass that created it may mutate it.
type PassContext struct {
	PassID      string
	Settings    *models.FusionSettings
	Now         time.Time
	ExistingIDs uniqueid.Set

	Accounts       []models.SourceAccount
	Identities     []models.IdentityRecord
	FusionAccounts []*models.FusionAccount

	accountsByID map[string]*models.SourceAccount
	byAccount    map[string]*models.FusionAccount
	byIdentity   map[string]*models.FusionAccount
	byID         map[string]*models.FusionAccount
	stored       map[string]string
}

// NewPassContext indexes the loaded population. Stored fusion account fingerprints are kept
// so the pass can tell which accounts changed.
func NewPassContext(passID string, settings *models.FusionSettings, now time.Time, accounts []models.SourceAccount, identities []models.IdentityRecord, fusionAccounts []models.FusionAccount, existingIDs uniqueid.Set) *PassContext {
	if existingIDs == nil {
		existingIDs = uniqueid.NewSet()
	}

	pass := &PassContext{
		PassID:       passID,
		Settings:     settings,
		Now:          now,
		ExistingIDs:  existingIDs,
		Accounts:     accounts,
		Identities:   identities,
		accountsByID: make(map[string]*models.SourceAccount, len(accounts)),
		byAccount:    make(map[string]*models.FusionAccount),
		byIdentity:   make(map[string]*models.FusionAccount),
		byID:         make(map[string]*models.FusionAccount, len(fusionAccounts)),
		stored:       make(map[string]string, len(fusionAccounts)),
	}

	for i := range pass.Accounts {
		acc := pass.Accounts[i]
		pass.accountsByID[acc.ID] = &acc
	}

	for i := range fusionAccounts {
		fa := fusionAccounts[i]
		pass.stored[fa.ID] = fa.Fingerprint
		pass.Track(&fa)
	}

	return pass
}

// Track registers a fusion account with the pass so later accounts can link to it
func (p *PassContext) Track(fa *models.FusionAccount) {
	if _, ok := p.byID[fa.ID]; !ok {
		p.FusionAccounts = append(p.FusionAccounts, fa)
		p.byID[fa.ID] = fa
	}
	p.ExistingIDs.Add(fa.UniqueID)
	if fa.IdentityID != "" {
		p.byIdentity[fa.IdentityID] = fa
	}
	for _, id := range fa.AccountIDs {
		p.byAccount[id] = fa
	}
}

// AddAccount makes a source account fetched outside the initial load visible to the pass
func (p *PassContext) AddAccount(account *models.SourceAccount) {
	if _, ok := p.accountsByID[account.ID]; ok {
		return
	}
	acc := *account
	p.accountsByID[acc.ID] = &acc
	p.Accounts = append(p.Accounts, acc)
}

// FirstRun reports whether the fusion source had no fusion accounts when the pass started
func (p *PassContext) FirstRun() bool {
	return len(p.stored) == 0
}

// Account returns a loaded source account
func (p *PassContext) Account(id string) *models.SourceAccount {
	return p.accountsByID[id]
}

// FusionAccountFor returns the fusion account a source account is linked to
func (p *PassContext) FusionAccountFor(accountID string) *models.FusionAccount {
	return p.byAccount[accountID]
}

// FusionAccountForIdentity resolves a match target. Targets are identity ids, or fusion
// account ids for accounts created before the platform assigned an identity.
func (p *PassContext) FusionAccountForIdentity(id string) *models.FusionAccount {
	if fa, ok := p.byIdentity[id]; ok {
		return fa
	}
	return p.byID[id]
}

// Linked returns the loaded source accounts of a fusion account in linked-list order
func (p *PassContext) Linked(fa *models.FusionAccount) []models.SourceAccount {
	linked := make([]models.SourceAccount, 0, len(fa.AccountIDs))
	for _, id := range fa.AccountIDs {
		if acc, ok := p.accountsByID[id]; ok {
			linked = append(linked, *acc)
		}
	}
	return linked
}

// Candidates is the population an unmatched account is classified against: the directory
// identities plus fusion accounts that do not have an identity yet.
func (p *PassContext) Candidates() []models.IdentityRecord {
	candidates := make([]models.IdentityRecord, 0, len(p.Identities)+len(p.FusionAccounts))
	candidates = append(candidates, p.Identities...)
	for _, fa := range p.FusionAccounts {
		if fa.IdentityID != "" || fa.Disabled {
			continue
		}
		candidates = append(candidates, models.IdentityRecord{
			ID:         fa.ID,
			Name:       fa.Name,
			Attributes: fa.Attributes,
			AccountIDs: fa.AccountIDs,
		})
	}
	return candidates
}

// Reviewers lists the identities review requests are assigned to: the configured reviewers
// followed by identities the directory flags as reviewers
func (p *PassContext) Reviewers() []string {
	reviewers := slices.Clone(p.Settings.Reviewers)
	for _, identity := range p.Identities {
		if identity.Reviewer && !slices.Contains(reviewers, identity.ID) {
			reviewers = append(reviewers, identity.ID)
		}
	}
	return reviewers
}

// Changed reports whether a fusion account differs from its stored state
func (p *PassContext) Changed(fa *models.FusionAccount) bool {
	stored, ok := p.stored[fa.ID]
	return !ok || stored != fa.Fingerprint
}
