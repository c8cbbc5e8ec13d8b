// Package fusion builds fusion accounts and runs reconciliation passes over a fusion source
package fusion

import (
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fusion/pkg/expressions"
	"github.com/Ramsey-B/fusion/pkg/fingerprint"
	"github.com/Ramsey-B/fusion/pkg/merging"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/uniqueid"
)

// ValidateSettings checks the settings rules and compiles the unique ID template
func ValidateSettings(settings *models.FusionSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return uniqueid.NewGenerator().Validate(settings.UIDTemplate)
}

// Builder creates and mutates fusion accounts. It owns their linked list, provenance and history.
type Builder struct {
	logger    ectologger.Logger
	generator *uniqueid.Generator
	resolver  *merging.Resolver
}

// NewBuilder creates a new Builder
func NewBuilder(logger ectologger.Logger) *Builder {
	return &Builder{
		logger:    logger,
		generator: uniqueid.NewGenerator(),
		resolver:  merging.NewResolver(),
	}
}

// Build creates a fusion account seeded with one source account and registers it with the pass
func (b *Builder) Build(pass *PassContext, account *models.SourceAccount, provenance models.Provenance, message string) (*models.FusionAccount, error) {
	settings := pass.Settings

	merged := b.resolver.Merge([]models.SourceAccount{*account}, settings.MergingMap, settings.DefaultPolicy())
	uid, err := b.generator.Generate(settings.UIDTemplate, expressions.AccountContext(account, merged), pass.ExistingIDs, uniqueid.OptionsFromSettings(settings))
	if err != nil {
		return nil, err
	}
	pass.ExistingIDs.Add(uid)
	pass.AddAccount(account)

	fa := &models.FusionAccount{
		ID:             uuid.New().String(),
		FusionSourceID: settings.ID,
		UniqueID:       uid,
		Name:           uid,
		IdentityID:     account.IdentityID,
		Provenance:     provenance,
		AccountIDs:     []string{account.ID},
		History:        []models.HistoryEntry{},
		Reviews:        []string{},
		CreatedAt:      pass.Now.UTC(),
		UpdatedAt:      pass.Now.UTC(),
	}
	if message != "" {
		fa.AddHistory(pass.Now, provenance, models.DatedMessage(pass.Now, message, account))
	}

	b.Refresh(settings, fa, pass.Linked(fa))
	pass.Track(fa)

	b.logger.WithFields(map[string]any{
		"fusion_account_id": fa.ID,
		"unique_id":         uid,
		"account_id":        account.ID,
		"provenance":        provenance,
	}).Debug("Built fusion account")

	return fa, nil
}

// Refresh recomputes the derived state of a fusion account from its linked accounts: merged
// attributes, sources and the orphan flag. Linked ids that no longer resolve are dropped.
// Unique id and history are left alone, and calling it twice yields the same account.
func (b *Builder) Refresh(settings *models.FusionSettings, fa *models.FusionAccount, linked []models.SourceAccount) {
	present := make(map[string]bool, len(linked))
	sources := make([]string, 0, len(linked))
	seenSource := make(map[string]bool, len(linked))
	for _, acc := range linked {
		present[acc.ID] = true
		if !seenSource[acc.SourceName] {
			seenSource[acc.SourceName] = true
			sources = append(sources, acc.SourceName)
		}
	}

	accountIDs := make([]string, 0, len(fa.AccountIDs))
	for _, id := range fa.AccountIDs {
		if present[id] {
			accountIDs = append(accountIDs, id)
		}
	}

	fa.AccountIDs = accountIDs
	fa.Sources = sources
	fa.Attributes = b.resolver.Merge(linked, settings.MergingMap, settings.DefaultPolicy())
	fa.Orphan = len(fa.AccountIDs) == 0 && !fa.Reviewer
	fa.Fingerprint = fingerprint.Account(fa)
}

// Link appends a source account to a fusion account and records why
func (b *Builder) Link(pass *PassContext, fa *models.FusionAccount, account *models.SourceAccount, provenance models.Provenance, message string) {
	pass.AddAccount(account)
	if !fa.HasAccount(account.ID) {
		fa.AccountIDs = append(fa.AccountIDs, account.ID)
	}
	if message != "" {
		fa.AddHistory(pass.Now, provenance, models.DatedMessage(pass.Now, message, account))
	}
	fa.Provenance = provenance
	fa.Edited = false

	pass.Track(fa)
	b.Refresh(pass.Settings, fa, pass.Linked(fa))
}

// ResetUniqueID releases the current unique id and generates a fresh one from the linked accounts
func (b *Builder) ResetUniqueID(pass *PassContext, fa *models.FusionAccount) error {
	settings := pass.Settings
	previous := fa.UniqueID

	var account *models.SourceAccount
	linked := pass.Linked(fa)
	if len(linked) > 0 {
		account = &linked[0]
	}

	pass.ExistingIDs.Remove(previous)
	uid, err := b.generator.Generate(settings.UIDTemplate, expressions.AccountContext(account, fa.Attributes), pass.ExistingIDs, uniqueid.OptionsFromSettings(settings))
	if err != nil {
		pass.ExistingIDs.Add(previous)
		return err
	}
	pass.ExistingIDs.Add(uid)

	fa.UniqueID = uid
	fa.Name = uid
	fa.AddHistory(pass.Now, fa.Provenance, models.DatedMessage(pass.Now, fmt.Sprintf("Unique ID reset from %s to %s", previous, uid), nil))
	fa.Fingerprint = fingerprint.Account(fa)
	return nil
}
