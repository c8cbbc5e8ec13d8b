package models

import (
	"fmt"
	"slices"
	"time"
)

// Provenance records how a fusion account came to own its most recent link
type Provenance string

const (
	// ProvenanceBaseline accounts existed before fusion ran or were already correlated
	ProvenanceBaseline Provenance = "baseline"
	// ProvenanceAuto accounts were linked by an identical match
	ProvenanceAuto Provenance = "auto"
	// ProvenanceManual accounts were linked by a reviewer to an existing identity
	ProvenanceManual Provenance = "manual"
	// ProvenanceAuthorized accounts were approved by a reviewer as a new identity
	ProvenanceAuthorized Provenance = "authorized"
	// ProvenanceUnmatched accounts had no matching identity
	ProvenanceUnmatched Provenance = "unmatched"
)

// Legacy status tags derived from the orthogonal facts of a fusion account
const (
	StatusOrphan   = "orphan"
	StatusReviewer = "reviewer"
	StatusEdited   = "edited"
)

// HistoryEntry is one append-only audit log line of a fusion account
type HistoryEntry struct {
	Timestamp  time.Time  `json:"timestamp"`
	Provenance Provenance `json:"provenance,omitempty"`
	Message    string     `json:"message"`
}

// FusionAccount is the deduplicated record aggregating linked source accounts
type FusionAccount struct {
	ID             string         `json:"id"`
	FusionSourceID string         `json:"fusion_source_id"`
	UniqueID       string         `json:"unique_id"`
	Name           string         `json:"name"`
	IdentityID     string         `json:"identity_id,omitempty"`
	Provenance     Provenance     `json:"provenance"`
	Orphan         bool           `json:"orphan"`
	Reviewer       bool           `json:"reviewer"`
	Edited         bool           `json:"edited"`
	Disabled       bool           `json:"disabled"`
	AccountIDs     []string       `json:"account_ids"`
	Sources        []string       `json:"sources"`
	History        []HistoryEntry `json:"history"`
	Reviews        []string       `json:"reviews"`
	Attributes     map[string]any `json:"attributes"`
	Fingerprint    string         `json:"fingerprint"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Statuses renders the account facts as the legacy status tag list
func (f *FusionAccount) Statuses() []string {
	statuses := []string{}
	if f.Provenance != "" {
		statuses = append(statuses, string(f.Provenance))
	}
	if f.Orphan {
		statuses = append(statuses, StatusOrphan)
	}
	if f.Reviewer {
		statuses = append(statuses, StatusReviewer)
	}
	if f.Edited {
		statuses = append(statuses, StatusEdited)
	}
	return statuses
}

// HasAccount reports whether the source account is linked
func (f *FusionAccount) HasAccount(accountID string) bool {
	return slices.Contains(f.AccountIDs, accountID)
}

// AddHistory appends a dated audit entry
func (f *FusionAccount) AddHistory(now time.Time, provenance Provenance, message string) {
	f.History = append(f.History, HistoryEntry{
		Timestamp:  now.UTC(),
		Provenance: provenance,
		Message:    message,
	})
}

// Clone returns a deep copy, so refreshes can be compared against the stored state
func (f *FusionAccount) Clone() *FusionAccount {
	if f == nil {
		return nil
	}
	c := *f
	c.AccountIDs = slices.Clone(f.AccountIDs)
	c.Sources = slices.Clone(f.Sources)
	c.History = slices.Clone(f.History)
	c.Reviews = slices.Clone(f.Reviews)
	if f.Attributes != nil {
		c.Attributes = make(map[string]any, len(f.Attributes))
		for k, v := range f.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// DatedMessage formats a history message as "[YYYY-MM-DD] message [name (source)]"
func DatedMessage(now time.Time, message string, account *SourceAccount) string {
	msg := fmt.Sprintf("[%s] %s", now.UTC().Format("2006-01-02"), message)
	if account != nil {
		msg = fmt.Sprintf("%s [%s]", msg, account.Label())
	}
	return msg
}

// ListFusionAccountsQuery filters fusion account listings
type ListFusionAccountsQuery struct {
	FusionSourceID string `query:"fusion_source_id"`
	Provenance     string `query:"provenance"`
	OrphanOnly     bool   `query:"orphan"`
	Limit          int    `query:"limit"`
	Offset         int    `query:"offset"`
}
