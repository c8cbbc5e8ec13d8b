// Package merging combines the attributes of linked source accounts into one attribute set
package merging

import (
	"strings"

	"github.com/Ramsey-B/fusion/pkg/models"
)

// Resolver merges the attributes of every account linked to a fusion account
type Resolver struct {
	fieldMerger *FieldMerger
}

// NewResolver creates a new Resolver
func NewResolver() *Resolver {
	return &Resolver{
		fieldMerger: NewFieldMerger(),
	}
}

// Merge resolves each merging map attribute across the accounts, which must be given in
// priority order. Attributes no account provides are omitted. Account attributes outside
// the merging map are carried over from the first account that has them.
func (r *Resolver) Merge(accounts []models.SourceAccount, mergingMap []models.MergingMapEntry, policy models.MergePolicy) map[string]any {
	merged := make(map[string]any)
	mapped := make(map[string]bool)

	for _, entry := range mergingMap {
		mapped[entry.IdentityAttribute] = true
		for _, attr := range entry.AccountAttributes {
			mapped[attr] = true
		}

		entryPolicy := entry.MergePolicy
		if entryPolicy == "" {
			entryPolicy = policy
		}

		values := collect(accounts, entry.AccountAttributes)
		if v := r.fieldMerger.MergeField(values, entryPolicy, entry.SourceOverride); v != nil {
			merged[entry.IdentityAttribute] = v
		}
	}

	for _, account := range accounts {
		for name, value := range account.Attributes {
			if mapped[name] || models.IsReservedAttribute(name) {
				continue
			}
			if _, ok := merged[name]; ok {
				continue
			}
			if isEmpty(value) {
				continue
			}
			merged[name] = value
		}
	}

	return merged
}

// collect gathers candidate values account by account, trying attribute names in order
func collect(accounts []models.SourceAccount, attributes []string) []fieldValue {
	var values []fieldValue
	for i := range accounts {
		account := &accounts[i]
		for _, attr := range attributes {
			for _, v := range account.Values(attr) {
				values = append(values, fieldValue{
					Value:     strings.TrimSpace(v),
					AccountID: account.ID,
					SourceID:  account.SourceID,
					Source:    account.SourceName,
				})
			}
		}
	}
	return values
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	default:
		return false
	}
}
