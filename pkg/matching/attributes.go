package matching

import (
	"strings"

	"github.com/Ramsey-B/fusion/pkg/models"
)

// AccountValues returns the non-empty values an account offers for a merging map entry,
// trying the candidate account attributes in declared order.
func AccountValues(account *models.SourceAccount, entry models.MergingMapEntry) []string {
	var values []string
	for _, attr := range entry.AccountAttributes {
		for _, v := range account.Values(attr) {
			v = strings.TrimSpace(v)
			if v != "" {
				values = append(values, v)
			}
		}
	}
	return values
}

// AccountValue returns the first value an account offers for a merging map entry
func AccountValue(account *models.SourceAccount, entry models.MergingMapEntry) string {
	values := AccountValues(account, entry)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// AccountAttributes projects an account onto the identity attributes of the merging map
func AccountAttributes(account *models.SourceAccount, mergingMap []models.MergingMapEntry) map[string]string {
	out := make(map[string]string, len(mergingMap))
	for _, entry := range mergingMap {
		if v := AccountValue(account, entry); v != "" {
			out[entry.IdentityAttribute] = v
		}
	}
	return out
}
