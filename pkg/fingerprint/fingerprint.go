// Package fingerprint hashes fusion account state so unchanged accounts can skip persistence
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Ramsey-B/fusion/pkg/models"
)

// Generate creates a deterministic fingerprint for attribute data.
// The fingerprint is a SHA256 hash of the canonicalized JSON.
func Generate(data map[string]any) string {
	var b strings.Builder
	writeMap(&b, data)
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

// Account fingerprints everything about a fusion account that is persisted and can change on
// a refresh. Timestamps and the fingerprint itself are left out.
func Account(fa *models.FusionAccount) string {
	history := make([]any, 0, len(fa.History))
	for _, h := range fa.History {
		history = append(history, h.Message)
	}

	return Generate(map[string]any{
		"unique_id":   fa.UniqueID,
		"name":        fa.Name,
		"identity_id": fa.IdentityID,
		"provenance":  string(fa.Provenance),
		"orphan":      fa.Orphan,
		"reviewer":    fa.Reviewer,
		"edited":      fa.Edited,
		"disabled":    fa.Disabled,
		"account_ids": fa.AccountIDs,
		"sources":     fa.Sources,
		"reviews":     fa.Reviews,
		"history":     history,
		"attributes":  fa.Attributes,
	})
}

func write(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		writeMap(b, val)
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			write(b, item)
		}
		b.WriteByte(']')
	case []string:
		items := make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
		write(b, items)
	default:
		// primitives use their JSON encoding
		raw, _ := json.Marshal(val)
		b.Write(raw)
	}
}

func writeMap(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		b.Write(key)
		b.WriteByte(':')
		write(b, m[k])
	}
	b.WriteByte('}')
}
