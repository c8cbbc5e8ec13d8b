package merging

import (
	"strings"

	"github.com/Ramsey-B/fusion/pkg/models"
)

// Separator joins values under the concatenate policy
const Separator = ","

// fieldValue is one candidate value for an identity attribute, tagged with where it came from
type fieldValue struct {
	Value     string
	AccountID string
	SourceID  string
	Source    string
}

// FieldMerger handles attribute-level merge logic
type FieldMerger struct{}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger() *FieldMerger {
	return &FieldMerger{}
}

// MergeField resolves the values collected for one identity attribute. Values arrive in
// priority order; the result is nil when nothing usable was found.
func (m *FieldMerger) MergeField(values []fieldValue, policy models.MergePolicy, sourceOverride string) any {
	values = nonEmpty(values)
	if len(values) == 0 {
		return nil
	}

	switch policy {
	case models.MergePolicyConcatenate:
		return m.concatenate(values)
	case models.MergePolicyMulti:
		return m.multi(values)
	case models.MergePolicySource:
		return m.fromSource(values, sourceOverride)
	default:
		return m.first(values)
	}
}

// first takes the first non-empty value
func (m *FieldMerger) first(values []fieldValue) any {
	return values[0].Value
}

// concatenate joins the distinct values in priority order
func (m *FieldMerger) concatenate(values []fieldValue) any {
	return strings.Join(distinct(values), Separator)
}

// multi emits the distinct values as a list
func (m *FieldMerger) multi(values []fieldValue) any {
	return distinct(values)
}

// fromSource only considers values from the pinned source, matched by name or id
func (m *FieldMerger) fromSource(values []fieldValue, source string) any {
	for _, v := range values {
		if v.Source == source || v.SourceID == source {
			return v.Value
		}
	}
	return nil
}

func nonEmpty(values []fieldValue) []fieldValue {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v.Value) != "" {
			out = append(out, v)
		}
	}
	return out
}

func distinct(values []fieldValue) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v.Value] {
			continue
		}
		seen[v.Value] = true
		out = append(out, v.Value)
	}
	return out
}
