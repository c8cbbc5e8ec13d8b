package expressions

import "github.com/Ramsey-B/fusion/pkg/models"

// CounterField is the template field carrying the collision counter
const CounterField = "counter"

// AccountContext builds the data a unique ID template is rendered against: every raw
// attribute of the account, overlaid with the merged attributes, plus account metadata.
func AccountContext(account *models.SourceAccount, merged map[string]any) map[string]any {
	data := make(map[string]any, len(merged)+8)
	if account != nil {
		for k, v := range account.Attributes {
			data[k] = normalizeValue(v)
		}
		data["name"] = account.Name
		data["nativeIdentity"] = account.NativeIdentity
		data["sourceName"] = account.SourceName
		data["sourceId"] = account.SourceID
	}
	for k, v := range merged {
		data[k] = normalizeValue(v)
	}
	return data
}

// WithCounter returns a shallow copy of data with the counter field set
func WithCounter(data map[string]any, counter string) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out[CounterField] = counter
	return out
}

// normalizeValue converts typed slices into []any so JMESPath can index and join them
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return v
	}
}
