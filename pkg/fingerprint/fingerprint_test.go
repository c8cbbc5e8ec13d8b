package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fusion/pkg/models"
)

func TestGenerate(t *testing.T) {
	a := map[string]any{"b": "2", "a": []string{"x", "y"}, "c": map[string]any{"z": 1.0, "y": true}}
	b := map[string]any{"c": map[string]any{"y": true, "z": 1.0}, "a": []any{"x", "y"}, "b": "2"}
	assert.Equal(t, Generate(a), Generate(b))

	b["b"] = "3"
	assert.NotEqual(t, Generate(a), Generate(b))
}

func TestAccount(t *testing.T) {
	fa := &models.FusionAccount{
		UniqueID:   "jdoe",
		AccountIDs: []string{"a1"},
		Attributes: map[string]any{"email": "j@x.io"},
	}
	before := Account(fa)
	assert.Equal(t, before, Account(fa.Clone()))

	fa.Fingerprint = before
	assert.Equal(t, before, Account(fa))

	fa.AccountIDs = append(fa.AccountIDs, "a2")
	assert.NotEqual(t, before, Account(fa))
}
