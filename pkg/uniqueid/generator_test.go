package uniqueid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fusionerrors "github.com/Ramsey-B/fusion/pkg/errors"
	"github.com/Ramsey-B/fusion/pkg/models"
)

func TestGenerator_Generate(t *testing.T) {
	g := NewGenerator()
	attrs := map[string]any{"name": "jdoe", "firstname": "José", "lastname": "O'Brien Smith"}

	t.Run("no collision renders the bare value", func(t *testing.T) {
		id, err := g.Generate("{{ name }}", attrs, NewSet(), Options{MaxDigits: 2})
		require.NoError(t, err)
		assert.Equal(t, "jdoe", id)
	})

	t.Run("collision appends a padded counter", func(t *testing.T) {
		id, err := g.Generate("{{ name }}", attrs, NewSet("jdoe"), Options{MaxDigits: 2})
		require.NoError(t, err)
		assert.Equal(t, "jdoe01", id)
	})

	t.Run("counter placeholder is honored", func(t *testing.T) {
		id, err := g.Generate("{{ name }}.{{ counter }}", attrs, NewSet("jdoe.", "jdoe.001"), Options{MaxDigits: 3})
		require.NoError(t, err)
		assert.Equal(t, "jdoe.002", id)
	})

	t.Run("attribute names containing counter still get the counter appended", func(t *testing.T) {
		id, err := g.Generate("{{ counterparty }}", map[string]any{"counterparty": "acme"}, NewSet("acme"), Options{MaxDigits: 2})
		require.NoError(t, err)
		assert.Equal(t, "acme01", id)
	})

	t.Run("post-processing runs before the collision check", func(t *testing.T) {
		opts := Options{Normalize: true, StripSpaces: true, Case: models.UIDCaseLower, MaxDigits: 1}
		id, err := g.Generate("{{ firstname }}.{{ lastname }}", attrs, NewSet(), opts)
		require.NoError(t, err)
		assert.Equal(t, "jose.obriensmith", id)
	})

	t.Run("cased value is checked against existing ids", func(t *testing.T) {
		id, err := g.Generate("{{ name }}", attrs, NewSet("JDOE"), Options{Case: models.UIDCaseUpper, MaxDigits: 2})
		require.NoError(t, err)
		assert.Equal(t, "JDOE01", id)
	})

	t.Run("never returns an existing id", func(t *testing.T) {
		existing := NewSet("jdoe", "jdoe01", "jdoe02", "jdoe03")
		id, err := g.Generate("{{ name }}", attrs, existing, Options{MaxDigits: 2})
		require.NoError(t, err)
		assert.False(t, existing.Contains(id))
		assert.Equal(t, "jdoe04", id)
	})

	t.Run("exhausted counter space", func(t *testing.T) {
		existing := NewSet("jdoe")
		for _, c := range []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"} {
			existing.Add("jdoe" + c)
		}
		_, err := g.Generate("{{ name }}", attrs, existing, Options{MaxDigits: 1})
		require.Error(t, err)
		assert.True(t, fusionerrors.IsExhaustedCounterError(err))
	})

	t.Run("empty render is a template error", func(t *testing.T) {
		_, err := g.Generate("{{ missing }}", attrs, NewSet(), Options{MaxDigits: 2})
		require.Error(t, err)
		assert.True(t, fusionerrors.IsTemplateError(err))
	})

	t.Run("invalid expression is a template error", func(t *testing.T) {
		_, err := g.Generate("{{ name[ }}", attrs, NewSet(), Options{MaxDigits: 2})
		require.Error(t, err)
		assert.True(t, fusionerrors.IsTemplateError(err))
	})
}

func TestSet(t *testing.T) {
	s := NewSet("a", "")
	assert.Equal(t, 1, s.Len())
	s.Add("b")
	assert.True(t, s.Contains("b"))
	s.Remove("a")
	assert.False(t, s.Contains("a"))
}

func TestGenerator_Validate(t *testing.T) {
	g := NewGenerator()
	assert.NoError(t, g.Validate("{{ firstname }}.{{ lastname }}{{ counter }}"))

	for _, tmpl := range []string{"", "  ", "{{ name[ }}"} {
		err := g.Validate(tmpl)
		require.Error(t, err, tmpl)
		assert.True(t, fusionerrors.IsConfigurationError(err), tmpl)
	}
}
