package normalizers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransliterate(t *testing.T) {
	t.Run("strips diacritics", func(t *testing.T) {
		assert.Equal(t, "Jose Muller", Transliterate("José Müller"))
		assert.Equal(t, "Francois", Transliterate("François"))
	})

	t.Run("spells standalone letters", func(t *testing.T) {
		assert.Equal(t, "Strasse", Transliterate("Straße"))
		assert.Equal(t, "Lukasz", Transliterate("Łukasz"))
		assert.Equal(t, "Bjorn", Transliterate("Bjørn"))
	})

	t.Run("drops other non-ascii", func(t *testing.T) {
		assert.Equal(t, "ab", Transliterate("a漢b"))
	})

	t.Run("leaves ascii alone", func(t *testing.T) {
		assert.Equal(t, "john.doe-01", Transliterate("john.doe-01"))
	})
}

func TestStripApostrophes(t *testing.T) {
	assert.Equal(t, "OBrien", StripApostrophes("O'Brien"))
	assert.Equal(t, "OBrien", StripApostrophes("O’Brien"))
}

func TestWhitespaceAndPunctuation(t *testing.T) {
	assert.Equal(t, "vanderberg", RemoveWhitespace("van der\tberg"))
	assert.Equal(t, "van der berg", CollapseWhitespace("  van  der\tberg "))
	assert.Equal(t, "jdoe", RemovePunctuation("j.doe!"))
}

func TestChain(t *testing.T) {
	t.Run("applies in order", func(t *testing.T) {
		fn := Chain(Transliterate, StripApostrophes, RemoveWhitespace, strings.ToLower)
		assert.Equal(t, "reneeoconnor", fn("Renée O'Connor"))
	})

	t.Run("disabled steps are skipped", func(t *testing.T) {
		fn := Chain(If(false, Transliterate), If(true, RemoveWhitespace))
		assert.Equal(t, "Renée", fn("Re née"))
	})
}
