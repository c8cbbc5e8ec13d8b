// Package normalizers folds strings into the shapes unique IDs are built from
package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Func rewrites a string
type Func func(string) string

// Chain composes fns left to right. Nil entries are skipped.
func Chain(fns ...Func) Func {
	return func(s string) string {
		for _, fn := range fns {
			if fn != nil {
				s = fn(s)
			}
		}
		return s
	}
}

// If returns fn when enabled and nil otherwise, for use in Chain
func If(enabled bool, fn Func) Func {
	if !enabled {
		return nil
	}
	return fn
}

// letters without a combining mark that still have a conventional ASCII spelling
var asciiFallbacks = map[rune]string{
	'ß': "ss",
	'æ': "ae",
	'Æ': "AE",
	'œ': "oe",
	'Œ': "OE",
	'ø': "o",
	'Ø': "O",
	'đ': "d",
	'Đ': "D",
	'ł': "l",
	'Ł': "L",
	'þ': "th",
	'Þ': "TH",
	'ı': "i",
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Transliterate folds to ASCII. Diacritics are dropped, a few standalone letters are spelled
// out and any other non-ASCII rune is removed.
func Transliterate(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII:
			b.WriteRune(r)
		case asciiFallbacks[r] != "":
			b.WriteString(asciiFallbacks[r])
		}
	}
	return b.String()
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’' || r == 'ʼ' || r == '`'
}

// StripApostrophes removes straight and typographic apostrophes
func StripApostrophes(s string) string {
	return strings.Map(func(r rune) rune {
		if isApostrophe(r) {
			return -1
		}
		return r
	}, s)
}

func RemoveWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// CollapseWhitespace trims and folds whitespace runs into one space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func RemovePunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
}
