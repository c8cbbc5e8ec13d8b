package expressions

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// {{ expression }}, expression trimmed
var placeholder = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)

// Template renders unique ID templates: literal text with {{ jmespath }} placeholders
type Template struct {
	evaluator *Evaluator
}

// NewTemplate creates a template renderer. A nil evaluator gets a private one.
func NewTemplate(evaluator *Evaluator) *Template {
	if evaluator == nil {
		evaluator = NewEvaluator()
	}
	return &Template{evaluator: evaluator}
}

// Render substitutes every placeholder with its value against data. Rendering stops at the
// first expression that fails.
func (t *Template) Render(template string, data any) (string, error) {
	var out strings.Builder
	last := 0
	for _, loc := range placeholder.FindAllStringSubmatchIndex(template, -1) {
		out.WriteString(template[last:loc[0]])

		expression := template[loc[2]:loc[3]]
		value, err := t.evaluator.EvaluateString(expression, data)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate %q: %w", expression, err)
		}
		out.WriteString(value)
		last = loc[1]
	}
	out.WriteString(template[last:])
	return out.String(), nil
}

// Validate compiles every placeholder without evaluating it
func (t *Template) Validate(template string) error {
	for _, expression := range ExtractExpressions(template) {
		if err := t.evaluator.Validate(expression); err != nil {
			return fmt.Errorf("invalid expression %q: %w", expression, err)
		}
	}
	return nil
}

func HasTemplates(s string) bool {
	return placeholder.MatchString(s)
}

// ExtractExpressions lists the placeholder expressions in order of appearance
func ExtractExpressions(template string) []string {
	var expressions []string
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		expressions = append(expressions, m[1])
	}
	return expressions
}

// References reports whether any placeholder reads field from the top level. Longer names
// such as counterparty, subfields such as a.counter and string literals do not count.
func References(template, field string) bool {
	for _, expression := range ExtractExpressions(template) {
		if slices.Contains(topLevelIdentifiers(expression), field) {
			return true
		}
	}
	return false
}

// topLevelIdentifiers lists the bare and quoted identifiers of a JMESPath expression that are
// not reached through a dot. go-jmespath keeps its AST unexported, so the tokens are scanned here.
func topLevelIdentifiers(expression string) []string {
	var out []string
	rs := []rune(expression)
	var prev rune
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case r == '\'' || r == '`':
			i = closingQuote(rs, i+1, r) + 1
			prev = r
		case r == '"':
			end := closingQuote(rs, i+1, r)
			if prev != '.' {
				out = append(out, string(rs[i+1:end]))
			}
			i = end + 1
			prev = 'a'
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(rs) && (rs[i] == '_' || unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i])) {
				i++
			}
			if prev != '.' {
				out = append(out, string(rs[start:i]))
			}
			prev = 'a'
		case unicode.IsSpace(r):
			i++
		default:
			prev = r
			i++
		}
	}
	return out
}

// closingQuote returns the index of the quote ending a literal that starts at from, or len(rs)
func closingQuote(rs []rune, from int, quote rune) int {
	for i := from; i < len(rs); i++ {
		switch rs[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}
	return len(rs)
}
