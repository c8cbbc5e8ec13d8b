// Package uniqueid renders collision-free unique IDs for fusion accounts
package uniqueid

import (
	"fmt"
	"strings"

	fusionerrors "github.com/Ramsey-B/fusion/pkg/errors"
	"github.com/Ramsey-B/fusion/pkg/expressions"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/normalizers"
)

// Options control the post-processing and counter width of generated IDs
type Options struct {
	Normalize   bool
	StripSpaces bool
	Case        models.UIDCase
	MaxDigits   int
}

// OptionsFromSettings reads the unique ID options of a fusion source
func OptionsFromSettings(settings *models.FusionSettings) Options {
	return Options{
		Normalize:   settings.UIDNormalize,
		StripSpaces: settings.UIDSpaces,
		Case:        settings.UIDCase,
		MaxDigits:   settings.UIDDigits,
	}
}

// attempts is the number of renders tried before giving up: the bare render plus every counter value
func (o Options) attempts() int {
	if o.MaxDigits <= 0 {
		return 10
	}
	limit := 1
	for i := 0; i < o.MaxDigits; i++ {
		limit *= 10
	}
	return limit
}

func (o Options) counter(n int) string {
	if o.MaxDigits <= 0 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%0*d", o.MaxDigits, n)
}

// Generator renders unique ID templates
type Generator struct {
	template *expressions.Template
}

// NewGenerator creates a new Generator
func NewGenerator() *Generator {
	return &Generator{
		template: expressions.NewTemplate(nil),
	}
}

// Validate reports a malformed template as a configuration error so a pass can stop before
// every account fails on it
func (g *Generator) Validate(template string) error {
	if strings.TrimSpace(template) == "" {
		return fusionerrors.NewConfigurationError("unique id template is required").AddField("uid_template")
	}
	if err := g.template.Validate(template); err != nil {
		return fusionerrors.NewConfigurationError(err.Error()).AddField("uid_template")
	}
	return nil
}

// Generate renders template against attributes until the result is not in existing.
// The counter field starts empty and then counts up from 1, zero padded to MaxDigits.
// Templates without a counter placeholder get the counter appended.
func (g *Generator) Generate(template string, attributes map[string]any, existing IDSet, opts Options) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fusionerrors.NewTemplateError(template, "template is empty")
	}

	hasCounter := expressions.References(template, expressions.CounterField)
	limit := opts.attempts()

	var candidate string
	for attempt := 0; attempt < limit; attempt++ {
		counter := ""
		if attempt > 0 {
			counter = opts.counter(attempt)
		}

		canonical, err := g.render(template, attributes, counter, hasCounter, opts)
		if err != nil {
			return "", err
		}
		if canonical == "" {
			return "", fusionerrors.NewTemplateError(template, "rendered an empty unique id")
		}

		candidate = applyCase(canonical, opts.Case)
		if existing == nil || (!existing.Contains(canonical) && !existing.Contains(candidate)) {
			return candidate, nil
		}
	}

	return "", fusionerrors.NewExhaustedCounterError(candidate, opts.MaxDigits, limit)
}

// render evaluates the template and applies every post-processing step except the case transform
func (g *Generator) render(template string, attributes map[string]any, counter string, hasCounter bool, opts Options) (string, error) {
	out, err := g.template.Render(template, expressions.WithCounter(attributes, counter))
	if err != nil {
		return "", fusionerrors.NewTemplateError(template, err.Error())
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", nil
	}
	if !hasCounter {
		out += counter
	}

	clean := normalizers.Chain(
		normalizers.If(opts.Normalize, normalizers.Transliterate),
		normalizers.StripApostrophes,
		normalizers.If(opts.StripSpaces, normalizers.RemoveWhitespace),
	)
	return strings.TrimSpace(clean(out)), nil
}

func applyCase(s string, c models.UIDCase) string {
	switch c {
	case models.UIDCaseLower:
		return strings.ToLower(s)
	case models.UIDCaseUpper:
		return strings.ToUpper(s)
	default:
		return s
	}
}
