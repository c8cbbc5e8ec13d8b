package fusion

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	fusionerrors "github.com/Ramsey-B/fusion/pkg/errors"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

// Report classifies every uncorrelated, unlinked account of a fusion source without changing anything
func (r *Reconciler) Report(ctx context.Context, settings *models.FusionSettings) (*models.Report, error) {
	ctx, span := tracing.StartSpan(ctx, "fusion.Reconciler.Report")
	defer span.End()

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	p, err := r.load(ctx, settings)
	if err != nil {
		return nil, err
	}

	report := &models.Report{
		FusionSourceID: settings.ID,
		Analyses:       []models.AccountAnalysis{},
		GeneratedAt:    p.Now,
	}

	candidates := p.Candidates()
	errs := &fusionerrors.BatchError{}

	for i := range p.Accounts {
		account := &p.Accounts[i]
		if account.Correlated || p.FusionAccountFor(account.ID) != nil {
			continue
		}

		result, err := r.classifier.Classify(ctx, account, candidates, settings)
		if err != nil {
			errs.Add(fusionerrors.WrapAccountError(account.ID, err).AddName(account.Name, account.SourceName))
			continue
		}

		report.Analyses = append(report.Analyses, models.AccountAnalysis{
			AccountID:      account.ID,
			AccountName:    account.Name,
			SourceName:     account.SourceName,
			Classification: result.Classification,
			Results:        describe(result, settings),
		})
	}

	report.Errors = errs.Messages()
	return report, nil
}

// describe renders a match result as report lines
func describe(result *models.MatchResult, settings *models.FusionSettings) []string {
	switch result.Classification {
	case models.ClassificationIdentical:
		return []string{fmt.Sprintf("Identical to %s", result.Best().IdentityName)}
	case models.ClassificationAmbiguous:
		lines := make([]string, 0, len(result.Candidates))
		for _, c := range result.Candidates {
			scores := make([]string, 0, len(c.Scores))
			for _, entry := range settings.MergingMap {
				if score, ok := c.Scores[entry.IdentityAttribute]; ok {
					scores = append(scores, fmt.Sprintf("%s: %s", entry.IdentityAttribute, formatScore(score)))
				}
			}
			lines = append(lines, fmt.Sprintf("Similar to %s [ %s ]", c.IdentityName, strings.Join(scores, " ")))
		}
		return lines
	default:
		return []string{MessageNoMatch}
	}
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 0, 64)
}
