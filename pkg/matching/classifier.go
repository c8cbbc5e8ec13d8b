// Package matching classifies source accounts against the existing identity population
package matching

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

// Classifier matches one source account against every identity using the merging map
type Classifier struct {
	logger ectologger.Logger
	scorer *Scorer
}

// NewClassifier creates a new classifier
func NewClassifier(logger ectologger.Logger) *Classifier {
	return &Classifier{
		logger: logger,
		scorer: NewScorer(),
	}
}

// Classify scores the account against every identity and decides whether it is identical
// to exactly one of them, ambiguous between several, or new.
func (c *Classifier) Classify(ctx context.Context, account *models.SourceAccount, identities []models.IdentityRecord, settings *models.FusionSettings) (*models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Classifier.Classify")
	defer span.End()

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	result := &models.MatchResult{Classification: models.ClassificationNoMatch}
	if len(settings.MergingMap) == 0 {
		return result, nil
	}

	var uidEntries, fuzzyEntries []models.MergingMapEntry
	for _, entry := range settings.MergingMap {
		if entry.UIDOnly {
			uidEntries = append(uidEntries, entry)
		} else {
			fuzzyEntries = append(fuzzyEntries, entry)
		}
	}

	perfect := 0
	for i := range identities {
		identity := &identities[i]
		if !c.passesUIDChecks(account, identity, uidEntries) {
			continue
		}

		candidate, passed := c.scoreCandidate(account, identity, fuzzyEntries, settings)
		if !passed {
			continue
		}
		if candidate.Perfect {
			perfect++
		}
		result.Candidates = append(result.Candidates, candidate)
	}

	sortCandidates(result.Candidates)

	switch {
	case len(result.Candidates) == 0:
		result.Classification = models.ClassificationNoMatch
	case perfect == 1:
		result.Classification = models.ClassificationIdentical
	default:
		result.Classification = models.ClassificationAmbiguous
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"account_id":     account.ID,
		"classification": result.Classification,
		"candidates":     len(result.Candidates),
	}).Debug("Classified source account")

	return result, nil
}

// passesUIDChecks requires every uidOnly attribute of the identity to have a value equal to
// at least one of the account's candidate values, byte for byte.
func (c *Classifier) passesUIDChecks(account *models.SourceAccount, identity *models.IdentityRecord, entries []models.MergingMapEntry) bool {
	for _, entry := range entries {
		if c.bestScore(entry, AccountValues(account, entry), identity.Values(entry.IdentityAttribute)) < MaxScore {
			return false
		}
	}
	return true
}

// bestScore is the highest score over every pair of account and identity values
func (c *Classifier) bestScore(entry models.MergingMapEntry, values, expected []string) float64 {
	best := 0.0
	for _, e := range expected {
		for _, v := range values {
			if score := c.scorer.Score(entry, v, e); score > best {
				best = score
			}
		}
	}
	return best
}

func (c *Classifier) scoreCandidate(account *models.SourceAccount, identity *models.IdentityRecord, entries []models.MergingMapEntry, settings *models.FusionSettings) (models.MatchCandidate, bool) {
	candidate := models.MatchCandidate{
		IdentityID:   identity.ID,
		IdentityName: identity.Name,
		Scores:       make(map[string]float64, len(entries)),
	}

	// Only uidOnly entries configured: surviving the exact checks is a perfect match.
	if len(entries) == 0 {
		candidate.Score = MaxScore
		candidate.Perfect = true
		return candidate, true
	}

	total := 0.0
	anyPassed := false
	allPerfect := true
	for _, entry := range entries {
		expected := identity.Values(entry.IdentityAttribute)
		values := AccountValues(account, entry)
		if len(expected) == 0 || len(values) == 0 {
			allPerfect = false
			continue
		}

		best := c.bestScore(entry, values, expected)

		candidate.Scores[entry.IdentityAttribute] = best
		total += best
		if best < MaxScore {
			allPerfect = false
		}
		if best >= settings.Threshold(entry.IdentityAttribute) {
			anyPassed = true
		}
	}

	candidate.Score = total / float64(len(entries))
	candidate.Perfect = allPerfect

	if settings.GlobalMergingScore {
		return candidate, allPerfect || candidate.Score >= settings.MergingScore
	}
	return candidate, allPerfect || anyPassed
}

// sortCandidates orders by aggregate score descending, then identity id ascending
func sortCandidates(candidates []models.MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].IdentityID < candidates[j].IdentityID
	})
}
