package models

import (
	"time"

	fusionerrors "github.com/Ramsey-B/fusion/pkg/errors"
)

// MergePolicy decides how one identity attribute is resolved across linked accounts
type MergePolicy string

const (
	MergePolicyFirst       MergePolicy = "first"
	MergePolicyConcatenate MergePolicy = "concatenate"
	MergePolicyMulti       MergePolicy = "multi"
	MergePolicySource      MergePolicy = "source"
)

// UIDCase is the case transform applied to generated unique IDs
type UIDCase string

const (
	UIDCaseSame  UIDCase = "same"
	UIDCaseLower UIDCase = "lower"
	UIDCaseUpper UIDCase = "upper"
)

// UIDScope selects which fusion accounts contribute to the set of IDs in use
type UIDScope string

const (
	UIDScopeSource   UIDScope = "source"
	UIDScopePlatform UIDScope = "platform"
)

// MergingMapEntry maps one identity attribute to its candidate account attributes
type MergingMapEntry struct {
	IdentityAttribute string      `json:"identity" validate:"required"`
	AccountAttributes []string    `json:"account" validate:"required,min=1,dive,required"`
	UIDOnly           bool        `json:"uid_only"`
	MergePolicy       MergePolicy `json:"attribute_merge,omitempty" validate:"omitempty,oneof=first concatenate multi source"`
	SourceOverride    string      `json:"source,omitempty"`
	ScoreOverride     *float64    `json:"merging_score,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// FusionSettings is the persisted configuration of one fusion source
type FusionSettings struct {
	ID                    string            `json:"id" db:"id"`
	Name                  string            `json:"name" db:"name" validate:"required"`
	Enabled               bool              `json:"enabled" db:"enabled"`
	Sources               []string          `json:"sources" db:"-" validate:"required,min=1"`
	MergingEnabled        bool              `json:"merging_enabled" db:"-"`
	MergingMap            []MergingMapEntry `json:"merging_map" db:"-" validate:"dive"`
	GlobalMergingScore    bool              `json:"global_merging_score" db:"-"`
	MergingScore          float64           `json:"merging_score" db:"-" validate:"gte=0,lte=100"`
	MergingExpirationDays int               `json:"merging_expiration_days" db:"-" validate:"gte=0"`
	Reviewers             []string          `json:"reviewers" db:"-"`
	UIDTemplate           string            `json:"uid_template" db:"-" validate:"required"`
	UIDCase               UIDCase           `json:"uid_case" db:"-" validate:"omitempty,oneof=same lower upper"`
	UIDDigits             int               `json:"uid_digits" db:"-" validate:"gte=0,lte=9"`
	UIDNormalize          bool              `json:"uid_normalize" db:"-"`
	UIDSpaces             bool              `json:"uid_spaces" db:"-"`
	UIDScope              UIDScope          `json:"uid_scope" db:"-" validate:"omitempty,oneof=source platform"`
	AttributeMerge        MergePolicy       `json:"attribute_merge" db:"-" validate:"omitempty,oneof=first concatenate multi"`
	CreatedAt             time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at" db:"updated_at"`
}

// Threshold returns the pass threshold for an identity attribute. Entries with their own
// score override it; everything else uses the fusion source's merging score.
func (s *FusionSettings) Threshold(attribute string) float64 {
	if !s.GlobalMergingScore {
		for _, entry := range s.MergingMap {
			if entry.IdentityAttribute == attribute && entry.ScoreOverride != nil {
				return *entry.ScoreOverride
			}
		}
	}
	return s.MergingScore
}

// DefaultPolicy is the merge policy for entries that do not set their own
func (s *FusionSettings) DefaultPolicy() MergePolicy {
	if s.AttributeMerge != "" {
		return s.AttributeMerge
	}
	return MergePolicyFirst
}

// ExpirationDuration is how long a review request stays open
func (s *FusionSettings) ExpirationDuration() time.Duration {
	return time.Duration(s.MergingExpirationDays) * 24 * time.Hour
}

// Validate checks the semantic rules that struct tags cannot express
func (s *FusionSettings) Validate() error {
	if s.UIDTemplate == "" {
		return fusionerrors.NewConfigurationError("unique id template is required").AddField("uid_template")
	}
	if s.UIDDigits < 0 || s.UIDDigits > 9 {
		return fusionerrors.NewConfigurationErrorf("uid digits must be between 0 and 9, got %d", s.UIDDigits).AddField("uid_digits")
	}
	if s.MergingScore < 0 || s.MergingScore > 100 {
		return fusionerrors.NewConfigurationErrorf("merging score must be between 0 and 100, got %v", s.MergingScore).AddField("merging_score")
	}

	seen := make(map[string]bool, len(s.MergingMap))
	for i, entry := range s.MergingMap {
		if entry.IdentityAttribute == "" {
			return fusionerrors.NewConfigurationError("identity attribute is required").AddField("merging_map").AddIndex(i)
		}
		if IsReservedAttribute(entry.IdentityAttribute) {
			return fusionerrors.NewConfigurationErrorf("%q is a reserved attribute", entry.IdentityAttribute).AddField("merging_map").AddIndex(i)
		}
		if seen[entry.IdentityAttribute] {
			return fusionerrors.NewConfigurationErrorf("identity attribute %q is mapped more than once", entry.IdentityAttribute).AddField("merging_map").AddIndex(i)
		}
		seen[entry.IdentityAttribute] = true

		if len(entry.AccountAttributes) == 0 {
			return fusionerrors.NewConfigurationError("at least one account attribute is required").AddField("merging_map").AddIndex(i)
		}
		for _, attr := range entry.AccountAttributes {
			if attr == "" {
				return fusionerrors.NewConfigurationError("account attribute names cannot be empty").AddField("merging_map").AddIndex(i)
			}
		}

		switch entry.MergePolicy {
		case "", MergePolicyFirst, MergePolicyConcatenate, MergePolicyMulti:
		case MergePolicySource:
			if entry.SourceOverride == "" {
				return fusionerrors.NewConfigurationError("source policy requires a source").AddField("merging_map").AddIndex(i)
			}
		default:
			return fusionerrors.NewConfigurationErrorf("unknown merge policy %q", entry.MergePolicy).AddField("merging_map").AddIndex(i)
		}

		if entry.ScoreOverride != nil && (*entry.ScoreOverride < 0 || *entry.ScoreOverride > 100) {
			return fusionerrors.NewConfigurationErrorf("merging score must be between 0 and 100, got %v", *entry.ScoreOverride).AddField("merging_map").AddIndex(i)
		}
	}

	switch s.UIDCase {
	case "", UIDCaseSame, UIDCaseLower, UIDCaseUpper:
	default:
		return fusionerrors.NewConfigurationErrorf("unknown uid case %q", s.UIDCase).AddField("uid_case")
	}

	switch s.UIDScope {
	case "", UIDScopeSource, UIDScopePlatform:
	default:
		return fusionerrors.NewConfigurationErrorf("unknown uid scope %q", s.UIDScope).AddField("uid_scope")
	}

	return nil
}

// reservedAttributes are owned by the fusion account and never copied from source accounts
var reservedAttributes = map[string]bool{
	"id":               true,
	"uniqueID":         true,
	"uuid":             true,
	"history":          true,
	"statuses":         true,
	"actions":          true,
	"reviews":          true,
	"accounts":         true,
	"sources":          true,
	"IIQDisabled":      true,
	"IIQLocked":        true,
	"idNowDescription": true,
	"enabled":          true,
}

// IsReservedAttribute reports whether an attribute name belongs to the fusion account itself
func IsReservedAttribute(name string) bool {
	return reservedAttributes[name]
}
