package models

import (
	"fmt"
	"strings"
	"time"
)

// SourceAccount is one account record from one authoritative source
type SourceAccount struct {
	ID             string         `json:"id" db:"id"`
	SourceID       string         `json:"source_id" db:"source_id"`
	SourceName     string         `json:"source_name" db:"source_name"`
	NativeIdentity string         `json:"native_identity" db:"native_identity"`
	Name           string         `json:"name" db:"name"`
	IdentityID     string         `json:"identity_id,omitempty" db:"identity_id"`
	Correlated     bool           `json:"correlated" db:"correlated"`
	Disabled       bool           `json:"disabled" db:"disabled"`
	Attributes     map[string]any `json:"attributes" db:"-"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// UpsertSourceAccountRequest is the ingestion payload for a source account
type UpsertSourceAccountRequest struct {
	ID             string         `json:"id" validate:"required"`
	SourceID       string         `json:"source_id" validate:"required"`
	SourceName     string         `json:"source_name" validate:"required"`
	NativeIdentity string         `json:"native_identity" validate:"required"`
	Name           string         `json:"name"`
	IdentityID     string         `json:"identity_id,omitempty"`
	Correlated     bool           `json:"correlated"`
	Disabled       bool           `json:"disabled"`
	Attributes     map[string]any `json:"attributes"`
}

// Values returns the string values of an attribute. List-valued attributes yield each element.
func (a *SourceAccount) Values(attribute string) []string {
	if a == nil || a.Attributes == nil {
		return nil
	}
	return StringValues(a.Attributes[attribute])
}

// Value returns the first non-empty string value of an attribute
func (a *SourceAccount) Value(attribute string) string {
	for _, v := range a.Values(attribute) {
		if v != "" {
			return v
		}
	}
	return ""
}

// Label renders the account as "name (source)"
func (a *SourceAccount) Label() string {
	name := a.Name
	if name == "" {
		name = a.NativeIdentity
	}
	return fmt.Sprintf("%s (%s)", name, a.SourceName)
}

// StringValues flattens a raw attribute value into its non-nil string forms
func StringValues(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, StringValues(item)...)
		}
		return out
	default:
		return []string{strings.TrimSpace(fmt.Sprintf("%v", v))}
	}
}
