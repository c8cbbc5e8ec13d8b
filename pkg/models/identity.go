package models

import "time"

// IdentityRecord is an existing resolved identity used as a matching candidate
type IdentityRecord struct {
	ID         string         `json:"id" db:"id"`
	Name       string         `json:"name" db:"name"`
	Attributes map[string]any `json:"attributes" db:"-"`
	AccountIDs []string       `json:"account_ids" db:"-"`
	Reviewer   bool           `json:"reviewer" db:"reviewer"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// UpsertIdentityRequest is the ingestion payload for an identity
type UpsertIdentityRequest struct {
	ID         string         `json:"id" validate:"required"`
	Name       string         `json:"name" validate:"required"`
	Attributes map[string]any `json:"attributes"`
	AccountIDs []string       `json:"account_ids"`
	Reviewer   bool           `json:"reviewer"`
}

// Values returns every non-empty string value of an identity attribute. Fusion account
// candidates merged with the multi policy carry more than one.
func (i *IdentityRecord) Values(attribute string) []string {
	if i == nil || i.Attributes == nil {
		return nil
	}
	var out []string
	for _, v := range StringValues(i.Attributes[attribute]) {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
