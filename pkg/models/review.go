package models

import "time"

// ReviewState is the lifecycle state of a review request
type ReviewState string

const (
	ReviewStatePending   ReviewState = "pending"
	ReviewStateCompleted ReviewState = "completed"
	ReviewStateCancelled ReviewState = "cancelled"
)

// NewIdentityTarget is the decision target meaning "this account is a new person"
const NewIdentityTarget = "This is a new identity"

// ReviewDecision is a reviewer's answer to a review request
type ReviewDecision struct {
	ReviewerID   string    `json:"reviewer_id" validate:"required"`
	ReviewerName string    `json:"reviewer_name"`
	Target       string    `json:"target" validate:"required"`
	Comment      string    `json:"comment,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}

// IsNewIdentity reports whether the reviewer chose to create a new identity
func (d *ReviewDecision) IsNewIdentity() bool {
	return d != nil && d.Target == NewIdentityTarget
}

// ReviewRequest is a pending human disambiguation task for an ambiguous match
type ReviewRequest struct {
	ID             string           `json:"id"`
	FusionSourceID string           `json:"fusion_source_id"`
	Account        SourceAccount    `json:"account"`
	Candidates     []MatchCandidate `json:"candidates"`
	Reviewers      []string         `json:"reviewers"`
	State          ReviewState      `json:"state"`
	Decision       *ReviewDecision  `json:"decision,omitempty"`
	Expiry         time.Time        `json:"expiry"`
	Applied        bool             `json:"applied"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// IsTerminal reports whether the request has left the pending state
func (r *ReviewRequest) IsTerminal() bool {
	return r.State == ReviewStateCompleted || r.State == ReviewStateCancelled
}

// HasCandidate reports whether an identity was offered to the reviewers
func (r *ReviewRequest) HasCandidate(identityID string) bool {
	for _, c := range r.Candidates {
		if c.IdentityID == identityID {
			return true
		}
	}
	return false
}

// ResolutionKind is the fusion account mutation a terminal review request triggers
type ResolutionKind string

const (
	ResolutionLinkExisting ResolutionKind = "link_existing"
	ResolutionCreateNew    ResolutionKind = "create_new"
	ResolutionRequeue      ResolutionKind = "requeue"
)

// Resolution hands a terminal review request to the fusion account builder
type Resolution struct {
	Kind       ResolutionKind `json:"kind"`
	Request    *ReviewRequest `json:"request"`
	IdentityID string         `json:"identity_id,omitempty"`
	Provenance Provenance     `json:"provenance,omitempty"`
	Message    string         `json:"message,omitempty"`
}
