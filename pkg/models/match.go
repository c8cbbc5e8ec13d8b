package models

// Classification is the outcome of matching one source account against the identity population
type Classification string

const (
	ClassificationIdentical Classification = "identical"
	ClassificationAmbiguous Classification = "ambiguous"
	ClassificationNoMatch   Classification = "no_match"
)

// MatchCandidate is one identity scored against a source account
type MatchCandidate struct {
	IdentityID   string             `json:"identity_id"`
	IdentityName string             `json:"identity_name"`
	Scores       map[string]float64 `json:"scores"`
	Score        float64            `json:"score"`
	Perfect      bool               `json:"perfect"`
}

// MatchResult is the transient classification of one source account
type MatchResult struct {
	Classification Classification   `json:"classification"`
	Candidates     []MatchCandidate `json:"candidates"`
}

// Best returns the top candidate, if any
func (m *MatchResult) Best() *MatchCandidate {
	if m == nil || len(m.Candidates) == 0 {
		return nil
	}
	return &m.Candidates[0]
}
