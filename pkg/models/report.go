package models

import "time"

// AccountAnalysis is the report entry for one uncorrelated source account
type AccountAnalysis struct {
	AccountID      string         `json:"account_id"`
	AccountName    string         `json:"account_name"`
	SourceName     string         `json:"source_name"`
	Classification Classification `json:"classification"`
	Results        []string       `json:"results"`
}

// Report summarizes how a pass would classify the uncorrelated accounts of a fusion source
type Report struct {
	FusionSourceID string            `json:"fusion_source_id"`
	Analyses       []AccountAnalysis `json:"analyses"`
	Errors         []string          `json:"errors,omitempty"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// ErrorReport is the single batched notification sent at the end of a pass with failures
type ErrorReport struct {
	FusionSourceID   string    `json:"fusion_source_id"`
	FusionSourceName string    `json:"fusion_source_name"`
	PassID           string    `json:"pass_id"`
	Errors           []string  `json:"errors"`
	ReportedAt       time.Time `json:"reported_at"`
}

// PassSummary counts what one reconciliation pass did
type PassSummary struct {
	PassID          string    `json:"pass_id"`
	FusionSourceID  string    `json:"fusion_source_id"`
	FirstRun        bool      `json:"first_run"`
	Processed       int       `json:"processed"`
	Baselines       int       `json:"baselines"`
	AutoLinked      int       `json:"auto_linked"`
	Unmatched       int       `json:"unmatched"`
	ReviewsOpened   int       `json:"reviews_opened"`
	ReviewsResolved int       `json:"reviews_resolved"`
	Updated         int       `json:"updated"`
	Failed          int       `json:"failed"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}
