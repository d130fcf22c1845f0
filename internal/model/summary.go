package model

import "time"

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusHalted   RunStatus = "halted" // budget ceiling reached mid-batch
	RunStatusFailed   RunStatus = "failed"
)

// Run is a single pipeline invocation, persisted for auditing.
type Run struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Status    RunStatus `json:"status"`
	Summary   *Summary  `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncOutcome counts per-record sync results for a run.
type SyncOutcome struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Summary is the end-of-run report: listing counts through each stage,
// spend against the ceiling, tier distribution, and sync outcomes.
type Summary struct {
	Collected      int            `json:"collected"`
	Admitted       int            `json:"admitted"`
	Enriched       int            `json:"enriched"`
	Partial        int            `json:"partial"`
	Failed         int            `json:"failed"`
	Pending        int            `json:"pending"` // left unprocessed by a budget halt
	SpendUSD       float64        `json:"spend_usd"`
	BudgetUSD      float64        `json:"budget_usd"`
	TotalTokensIn  int            `json:"total_tokens_in"`
	TotalTokensOut int            `json:"total_tokens_out"`
	LLMCalls       int            `json:"llm_calls"`
	Tiers          map[Tier]int   `json:"tiers"`
	StageFailures  map[string]int `json:"stage_failures,omitempty"`
	Sync           SyncOutcome    `json:"sync"`
	DurationMS     int64          `json:"duration_ms"`
}

// SyncState is the persisted fingerprint of the last successful sync for an
// external record, keyed by the listing's place ID.
type SyncState struct {
	ExternalID  string    `json:"external_id"`
	RemoteID    string    `json:"remote_id"`
	PayloadHash uint64    `json:"payload_hash"`
	SyncedAt    time.Time `json:"synced_at"`
}
