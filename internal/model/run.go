package model

import "time"

// RunScope classifies the filter level of a discovery run.
type RunScope string

const (
	ScopeGlobal   RunScope = "global"
	ScopeFiltered RunScope = "filtered"
	ScopeScoped   RunScope = "scoped"
)

// RunStatus is the terminal state of a discovery run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// RunRecord is one append-only audit row per discovery invocation.
type RunRecord struct {
	ID               string         `json:"id"`
	Scope            RunScope       `json:"scope"`
	Filters          map[string]any `json:"filters,omitempty"`
	StoresAdded      int            `json:"stores_added"`
	StoresSkipped    int            `json:"stores_skipped"`
	APICalls         int            `json:"api_calls"`
	BackupCalls      int            `json:"backup_calls"`
	EstimatedCostUSD float64        `json:"estimated_cost_usd"`
	ExecutionMS      int64          `json:"execution_ms"`
	Status           RunStatus      `json:"status"`
	BudgetExceeded   bool           `json:"budget_exceeded"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
