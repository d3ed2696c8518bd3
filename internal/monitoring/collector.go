// Package monitoring watches the discovery audit log and raises webhook
// alerts when run health degrades.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/storedir/internal/model"
)

// maxRuns bounds how many audit rows one collection reads.
const maxRuns = 10000

// MetricsSnapshot holds a point-in-time view of discovery health.
type MetricsSnapshot struct {
	RunsTotal          int     `json:"runs_total"`
	RunsSucceeded      int     `json:"runs_succeeded"`
	RunsFailed         int     `json:"runs_failed"`
	RunsBudgetExceeded int     `json:"runs_budget_exceeded"`
	FailRate           float64 `json:"fail_rate"`
	BudgetExceededRate float64 `json:"budget_exceeded_rate"`
	CostUSD            float64 `json:"cost_usd"`
	StoresAdded        int     `json:"stores_added"`
	APICalls           int     `json:"api_calls"`
	BackupCalls        int     `json:"backup_calls"`
	AvgExecutionMS     int64   `json:"avg_execution_ms"`

	ByScope map[model.RunScope]int `json:"by_scope"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister reads the audit log newest first.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
}

// Collector builds snapshots from the audit log.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect summarizes the runs recorded in the last lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		ByScope:       map[model.RunScope]int{},
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, maxRuns)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var totalMS int64
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		snap.ByScope[r.Scope]++
		switch r.Status {
		case model.RunStatusSuccess:
			snap.RunsSucceeded++
		case model.RunStatusFailed:
			snap.RunsFailed++
		}
		if r.BudgetExceeded {
			snap.RunsBudgetExceeded++
		}
		snap.CostUSD += r.EstimatedCostUSD
		snap.StoresAdded += r.StoresAdded
		snap.APICalls += r.APICalls
		snap.BackupCalls += r.BackupCalls
		totalMS += r.ExecutionMS
	}

	if snap.RunsTotal > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(snap.RunsTotal)
		snap.BudgetExceededRate = float64(snap.RunsBudgetExceeded) / float64(snap.RunsTotal)
		snap.AvgExecutionMS = totalMS / int64(snap.RunsTotal)
	}
	return snap, nil
}
