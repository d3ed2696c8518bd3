package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storedir/internal/model"
)

func TestCollector_Collect(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	runs := &mockRuns{runs: []model.RunRecord{
		{ID: "a", Scope: model.ScopeScoped, Status: model.RunStatusSuccess, StoresAdded: 10, APICalls: 8, BackupCalls: 1, EstimatedCostUSD: 0.271, ExecutionMS: 20000, CreatedAt: now.Add(-1 * time.Hour)},
		{ID: "b", Scope: model.ScopeScoped, Status: model.RunStatusSuccess, BudgetExceeded: true, StoresAdded: 4, APICalls: 12, EstimatedCostUSD: 0.384, ExecutionMS: 24500, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "c", Scope: model.ScopeGlobal, Status: model.RunStatusFailed, ExecutionMS: 500, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "old", Scope: model.ScopeGlobal, Status: model.RunStatusFailed, CreatedAt: now.Add(-48 * time.Hour)},
	}}

	c := NewCollector(runs)
	c.now = func() time.Time { return now }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, maxRuns, runs.limit)
	assert.Equal(t, 3, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsSucceeded)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsBudgetExceeded)
	assert.InDelta(t, 1.0/3, snap.FailRate, 1e-9)
	assert.InDelta(t, 1.0/3, snap.BudgetExceededRate, 1e-9)
	assert.InDelta(t, 0.655, snap.CostUSD, 1e-9)
	assert.Equal(t, 14, snap.StoresAdded)
	assert.Equal(t, 20, snap.APICalls)
	assert.Equal(t, 1, snap.BackupCalls)
	assert.Equal(t, int64(15000), snap.AvgExecutionMS)
	assert.Equal(t, 2, snap.ByScope[model.ScopeScoped])
	assert.Equal(t, 1, snap.ByScope[model.ScopeGlobal])
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, now, snap.CollectedAt)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := NewCollector(&mockRuns{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.FailRate)
	assert.Zero(t, snap.AvgExecutionMS)
}

func TestCollector_ListError(t *testing.T) {
	_, err := NewCollector(&mockRuns{listErr: eris.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
