package monitoring

import (
	"context"

	"github.com/sells-group/storedir/internal/model"
)

type mockRuns struct {
	runs    []model.RunRecord
	listErr error
	limit   int
}

func (m *mockRuns) ListRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	m.limit = limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.runs, nil
}
