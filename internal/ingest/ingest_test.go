package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storedir/internal/model"
)

// memWriter mimics insert-or-ignore on place id.
type memWriter struct {
	mu       sync.Mutex
	rows     map[string]model.Store
	anon     int
	failOn   map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func newMemWriter() *memWriter {
	return &memWriter{rows: make(map[string]model.Store), failOn: make(map[string]bool)}
}

func (w *memWriter) InsertStore(_ context.Context, s model.Store) (bool, error) {
	n := w.inFlight.Add(1)
	defer w.inFlight.Add(-1)
	for {
		p := w.peak.Load()
		if n <= p || w.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if w.delay > 0 {
		time.Sleep(w.delay)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failOn[s.Name] {
		return false, fmt.Errorf("null value in column %q", "name")
	}
	id := s.ExternalID()
	if id == "" {
		w.anon++
		return true, nil
	}
	if _, ok := w.rows[id]; ok {
		return false, nil
	}
	w.rows[id] = s
	return true, nil
}

func autoStores(n int) []model.Store {
	out := make([]model.Store, n)
	for i := range out {
		out[i] = model.Store{
			PlaceID: model.StringPtr(fmt.Sprintf("P%03d", i)),
			Name:    fmt.Sprintf("Loja %d", i),
			Source:  model.SourceAuto,
		}
	}
	return out
}

func TestIngest_InsertsAll(t *testing.T) {
	w := newMemWriter()
	res := New(w, 100).Ingest(context.Background(), autoStores(250))

	assert.Equal(t, 250, res.Inserted)
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Failed)
	assert.Len(t, w.rows, 250)
}

func TestIngest_RerunIsIdempotent(t *testing.T) {
	w := newMemWriter()
	in := New(w, 100)
	stores := autoStores(40)

	first := in.Ingest(context.Background(), stores)
	second := in.Ingest(context.Background(), stores)

	assert.Equal(t, 40, first.Inserted)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 40, second.Skipped)
	assert.Len(t, w.rows, 40)
}

func TestIngest_DuplicateWithinBatch(t *testing.T) {
	w := newMemWriter()
	stores := append(autoStores(3), autoStores(1)...)

	res := New(w, 100).Ingest(context.Background(), stores)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
}

func TestIngest_FailureDoesNotAbortBatch(t *testing.T) {
	w := newMemWriter()
	w.failOn["Loja 1"] = true

	res := New(w, 2).Ingest(context.Background(), autoStores(5))

	assert.Equal(t, 4, res.Inserted)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "P001", res.Failures[0].PlaceID)
	assert.Equal(t, "Loja 1", res.Failures[0].Name)
	assert.Contains(t, res.Failures[0].Reason, "null value")
}

func TestIngest_StoresWithoutPlaceIDAlwaysInsert(t *testing.T) {
	w := newMemWriter()
	stores := []model.Store{
		{Name: "Depósito Central", Source: model.SourceFoursquare},
		{Name: "Casa do Pintor", Source: model.SourceFoursquare},
	}
	res := New(w, 100).Ingest(context.Background(), stores)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 2, w.anon)
}

func TestIngest_ConcurrencyBoundedByChunk(t *testing.T) {
	w := newMemWriter()
	w.delay = 5 * time.Millisecond

	res := New(w, 4).Ingest(context.Background(), autoStores(20))
	assert.Equal(t, 20, res.Inserted)
	assert.LessOrEqual(t, w.peak.Load(), int32(4))
}

func TestIngest_Empty(t *testing.T) {
	res := New(newMemWriter(), 0).Ingest(context.Background(), nil)
	assert.Equal(t, Result{}, res)
}
