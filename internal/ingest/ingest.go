// Package ingest persists discovered stores in concurrent chunks with
// insert-or-ignore semantics.
package ingest

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/storedir/internal/metrics"
	"github.com/sells-group/storedir/internal/model"
)

// DefaultChunkSize bounds how many inserts are in flight at once.
const DefaultChunkSize = 100

// Writer inserts a store unless its place id already exists.
type Writer interface {
	InsertStore(ctx context.Context, s model.Store) (bool, error)
}

// Failure is a record that could not be written.
type Failure struct {
	PlaceID string `json:"place_id,omitempty"`
	Name    string `json:"name"`
	Reason  string `json:"reason"`
}

// Result summarizes one ingestion call.
type Result struct {
	Inserted int       `json:"inserted"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Failures []Failure `json:"failures,omitempty"`
}

// Ingester writes stores through a Writer.
type Ingester struct {
	w         Writer
	chunkSize int
}

// New creates an Ingester. chunkSize <= 0 uses DefaultChunkSize.
func New(w Writer, chunkSize int) *Ingester {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Ingester{w: w, chunkSize: chunkSize}
}

// Ingest writes stores chunk by chunk. Inserts inside a chunk run concurrently
// and the chunk is awaited before the next starts. A failed record is reported
// and never aborts the batch.
func (in *Ingester) Ingest(ctx context.Context, stores []model.Store) Result {
	log := zap.L().With(zap.String("component", "ingest"))

	var (
		mu  sync.Mutex
		res Result
	)

	for start := 0; start < len(stores); start += in.chunkSize {
		end := min(start+in.chunkSize, len(stores))
		chunk := stores[start:end]

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(in.chunkSize)

		for _, st := range chunk {
			g.Go(func() error {
				inserted, err := in.w.InsertStore(gCtx, st)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					res.Failed++
					res.Failures = append(res.Failures, Failure{
						PlaceID: st.ExternalID(),
						Name:    st.Name,
						Reason:  err.Error(),
					})
					log.Warn("ingest: insert failed",
						zap.String("place_id", st.ExternalID()),
						zap.String("name", st.Name),
						zap.Error(err),
					)
				case inserted:
					res.Inserted++
					metrics.StoresInserted.WithLabelValues(string(st.Source)).Inc()
				default:
					res.Skipped++
					metrics.StoresSkipped.Inc()
				}
				return nil //nolint:nilerr // per-record failures don't fail the batch
			})
		}
		_ = g.Wait()
	}

	log.Debug("ingest: batch complete",
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res
}
