package api

import (
	"context"

	"github.com/sells-group/storedir/internal/discovery"
	"github.com/sells-group/storedir/internal/model"
	"github.com/sells-group/storedir/internal/registration"
)

type fakeDiscoverer struct {
	resp  *discovery.RunResponse
	err   error
	calls []discovery.RunRequest
}

func (f *fakeDiscoverer) Run(_ context.Context, req discovery.RunRequest) (*discovery.RunResponse, error) {
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

type fakeDirectory struct {
	neighborhoods []model.Neighborhood
	states        []model.StateSummary
	runs          []model.RunRecord
	filter        discovery.NeighborhoodFilter
	runLimit      int
	err           error
}

func (f *fakeDirectory) ListNeighborhoods(_ context.Context, nf discovery.NeighborhoodFilter) ([]model.Neighborhood, error) {
	f.filter = nf
	return f.neighborhoods, f.err
}

func (f *fakeDirectory) ListStates(_ context.Context, _ string) ([]model.StateSummary, error) {
	return f.states, f.err
}

func (f *fakeDirectory) ListRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	f.runLimit = limit
	return f.runs, f.err
}

type fakeStores struct {
	counts  []model.SourceCount
	pingErr error
}

func (f *fakeStores) SourceCounts(_ context.Context) ([]model.SourceCount, error) {
	return f.counts, nil
}

func (f *fakeStores) Ping(_ context.Context) error { return f.pingErr }

type fakeRegistrar struct {
	res *registration.Result
	err error
	got registration.Request
}

func (f *fakeRegistrar) Register(_ context.Context, req registration.Request) (*registration.Result, error) {
	f.got = req
	return f.res, f.err
}
