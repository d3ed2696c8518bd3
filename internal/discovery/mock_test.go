package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/storedir/internal/geo"
	"github.com/sells-group/storedir/internal/model"
	"github.com/sells-group/storedir/internal/placesearch"
	"github.com/sells-group/storedir/pkg/foursquare"
	"github.com/sells-group/storedir/pkg/geocode"
)

// fakeSearcher answers placesearch requests with fn and records them.
type fakeSearcher struct {
	fn    func(req placesearch.Request) (*placesearch.Result, error)
	calls []placesearch.Request
}

func (f *fakeSearcher) Search(_ context.Context, req placesearch.Request) (*placesearch.Result, error) {
	f.calls = append(f.calls, req)
	return f.fn(req)
}

// storesAt builds n auto stores with ids "<prefix>-<i>" near p.
func storesAt(prefix string, p geo.Point, n int) []model.Store {
	out := make([]model.Store, 0, n)
	for i := range n {
		out = append(out, model.Store{
			PlaceID:   model.StringPtr(fmt.Sprintf("%s-%d", prefix, i)),
			Name:      fmt.Sprintf("Loja %s %d", prefix, i),
			Latitude:  p.Lat + float64(i)*0.001,
			Longitude: p.Lng,
			Category:  model.CategoryGeneral,
			Source:    model.SourceAuto,
		})
	}
	return out
}

// perZone returns n stores per zone, keyed by the zone latitude, capped at
// the requested size. Each call costs one API call.
func perZone(n int) func(req placesearch.Request) (*placesearch.Result, error) {
	return func(req placesearch.Request) (*placesearch.Result, error) {
		prefix := fmt.Sprintf("%.4f", req.Center.Lat)
		stores := storesAt(prefix, req.Center, min(n, req.MaxResults))
		return &placesearch.Result{Stores: stores, APICalls: 1}, nil
	}
}

func testZones(n int) []Zone {
	out := make([]Zone, 0, n)
	for i := range n {
		out = append(out, Zone{
			Label:   fmt.Sprintf("zone-%d", i),
			Center:  geo.Point{Lat: -23.5 + float64(i)*0.1, Lng: -46.6},
			RadiusM: 1500,
		})
	}
	return out
}

// fakeStore implements Store and ingest.Writer in memory.
type fakeStore struct {
	mu            sync.Mutex
	neighborhoods []model.Neighborhood
	rows          map[string]model.Store
	near          []model.Store
	names         map[string]bool
	nameQueries   [][]string
	increments    []int64
	runs          []*model.RunRecord
	failNames     map[string]bool
	knownErr      error
	listErr       error
}

func newFakeStore(hoods ...model.Neighborhood) *fakeStore {
	return &fakeStore{neighborhoods: hoods, rows: make(map[string]model.Store)}
}

func (f *fakeStore) NeighborhoodsByID(_ context.Context, ids []int64) ([]model.Neighborhood, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Neighborhood
	for _, n := range f.neighborhoods {
		if want[n.ID] {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) ListNeighborhoods(_ context.Context, _ NeighborhoodFilter) ([]model.Neighborhood, error) {
	return f.neighborhoods, f.listErr
}

func (f *fakeStore) KnownPlaceIDs(_ context.Context) (map[string]bool, error) {
	if f.knownErr != nil {
		return nil, f.knownErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[string]bool, len(f.rows))
	for id := range f.rows {
		ids[id] = true
	}
	return ids, nil
}

func (f *fakeStore) StoresNear(_ context.Context, _ geo.Point, _ float64) ([]model.Store, error) {
	return f.near, nil
}

func (f *fakeStore) StoreNamesExist(_ context.Context, names []string) (map[string]bool, error) {
	f.nameQueries = append(f.nameQueries, names)
	found := make(map[string]bool)
	for _, n := range names {
		if f.names[n] {
			found[n] = true
		}
	}
	return found, nil
}

func (f *fakeStore) IncrementApuration(_ context.Context, id int64) error {
	f.increments = append(f.increments, id)
	return nil
}

func (f *fakeStore) RecordRun(_ context.Context, rec *model.RunRecord) error {
	f.runs = append(f.runs, rec)
	return nil
}

func (f *fakeStore) ListRuns(_ context.Context, _ int) ([]model.RunRecord, error) {
	out := make([]model.RunRecord, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) ListStates(_ context.Context, _ string) ([]model.StateSummary, error) {
	return nil, nil
}

func (f *fakeStore) InsertStore(_ context.Context, s model.Store) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNames[s.Name] {
		return false, eris.New("postgres: not null violation")
	}
	key := s.ExternalID()
	if key == "" {
		key = "fsq:" + s.Name
	}
	if _, ok := f.rows[key]; ok {
		return false, nil
	}
	f.rows[key] = s
	return true, nil
}

// fakeLease refuses neighborhoods listed in held.
type fakeLease struct {
	held     map[int64]bool
	err      error
	acquired []int64
	released []int64
}

func (f *fakeLease) Acquire(_ context.Context, id int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held[id] {
		return false, nil
	}
	f.acquired = append(f.acquired, id)
	return true, nil
}

func (f *fakeLease) Release(_ context.Context, id int64) error {
	f.released = append(f.released, id)
	return nil
}

// fakeFoursquare returns places or err and counts calls.
type fakeFoursquare struct {
	places []foursquare.Place
	err    error
	calls  int
	last   foursquare.SearchRequest
}

func (f *fakeFoursquare) Search(_ context.Context, req foursquare.SearchRequest) ([]foursquare.Place, error) {
	f.calls++
	f.last = req
	return f.places, f.err
}

func fsqPlace(name string, lat, lng float64, address string) foursquare.Place {
	return foursquare.Place{
		FsqID:    "fsq-" + name,
		Name:     name,
		Location: foursquare.Location{FormattedAddress: address},
		Geocodes: foursquare.Geocodes{Main: &foursquare.Point{Latitude: lat, Longitude: lng}},
	}
}

// fakeGeocoder answers Reverse with a fixed address.
type fakeGeocoder struct {
	address string
	calls   int
}

func (f *fakeGeocoder) Geocode(_ context.Context, _ string) (*geocode.Result, error) {
	return &geocode.Result{}, nil
}

func (f *fakeGeocoder) Reverse(_ context.Context, lat, lng float64) (*geocode.Result, error) {
	f.calls++
	return &geocode.Result{Latitude: lat, Longitude: lng, FormattedAddress: f.address, Matched: true}, nil
}
