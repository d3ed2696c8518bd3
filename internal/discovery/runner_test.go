package discovery

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storedir/internal/keywords"
	"github.com/sells-group/storedir/internal/model"
	"github.com/sells-group/storedir/internal/placesearch"
	"github.com/sells-group/storedir/internal/zones"
)

func hood(id int64, lat float64, count int) model.Neighborhood {
	return model.Neighborhood{
		ID:             id,
		CityID:         1,
		Name:           "Bairro " + string(rune('A'+id-1)),
		CountryCode:    "BR",
		Latitude:       lat,
		Longitude:      -46.6,
		RadiusM:        1500,
		ApurationCount: count,
	}
}

func newTestRunner(st *fakeStore, s Searcher, opts ...RunnerOption) *Runner {
	return NewRunner(st, st, newTestIterator(s), RunnerConfig{
		DefaultMaxResults: 200,
		DefaultMaxZones:   10,
		ZoneLimit:         20,
		ChunkSize:         10,
	}, opts...)
}

func TestRunRequest_Scope(t *testing.T) {
	assert.Equal(t, model.ScopeGlobal, RunRequest{}.Scope())
	assert.Equal(t, model.ScopeFiltered, RunRequest{City: "Campinas"}.Scope())
	assert.Equal(t, model.ScopeScoped, RunRequest{Country: "BR", NeighborhoodIDs: []int64{1}}.Scope())
}

func TestRun_ScopedUsesApurationLimits(t *testing.T) {
	st := newFakeStore(hood(1, -23.5, 0), hood(2, -23.6, 6))
	s := &fakeSearcher{fn: perZone(3)}

	resp, err := newTestRunner(st, s).Run(context.Background(), RunRequest{NeighborhoodIDs: []int64{1, 2}})
	require.NoError(t, err)

	require.Len(t, s.calls, 2)
	assert.Equal(t, 666, s.calls[0].MaxResults)
	assert.Equal(t, 18, s.calls[1].MaxResults)

	assert.True(t, resp.Success)
	assert.Equal(t, model.ScopeScoped, resp.Scope)
	assert.Equal(t, 6, resp.Stats.StoresAdded)
	assert.Equal(t, 2, resp.Stats.ZonesSearched)
	assert.Equal(t, MessageComplete, resp.Message)
	assert.Equal(t, []int64{1, 2}, st.increments)

	require.Len(t, st.runs, 1)
	rec := st.runs[0]
	assert.Equal(t, resp.RunID, rec.ID)
	assert.Equal(t, model.RunStatusSuccess, rec.Status)
	assert.Equal(t, 6, rec.StoresAdded)
	assert.Equal(t, 2, rec.APICalls)
	assert.InDelta(t, 0.064, rec.EstimatedCostUSD, 1e-9)
	assert.Equal(t, []int64{1, 2}, rec.Filters["neighborhoodIds"])
}

func TestRun_IdempotentRerun(t *testing.T) {
	st := newFakeStore(hood(1, -23.5, 0))
	s := &fakeSearcher{fn: perZone(4)}
	r := newTestRunner(st, s)

	first, err := r.Run(context.Background(), RunRequest{NeighborhoodIDs: []int64{1}})
	require.NoError(t, err)
	assert.Equal(t, 4, first.Stats.StoresAdded)

	second, err := r.Run(context.Background(), RunRequest{NeighborhoodIDs: []int64{1}})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats.StoresAdded)
	assert.Len(t, st.rows, 4)
	assert.Equal(t, []int64{1, 1}, st.increments)
	assert.Len(t, st.runs, 2)
}

func TestRun_UnknownNeighborhoodWritesFailedRow(t *testing.T) {
	st := newFakeStore(hood(1, -23.5, 0))
	s := &fakeSearcher{fn: perZone(1)}

	resp, err := newTestRunner(st, s).Run(context.Background(), RunRequest{NeighborhoodIDs: []int64{1, 99}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnknownNeighborhoods))

	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Errors)
	assert.Empty(t, s.calls)
	assert.Empty(t, st.increments)

	require.Len(t, st.runs, 1)
	assert.Equal(t, model.RunStatusFailed, st.runs[0].Status)
	assert.Equal(t, 0, st.runs[0].StoresAdded)
	assert.Contains(t, st.runs[0].Error, "99")
}

func TestRun_KnownIDsFailureWritesFailedRow(t *testing.T) {
	st := newFakeStore(hood(1, -23.5, 0))
	st.knownErr = eris.New("connection refused")

	_, err := newTestRunner(st, &fakeSearcher{fn: perZone(1)}).Run(context.Background(), RunRequest{NeighborhoodIDs: []int64{1}})
	require.Error(t, err)
	require.Len(t, st.runs, 1)
	assert.Equal(t, model.RunStatusFailed, st.runs[0].Status)
	assert.Contains(t, st.runs[0].Error, "connection refused")
}

func TestRun_FailedZonesNotIncremented(t *testing.T) {
	st := newFakeStore(hood(1, -23.5, 0), hood(2, -23.6, 0), hood(3, -23.7, 0))
	st.failNames = map[string]bool{"Loja -23.7000 0": true}

	s := &fakeSearcher{fn: func(req placesearch.Request) (*placesearch.Result, error) {
		if req.Center.Lat == -23.6 {
			return &placesearch.Result{TotalFailure: true, APICalls: 5}, nil
		}
		return perZone(1)(req)
	}}

	resp, err := newTestRunner(st, s).Run(context.Background(), RunRequest{NeighborhoodIDs: []int64{1, 2, 3}})
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, st.increments)
	assert.Equal(t, 1, resp.Stats.StoresAdded)
	assert.Equal(t, 1, resp.Stats.StoresFailed)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "Loja -23.7000 0", resp.Failures[0].Name)
}

func TestRun_LeaseHeldNotIncrementedAndReleased(t *testing.T) {
	st := newFakeStore(hood(1, -23.5, 0), hood(2, -23.6, 0))
	lease := &fakeLease{held: map[int64]bool{2: true}}

	resp, err := newTestRunner(st, &fakeSearcher{fn: perZone(1)}, WithLease(lease)).
		Run(context.Background(), RunRequest{NeighborhoodIDs: []int64{1, 2}})
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, st.increments)
	assert.Equal(t, []int64{1}, lease.acquired)
	assert.Equal(t, []int64{1}, lease.released)
	assert.NotEmpty(t, resp.Zones[1].Skipped)
}

func TestRun_FilteredAppliesDefaultsAndNeverIncrements(t *testing.T) {
	var hoods []model.Neighborhood
	for i := range 12 {
		hoods = append(hoods, hood(int64(i+1), -23.0-float64(i)*0.1, 0))
	}
	st := newFakeStore(hoods...)
	s := &fakeSearcher{fn: perZone(1)}

	resp, err := newTestRunner(st, s).Run(context.Background(), RunRequest{Country: "Brasil", State: "SP"})
	require.NoError(t, err)

	assert.Equal(t, model.ScopeFiltered, resp.Scope)
	assert.Len(t, s.calls, 10)
	assert.Equal(t, 20, s.calls[0].MaxResults)
	assert.True(t, resp.MoreAvailable)
	assert.Equal(t, 2, resp.Stats.ZonesRemaining)
	assert.Equal(t, MessageMoreAvailable, resp.Message)
	assert.Empty(t, st.increments)
}

func TestRun_LegacyZonesWhenNoNeighborhoods(t *testing.T) {
	tbl, err := zones.Parse([]byte(`zones:
  - {name: Centro, country: BR, state: SP, city: São Paulo, lat: -23.55, lng: -46.63, radius_m: 5000}
  - {name: Tijuca, country: BR, state: RJ, city: Rio de Janeiro, lat: -22.92, lng: -43.23, radius_m: 4000}
`))
	require.NoError(t, err)

	st := newFakeStore()
	s := &fakeSearcher{fn: perZone(2)}

	resp, err := newTestRunner(st, s, WithLegacyZones(tbl)).Run(context.Background(), RunRequest{State: "rj"})
	require.NoError(t, err)

	require.Len(t, s.calls, 1)
	assert.InDelta(t, -22.92, s.calls[0].Center.Lat, 1e-9)
	assert.Equal(t, 2, resp.Stats.StoresAdded)
	require.Len(t, resp.Zones, 1)
	assert.Equal(t, "Tijuca", resp.Zones[0].Label)
}

func TestRun_GlobalWithoutZonesFails(t *testing.T) {
	st := newFakeStore()
	_, err := newTestRunner(st, &fakeSearcher{fn: perZone(1)}).Run(context.Background(), RunRequest{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoZones))
	require.Len(t, st.runs, 1)
	assert.Equal(t, model.ScopeGlobal, st.runs[0].Scope)
}

func TestRun_BudgetExceededIsPartialSuccess(t *testing.T) {
	st := newFakeStore(hood(1, -23.5, 0), hood(2, -23.6, 0))
	s := &fakeSearcher{fn: perZone(1)}
	r := NewRunner(st, st, newTestIterator(s), RunnerConfig{TimeBudget: 1})

	resp, err := r.Run(context.Background(), RunRequest{NeighborhoodIDs: []int64{1, 2}})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.True(t, resp.BudgetExceeded)
	assert.Equal(t, MessageBudgetExceeded, resp.Message)
	assert.Empty(t, st.increments)
	require.Len(t, st.runs, 1)
	assert.True(t, st.runs[0].BudgetExceeded)
	assert.Equal(t, model.RunStatusSuccess, st.runs[0].Status)
}

func TestRun_AllCallsFailedWritesFailedRow(t *testing.T) {
	st := newFakeStore(hood(1, -23.5, 0), hood(2, -23.6, 0))
	s := &fakeSearcher{fn: func(req placesearch.Request) (*placesearch.Result, error) {
		return &placesearch.Result{
			TotalFailure:   true,
			FailedKeywords: 5,
			APICalls:       5,
			Errors:         []string{"ferragens: status 403"},
		}, nil
	}}

	resp, err := newTestRunner(st, s).Run(context.Background(), RunRequest{NeighborhoodIDs: []int64{1, 2}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrAllCallsFailed))

	assert.False(t, resp.Success)
	assert.Len(t, s.calls, 2)
	assert.Empty(t, st.increments)
	require.Len(t, resp.Zones, 2)
	assert.True(t, resp.Zones[0].CallsFailed)

	require.Len(t, st.runs, 1)
	assert.Equal(t, model.RunStatusFailed, st.runs[0].Status)
	assert.Equal(t, 0, st.runs[0].StoresAdded)
	assert.Contains(t, st.runs[0].Error, "status 403")
}

func TestRun_PartialCallFailureStillSucceeds(t *testing.T) {
	st := newFakeStore(hood(1, -23.5, 0), hood(2, -23.6, 0))
	s := &fakeSearcher{fn: func(req placesearch.Request) (*placesearch.Result, error) {
		if req.Center.Lat == -23.6 {
			return nil, eris.New("status 500")
		}
		return perZone(1)(req)
	}}

	resp, err := newTestRunner(st, s).Run(context.Background(), RunRequest{NeighborhoodIDs: []int64{1, 2}})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, []int64{1}, st.increments)
	require.Len(t, st.runs, 1)
	assert.Equal(t, model.RunStatusSuccess, st.runs[0].Status)
}

func TestRun_EmptyNeighborhoodAdvances(t *testing.T) {
	st := newFakeStore(hood(1, -23.5, 2))
	s := &fakeSearcher{fn: func(req placesearch.Request) (*placesearch.Result, error) {
		return &placesearch.Result{TotalFailure: true, EmptyKeywords: 5, APICalls: 5}, nil
	}}

	resp, err := newTestRunner(st, s).Run(context.Background(), RunRequest{NeighborhoodIDs: []int64{1}})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, 0, resp.Stats.StoresAdded)
	assert.Equal(t, []int64{1}, st.increments)
	require.Len(t, st.runs, 1)
	assert.Equal(t, model.RunStatusSuccess, st.runs[0].Status)
}

func TestRun_UnknownCountryRejected(t *testing.T) {
	tbl, err := zones.Parse([]byte(`zones:
  - {name: Centro, country: BR, state: SP, city: São Paulo, lat: -23.55, lng: -46.63, radius_m: 5000}
`))
	require.NoError(t, err)

	st := newFakeStore(hood(1, -23.5, 0))
	s := &fakeSearcher{fn: perZone(1)}

	resp, err := newTestRunner(st, s, WithLegacyZones(tbl)).Run(context.Background(), RunRequest{Country: "France"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, keywords.ErrUnknownCountry))

	assert.False(t, resp.Success)
	assert.Empty(t, s.calls)
	require.Len(t, st.runs, 1)
	assert.Equal(t, model.RunStatusFailed, st.runs[0].Status)
	assert.Contains(t, st.runs[0].Error, "France")
}
