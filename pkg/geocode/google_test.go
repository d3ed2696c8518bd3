package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storedir/internal/resilience"
)

const paulistaResponse = `{
	"status": "OK",
	"results": [{
		"geometry": {
			"location": {"lat": -23.5613, "lng": -46.6565},
			"location_type": "ROOFTOP"
		},
		"formatted_address": "Av. Paulista, 1000 - Bela Vista, São Paulo - SP, 01310-100, Brazil",
		"address_components": [
			{"long_name": "1000", "short_name": "1000", "types": ["street_number"]},
			{"long_name": "Bela Vista", "short_name": "Bela Vista", "types": ["sublocality_level_1", "sublocality", "political"]},
			{"long_name": "São Paulo", "short_name": "São Paulo", "types": ["administrative_area_level_2", "political"]},
			{"long_name": "São Paulo", "short_name": "SP", "types": ["administrative_area_level_1", "political"]},
			{"long_name": "Brazil", "short_name": "BR", "types": ["country", "political"]},
			{"long_name": "01310-100", "short_name": "01310-100", "types": ["postal_code"]}
		]
	}]
}`

func TestGeocode_Rooftop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Av. Paulista, 1000, São Paulo", r.URL.Query().Get("address"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "pt-BR", r.URL.Query().Get("language"))
		_, _ = io.WriteString(w, paulistaResponse)
	}))
	defer srv.Close()

	g := newTestClient(t, srv, WithLanguage("pt-BR"))
	result, err := g.Geocode(context.Background(), "Av. Paulista, 1000, São Paulo")
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.InDelta(t, -23.5613, result.Latitude, 0.0001)
	assert.InDelta(t, -46.6565, result.Longitude, 0.0001)
	assert.Equal(t, "rooftop", result.Quality)
	assert.Equal(t, "Bela Vista", result.Components.District())
	assert.Equal(t, "São Paulo", result.Components.City)
	assert.Equal(t, "SP", result.Components.StateCode)
	assert.Equal(t, "BR", result.Components.CountryCode)
	assert.Equal(t, "01310-100", result.Components.PostalCode)
}

func TestGeocode_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))
	defer srv.Close()

	result, err := newTestClient(t, srv).Geocode(context.Background(), "nowhere at all")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocode_EmptyAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Geocode(context.Background(), "   ")
	assert.Error(t, err)
}

func TestGeocode_RequestDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status": "REQUEST_DENIED", "error_message": "The provided API key is invalid."}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Geocode(context.Background(), "Rua A, 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_DENIED")
	assert.False(t, resilience.IsTransient(err))
}

func TestGeocode_OverQueryLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status": "OVER_QUERY_LIMIT"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Geocode(context.Background(), "Rua A, 1")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGeocode_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Geocode(context.Background(), "Rua A, 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.True(t, resilience.IsTransient(err))
}

func TestGeocode_NoAPIKey(t *testing.T) {
	g := NewClient("")
	_, err := g.Geocode(context.Background(), "Rua A, 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key not configured")
}

func TestReverse_UsesLatLng(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "-23.561300,-46.656500", r.URL.Query().Get("latlng"))
		assert.Empty(t, r.URL.Query().Get("address"))
		_, _ = io.WriteString(w, paulistaResponse)
	}))
	defer srv.Close()

	result, err := newTestClient(t, srv).Reverse(context.Background(), -23.5613, -46.6565)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Contains(t, result.FormattedAddress, "Av. Paulista")
}

func TestReverse_OutOfRange(t *testing.T) {
	_, err := NewClient("k").Reverse(context.Background(), 91, 0)
	assert.Error(t, err)
}

func TestGoogleLocationTypeToQuality(t *testing.T) {
	tests := map[string]string{
		"ROOFTOP":            "rooftop",
		"RANGE_INTERPOLATED": "range",
		"GEOMETRIC_CENTER":   "centroid",
		"APPROXIMATE":        "approximate",
		"":                   "approximate",
	}
	for in, want := range tests {
		assert.Equal(t, want, googleLocationTypeToQuality(in), in)
	}
}

func TestParseComponents_NeighborhoodWithoutSublocality(t *testing.T) {
	c := parseComponents([]googleComponent{
		{LongName: "Pinheiros", Types: []string{"neighborhood", "political"}},
		{LongName: "São Paulo", Types: []string{"locality", "political"}},
	})
	assert.Equal(t, "Pinheiros", c.District())
	assert.Equal(t, "São Paulo", c.City)
}
