package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storedir/internal/resilience"
)

func TestTextSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/places:searchText", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "places.id")
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "nextPageToken")

		var body TextSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "loja de tintas", body.TextQuery)
		assert.Equal(t, "pt-BR", body.LanguageCode)
		assert.Equal(t, "BR", body.RegionCode)
		assert.Equal(t, 10, body.PageSize)
		require.NotNil(t, body.LocationBias)
		assert.InDelta(t, -23.56, body.LocationBias.Circle.Center.Latitude, 0.001)
		assert.InDelta(t, 1500, body.LocationBias.Circle.Radius, 0.001)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SearchResponse{
			Places: []Place{
				{
					ID:                  "ChIJ-tintas",
					DisplayName:         DisplayName{Text: "Tintas Suvinil"},
					FormattedAddress:    "Rua Augusta, 100 - Consolação, São Paulo - SP",
					NationalPhoneNumber: "(11) 3333-4444",
					Location:            &LatLng{Latitude: -23.55, Longitude: -46.65},
					BusinessStatus:      "OPERATIONAL",
					Types:               []string{"store", "home_improvement_store"},
				},
			},
			NextPageToken: "page-2",
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.TextSearch(context.Background(), TextSearchRequest{
		TextQuery:    "loja de tintas",
		LanguageCode: "pt-BR",
		RegionCode:   "BR",
		PageSize:     10,
		LocationBias: &LocationArea{Circle: Circle{
			Center: LatLng{Latitude: -23.56, Longitude: -46.65},
			Radius: 1500,
		}},
	})

	require.NoError(t, err)
	require.Len(t, resp.Places, 1)
	assert.Equal(t, "ChIJ-tintas", resp.Places[0].ID)
	assert.Equal(t, "Tintas Suvinil", resp.Places[0].DisplayName.Text)
	assert.Equal(t, "(11) 3333-4444", resp.Places[0].Phone())
	assert.False(t, resp.Places[0].ClosedPermanently())
	assert.Equal(t, "page-2", resp.NextPageToken)
}

func TestTextSearch_PageSizeCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body TextSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, MaxPageSize, body.PageSize)
		_ = json.NewEncoder(w).Encode(SearchResponse{})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "x", PageSize: 666})
	require.NoError(t, err)
}

func TestTextSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SearchResponse{Places: nil})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "nada"})

	require.NoError(t, err)
	assert.Empty(t, resp.Places)
	assert.Empty(t, resp.NextPageToken)
}

func TestTextSearch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": "invalid API key"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	resp, err := client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "test"})

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "403")
	assert.False(t, resilience.IsTransient(err))
}

func TestTextSearch_QuotaExceededIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "quota exceeded"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "test"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.True(t, resilience.IsTransient(err))
}

func TestTextSearch_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"places": [`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "test"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestTextSearch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.TextSearch(ctx, TextSearchRequest{TextQuery: "test"})

	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestNearbySearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/places:searchNearby", r.URL.Path)

		var body NearbySearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"hardware_store"}, body.IncludedTypes)
		assert.Equal(t, MaxPageSize, body.MaxResultCount)
		assert.InDelta(t, 800, body.LocationRestriction.Circle.Radius, 0.001)

		_ = json.NewEncoder(w).Encode(SearchResponse{
			Places: []Place{{ID: "ChIJ-fer", DisplayName: DisplayName{Text: "Ferragens Silva"}, BusinessStatus: "CLOSED_PERMANENTLY"}},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.NearbySearch(context.Background(), NearbySearchRequest{
		IncludedTypes:  []string{"hardware_store"},
		MaxResultCount: 50,
		LocationRestriction: LocationArea{Circle: Circle{
			Center: LatLng{Latitude: -23.5, Longitude: -46.6},
			Radius: 800,
		}},
	})

	require.NoError(t, err)
	require.Len(t, resp.Places, 1)
	assert.True(t, resp.Places[0].ClosedPermanently())
}

func TestPlace_PhoneFallback(t *testing.T) {
	p := Place{InternationalPhoneNumber: "+55 11 3333-4444"}
	assert.Equal(t, "+55 11 3333-4444", p.Phone())
}
