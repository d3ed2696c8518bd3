// Package foursquare is a client for the Foursquare Places search API, used as
// the backup provider when Google returns too few stores.
package foursquare

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/storedir/internal/resilience"
)

const defaultBaseURL = "https://api.foursquare.com/v3"

// MaxRadiusM and MaxLimit are the API's bounds for a search.
const (
	MaxRadiusM = 100000
	MaxLimit   = 50
)

// Client searches places near a point.
type Client interface {
	Search(ctx context.Context, req SearchRequest) ([]Place, error)
}

// SearchRequest is a keyword search around a point.
type SearchRequest struct {
	Query   string
	Lat     float64
	Lng     float64
	RadiusM int
	Limit   int
}

// Place is a single search result.
type Place struct {
	FsqID      string     `json:"fsq_id"`
	Name       string     `json:"name"`
	Location   Location   `json:"location"`
	Geocodes   Geocodes   `json:"geocodes"`
	Categories []Category `json:"categories,omitempty"`
	Tel        string     `json:"tel,omitempty"`
	Website    string     `json:"website,omitempty"`
	Distance   int        `json:"distance,omitempty"`
}

// Location is the postal part of a place.
type Location struct {
	Address          string `json:"address,omitempty"`
	Locality         string `json:"locality,omitempty"`
	Region           string `json:"region,omitempty"`
	Country          string `json:"country,omitempty"`
	FormattedAddress string `json:"formatted_address,omitempty"`
}

// Geocodes holds the place's coordinates.
type Geocodes struct {
	Main *Point `json:"main,omitempty"`
}

// Point is a coordinate pair.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Category is a Foursquare venue category.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// HasCoordinates reports whether the place carries a usable main geocode.
func (p Place) HasCoordinates() bool {
	return p.Geocodes.Main != nil
}

// CategoryNames returns the names of the place's categories.
func (p Place) CategoryNames() []string {
	names := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		names = append(names, c.Name)
	}
	return names
}

type searchResponse struct {
	Results []Place `json:"results"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Foursquare Places client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, sr SearchRequest) ([]Place, error) {
	radius := sr.RadiusM
	if radius > MaxRadiusM {
		radius = MaxRadiusM
	}
	limit := sr.Limit
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}

	params := url.Values{}
	params.Set("query", sr.Query)
	params.Set("ll", strconv.FormatFloat(sr.Lat, 'f', 6, 64)+","+strconv.FormatFloat(sr.Lng, 'f', 6, 64))
	if radius > 0 {
		params.Set("radius", strconv.Itoa(radius))
	}
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: create request")
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: read response")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("foursquare: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "foursquare: unmarshal response")
	}
	return result.Results, nil
}
