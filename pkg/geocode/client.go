// Package geocode resolves addresses to coordinates and back using the Google
// Geocoding API, with an optional shared cache.
package geocode

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Client geocodes addresses and coordinates.
type Client interface {
	// Geocode resolves a free-form address. An address Google cannot place
	// returns Matched=false and no error.
	Geocode(ctx context.Context, address string) (*Result, error)

	// Reverse resolves a coordinate to the nearest address.
	Reverse(ctx context.Context, lat, lng float64) (*Result, error)
}

// Result holds the geocoding output.
type Result struct {
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	FormattedAddress string     `json:"formatted_address"`
	Quality          string     `json:"quality"` // "rooftop", "range", "centroid", "approximate"
	Matched          bool       `json:"matched"`
	Components       Components `json:"components"`
}

// Components are the address parts the directory cares about.
type Components struct {
	Neighborhood string `json:"neighborhood,omitempty"`
	Sublocality  string `json:"sublocality,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	StateCode    string `json:"state_code,omitempty"`
	Country      string `json:"country,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
}

// District returns the most specific intra-city area: sublocality, then neighborhood.
func (c Components) District() string {
	if c.Sublocality != "" {
		return c.Sublocality
	}
	return c.Neighborhood
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL overrides the Geocoding API endpoint.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache enables result caching.
func WithCache(c Cache) Option {
	return func(g *geocoder) {
		g.cache = c
	}
}

// WithLanguage sets the language results are returned in.
func WithLanguage(lang string) Option {
	return func(g *geocoder) {
		g.language = lang
	}
}

type geocoder struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
}

// NewClient creates a Google geocoding Client.
func NewClient(apiKey string, opts ...Option) Client {
	g := &geocoder{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *geocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	key := addressKey(address)
	if key == "" {
		return nil, eris.New("geocode: empty address")
	}
	return g.lookup(ctx, key, "address", address)
}

func (g *geocoder) Reverse(ctx context.Context, lat, lng float64) (*Result, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, eris.Errorf("geocode: coordinates out of range (%f, %f)", lat, lng)
	}
	latlng := strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lng, 'f', 6, 64)
	return g.lookup(ctx, coordKey(lat, lng), "latlng", latlng)
}

func (g *geocoder) lookup(ctx context.Context, key, param, value string) (*Result, error) {
	if g.cache != nil {
		if cached, ok := g.cache.Get(ctx, key); ok {
			zap.L().Debug("geocode: cache hit", zap.String("param", param), zap.Bool("matched", cached.Matched))
			return cached, nil
		}
	}

	result, err := g.callGoogle(ctx, param, value)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		g.cache.Set(ctx, key, result)
	}
	return result, nil
}
