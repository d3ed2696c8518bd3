// Package cost prices provider usage for the discovery audit log.
package cost

import (
	"math"

	"github.com/sells-group/storedir/internal/config"
)

// PlacesTextSearchUSD is the list price of one Places text search call.
const PlacesTextSearchUSD = 0.032

// Rates holds per-call provider pricing in USD.
type Rates struct {
	PlacesPerCall     float64 `yaml:"places_per_call" mapstructure:"places_per_call"`
	FoursquarePerCall float64 `yaml:"foursquare_per_call" mapstructure:"foursquare_per_call"`
	GeocodePerCall    float64 `yaml:"geocode_per_call" mapstructure:"geocode_per_call"`
}

// Usage counts billable calls per provider.
type Usage struct {
	PlacesCalls     int
	FoursquareCalls int
	GeocodeCalls    int
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Zero rates fall
// back to DefaultRates.
func NewCalculator(rates Rates) *Calculator {
	def := DefaultRates()
	if rates.PlacesPerCall <= 0 {
		rates.PlacesPerCall = def.PlacesPerCall
	}
	if rates.FoursquarePerCall < 0 {
		rates.FoursquarePerCall = def.FoursquarePerCall
	}
	if rates.GeocodePerCall < 0 {
		rates.GeocodePerCall = def.GeocodePerCall
	}
	return &Calculator{rates: rates}
}

// FromConfig builds a Calculator from the pricing section.
func FromConfig(p config.PricingConfig) *Calculator {
	return NewCalculator(Rates{
		PlacesPerCall:     p.PlacesPerCall,
		FoursquarePerCall: p.FoursquarePerCall,
		GeocodePerCall:    p.GeocodePerCall,
	})
}

// Places returns the cost of n Places calls.
func (c *Calculator) Places(n int) float64 {
	return round4(float64(n) * c.rates.PlacesPerCall)
}

// Total returns the cost of u, rounded to 4 decimals like the audit column.
func (c *Calculator) Total(u Usage) float64 {
	return round4(float64(u.PlacesCalls)*c.rates.PlacesPerCall +
		float64(u.FoursquareCalls)*c.rates.FoursquarePerCall +
		float64(u.GeocodeCalls)*c.rates.GeocodePerCall)
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		PlacesPerCall:     PlacesTextSearchUSD,
		FoursquarePerCall: 0.015,
		GeocodePerCall:    0.005,
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
