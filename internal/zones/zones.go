// Package zones holds the fixed legacy search regions, embedded as YAML and
// parsed once.
package zones

import (
	_ "embed"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/storedir/internal/keywords"
)

//go:embed legacy.yaml
var legacyYAML []byte

// Zone is a named circular search region.
type Zone struct {
	Name    string  `yaml:"name" json:"name"`
	Country string  `yaml:"country" json:"country"`
	State   string  `yaml:"state" json:"state"`
	City    string  `yaml:"city" json:"city"`
	Lat     float64 `yaml:"lat" json:"lat"`
	Lng     float64 `yaml:"lng" json:"lng"`
	RadiusM float64 `yaml:"radius_m" json:"radius_m"`
}

// Filter narrows a zone table. Empty fields match everything; matching is
// accent and case insensitive.
type Filter struct {
	Country string
	State   string
	City    string
}

// Table is an immutable list of zones.
type Table struct {
	zones []Zone
}

// Parse decodes a zone table from YAML.
func Parse(data []byte) (*Table, error) {
	var doc struct {
		Zones []Zone `yaml:"zones"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "zones: parse")
	}
	for i, z := range doc.Zones {
		if z.Name == "" {
			return nil, eris.Errorf("zones: zone %d has no name", i)
		}
		if z.RadiusM <= 0 {
			return nil, eris.Errorf("zones: zone %q has no radius", z.Name)
		}
	}
	return &Table{zones: doc.Zones}, nil
}

var loadLegacy = sync.OnceValues(func() (*Table, error) {
	return Parse(legacyYAML)
})

// Legacy returns the embedded legacy table.
func Legacy() (*Table, error) {
	return loadLegacy()
}

// Len returns the number of zones.
func (t *Table) Len() int { return len(t.zones) }

// All returns a copy of every zone.
func (t *Table) All() []Zone {
	return append([]Zone(nil), t.zones...)
}

// Match returns a copy of the zones that pass f, in table order. A country
// that resolves to no known code matches nothing.
func (t *Table) Match(f Filter) []Zone {
	country, err := keywords.ResolveFilter(f.Country)
	if err != nil {
		return nil
	}
	state := keywords.Fold(f.State)
	city := keywords.Fold(f.City)

	var out []Zone
	for _, z := range t.zones {
		if country != "" && z.Country != string(country) {
			continue
		}
		if state != "" && keywords.Fold(z.State) != state {
			continue
		}
		if city != "" && keywords.Fold(z.City) != city {
			continue
		}
		out = append(out, z)
	}
	return out
}
