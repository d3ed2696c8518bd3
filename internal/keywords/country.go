// Package keywords maps a country to its locale and to the localized search
// phrases used for each store category.
package keywords

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Country is a normalized ISO-3166 alpha-2 code. Resolve it once at the
// boundary and pass the code around instead of free-text names.
type Country string

const (
	Brazil       Country = "BR"
	Portugal     Country = "PT"
	Argentina    Country = "AR"
	Mexico       Country = "MX"
	Chile        Country = "CL"
	Colombia     Country = "CO"
	Spain        Country = "ES"
	UnitedStates Country = "US"

	// FallbackCode is used when a country name cannot be resolved.
	FallbackCode = Brazil
)

const fallbackLabel = "fallback"

// Locale is the provider language/region pair for a country.
type Locale struct {
	Language string `json:"language"`
	Region   string `json:"region"`
}

// aliases maps folded country names and codes to a Country.
var aliases = map[string]Country{
	"br": Brazil, "bra": Brazil, "brasil": Brazil, "brazil": Brazil,
	"pt": Portugal, "prt": Portugal, "portugal": Portugal,
	"ar": Argentina, "arg": Argentina, "argentina": Argentina,
	"mx": Mexico, "mex": Mexico, "mexico": Mexico,
	"cl": Chile, "chl": Chile, "chile": Chile,
	"co": Colombia, "col": Colombia, "colombia": Colombia,
	"es": Spain, "esp": Spain, "espana": Spain, "spain": Spain, "espanha": Spain,
	"us": UnitedStates, "usa": UnitedStates, "united states": UnitedStates,
	"estados unidos": UnitedStates, "eua": UnitedStates,
}

// Resolution is the outcome of resolving a free-text country.
type Resolution struct {
	Country  Country
	Fallback bool
}

// String describes the resolution for logs.
func (r Resolution) String() string {
	if r.Fallback {
		return string(r.Country) + " (" + fallbackLabel + ")"
	}
	return string(r.Country)
}

// Resolve normalizes a country name or code. Unrecognized or empty input
// resolves to the explicit fallback entry with Fallback set.
func Resolve(name string) Resolution {
	key := Fold(name)
	if c, ok := aliases[key]; ok {
		return Resolution{Country: c}
	}
	return Resolution{Country: FallbackCode, Fallback: true}
}

// ErrUnknownCountry rejects a country filter that names no known country.
var ErrUnknownCountry = eris.New("keywords: unknown country")

// ResolveFilter resolves a country used as a filter. Empty input means no
// filter and returns "". Input that would only reach the fallback entry is
// an ErrUnknownCountry instead of silently filtering on the fallback.
func ResolveFilter(name string) (Country, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	r := Resolve(name)
	if r.Fallback {
		return "", eris.Wrapf(ErrUnknownCountry, "%q", name)
	}
	return r.Country, nil
}

// Known reports whether c has a keyword table entry.
func Known(c Country) bool {
	_, ok := table[c]
	return ok
}

// LocaleFor returns the provider locale for c, using the fallback entry for
// unknown codes.
func LocaleFor(c Country) Locale {
	return entryFor(c).locale
}

// Fold lowercases s, trims it, and strips diacritics so that "São Paulo"
// and "sao paulo" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
