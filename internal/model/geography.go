package model

import "time"

// Country is a top-level region with an ISO-3166 alpha-2 code.
type Country struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// State belongs to a country.
type State struct {
	ID        int64  `json:"id"`
	CountryID int64  `json:"country_id"`
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"`
}

// City belongs to a state and aggregates neighborhoods.
type City struct {
	ID        int64   `json:"id"`
	StateID   int64   `json:"state_id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Neighborhood is the unit of scoped discovery. ApurationCount is the number
// of completed scoped searches that included it.
type Neighborhood struct {
	ID              int64      `json:"id"`
	CityID          int64      `json:"city_id"`
	CityName        string     `json:"city_name,omitempty"`
	StateName       string     `json:"state_name,omitempty"`
	CountryCode     string     `json:"country_code,omitempty"`
	Name            string     `json:"name"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	RadiusM         float64    `json:"radius_m"`
	ApurationCount  int        `json:"apuration_count"`
	LastApurationAt *time.Time `json:"last_apuration_at,omitempty"`
}

// StateSummary aggregates neighborhood search progress for one state.
type StateSummary struct {
	State
	CountryCode          string `json:"country_code"`
	Neighborhoods        int    `json:"neighborhoods"`
	PendingNeighborhoods int    `json:"pending_neighborhoods"`
	MinApurationCount    int    `json:"min_apuration_count"`
}
