// Package model holds the store directory's domain records.
package model

import "time"

// Source records where a store row came from.
type Source string

const (
	SourceUser       Source = "user"
	SourceAuto       Source = "auto"
	SourceFoursquare Source = "foursquare"
	SourceVerified   Source = "verified"
)

// Category is the kind of construction-material retailer.
type Category string

const (
	CategoryPaint    Category = "paint"
	CategoryLumber   Category = "lumber"
	CategoryPlumbing Category = "plumbing"
	CategoryHardware Category = "hardware"
	CategoryGeneral  Category = "general"
	CategoryUnknown  Category = "unknown"
)

// Categories lists every searchable category in classification order.
var Categories = []Category{
	CategoryPaint,
	CategoryLumber,
	CategoryPlumbing,
	CategoryHardware,
	CategoryGeneral,
}

// ParseCategory converts a string into a Category. Unknown names return false.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Store is the canonical store record shared by discovery and registration.
type Store struct {
	ID                int64     `json:"id,omitempty"`
	PlaceID           *string   `json:"place_id,omitempty"`
	Name              string    `json:"name"`
	Address           string    `json:"address,omitempty"`
	Phone             string    `json:"phone,omitempty"`
	Website           string    `json:"website,omitempty"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	Neighborhood      string    `json:"neighborhood,omitempty"`
	Category          Category  `json:"category"`
	CategoryDetection string    `json:"category_detection,omitempty"`
	Source            Source    `json:"source"`
	Verified          bool      `json:"verified"`
	UserID            *int64    `json:"user_id,omitempty"`
	BusinessStatus    string    `json:"business_status,omitempty"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// ExternalID returns the places-provider identifier, or "" when the store has none.
func (s Store) ExternalID() string {
	if s.PlaceID == nil {
		return ""
	}
	return *s.PlaceID
}

// StringPtr returns a pointer to s, or nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SourceCount is one row of the per-source aggregate view.
type SourceCount struct {
	Source   Source `json:"source"`
	Total    int64  `json:"total"`
	Verified int64  `json:"verified"`
}
