// Package discovery searches zones for construction-material stores,
// backs thin zones with a secondary provider, and records each invocation
// in an audit log.
package discovery

import (
	"github.com/sells-group/storedir/internal/geo"
	"github.com/sells-group/storedir/internal/keywords"
	"github.com/sells-group/storedir/internal/model"
)

// DefaultZoneLimit is the per-zone request size when a zone carries no
// apuration limit of its own.
const DefaultZoneLimit = 20

// Zone is one circular search area.
type Zone struct {
	Label   string    `json:"label"`
	Center  geo.Point `json:"center"`
	RadiusM float64   `json:"radius_m"`
	// Limit is the zone's own result ceiling. Zero means DefaultZoneLimit.
	Limit int `json:"limit,omitempty"`
	// NeighborhoodID is zero for legacy zones.
	NeighborhoodID int64 `json:"neighborhood_id,omitempty"`
	// Country overrides the run's country when set.
	Country keywords.Country `json:"country,omitempty"`
}

// ZoneReport describes what happened in one zone.
type ZoneReport struct {
	Label          string   `json:"label"`
	NeighborhoodID int64    `json:"neighborhood_id,omitempty"`
	Requested      int      `json:"requested"`
	Found          int      `json:"found"`
	New            int      `json:"new"`
	BackupFound    int      `json:"backup_found"`
	BackupNew      int      `json:"backup_new"`
	APICalls       int      `json:"api_calls"`
	BackupCalls    int      `json:"backup_calls"`
	FailedKeywords int      `json:"failed_keywords,omitempty"`
	// TotalFailure is set when the zone produced no places at all.
	TotalFailure bool `json:"total_failure,omitempty"`
	// CallsFailed is set when every search call for the zone errored. A
	// zone whose calls answered with nothing is empty, not failed.
	CallsFailed bool     `json:"calls_failed,omitempty"`
	Skipped     string   `json:"skipped,omitempty"`
	Errors      []string `json:"errors,omitempty"`

	stores []model.Store
}

// Completed reports whether the zone was searched and at least one keyword
// answered, even with zero places.
func (z ZoneReport) Completed() bool {
	return z.Skipped == "" && !z.CallsFailed
}

// Stats are the counters of one discovery invocation.
type Stats struct {
	StoresFound      int     `json:"storesFound"`
	StoresAdded      int     `json:"storesAdded"`
	StoresSkipped    int     `json:"storesSkipped"`
	StoresFailed     int     `json:"storesFailed"`
	APICalls         int     `json:"apiCalls"`
	BackupCalls      int     `json:"backupCalls"`
	ZonesSearched    int     `json:"zonesSearched"`
	ZonesTotal       int     `json:"zonesTotal"`
	ZonesRemaining   int     `json:"zonesRemaining"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`
	ExecutionMS      int64   `json:"executionMs"`
}
