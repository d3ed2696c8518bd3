package discovery

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/storedir/internal/cost"
	"github.com/sells-group/storedir/internal/geo"
	"github.com/sells-group/storedir/internal/keywords"
	"github.com/sells-group/storedir/internal/model"
	"github.com/sells-group/storedir/internal/placesearch"
)

// DefaultZoneDelay paces zones.
const DefaultZoneDelay = 100 * time.Millisecond

// Searcher is the primary keyword search.
type Searcher interface {
	Search(ctx context.Context, req placesearch.Request) (*placesearch.Result, error)
}

// Inventory looks up stores already in the directory.
type Inventory interface {
	StoresNear(ctx context.Context, center geo.Point, radiusM float64) ([]model.Store, error)
	// StoreNamesExist returns the subset of lowercased names that match a
	// stored store name, ignoring case.
	StoreNamesExist(ctx context.Context, names []string) (map[string]bool, error)
}

// IterateRequest is the input of one pass over a zone list.
type IterateRequest struct {
	// MaxResults caps new stores across all zones. Zero is unlimited.
	MaxResults int
	// KnownIDs are place ids already stored; they are never returned.
	KnownIDs   map[string]bool
	Zones      []Zone
	Country    keywords.Country
	Categories []model.Category
	// MaxZones caps how many zones are searched. Zero is unlimited.
	MaxZones int
	Budget   *Budget
	// Lease guards neighborhood zones. Nil takes no lease.
	Lease Lease
}

// IterateResult is the output of Iterate.
type IterateResult struct {
	Stores           []model.Store `json:"-"`
	Zones            []ZoneReport  `json:"zones"`
	ZonesSearched    int           `json:"zones_searched"`
	ZonesTotal       int           `json:"zones_total"`
	ZonesRemaining   int           `json:"zones_remaining"`
	APICalls         int           `json:"api_calls"`
	BackupCalls      int           `json:"backup_calls"`
	GeocodeCalls     int           `json:"geocode_calls"`
	HitZoneCeiling   bool          `json:"hit_zone_ceiling"`
	HitResultCap     bool          `json:"hit_result_cap"`
	BudgetExceeded   bool          `json:"budget_exceeded"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
	Errors           []string      `json:"errors,omitempty"`
	// Leased lists neighborhoods whose lease this pass took.
	Leased []int64 `json:"-"`
}

// MoreAvailable reports whether zones were left unsearched.
func (r *IterateResult) MoreAvailable() bool {
	return r.ZonesRemaining > 0 && (r.HitZoneCeiling || r.BudgetExceeded)
}

// IteratorOption configures an Iterator.
type IteratorOption func(*Iterator)

// WithBackup enables the secondary provider. inv supplies stored stores for
// deduplication and may be nil.
func WithBackup(b *Backup, inv Inventory) IteratorOption {
	return func(it *Iterator) {
		it.backup = b
		it.inventory = inv
	}
}

// WithZoneDelay sets the pacing between zones.
func WithZoneDelay(d time.Duration) IteratorOption {
	return func(it *Iterator) {
		if d > 0 {
			it.pacer = rate.NewLimiter(rate.Every(d), 1)
		} else {
			it.pacer = rate.NewLimiter(rate.Inf, 1)
		}
	}
}

// WithCost sets the calculator for the estimated cost.
func WithCost(c *cost.Calculator) IteratorOption {
	return func(it *Iterator) { it.cost = c }
}

// Iterator walks a zone list with the primary search and optional backup.
type Iterator struct {
	search    Searcher
	backup    *Backup
	inventory Inventory
	pacer     *rate.Limiter
	cost      *cost.Calculator
}

// NewIterator creates an Iterator over search.
func NewIterator(search Searcher, opts ...IteratorOption) *Iterator {
	it := &Iterator{
		search: search,
		pacer:  rate.NewLimiter(rate.Every(DefaultZoneDelay), 1),
		cost:   cost.NewCalculator(cost.DefaultRates()),
	}
	for _, o := range opts {
		o(it)
	}
	return it
}

// Iterate searches zones in order. Before each zone it stops when the result
// cap, the zone ceiling or the budget is reached. The returned result is
// partial but valid when the error is non-nil.
func (it *Iterator) Iterate(ctx context.Context, req IterateRequest) (*IterateResult, error) {
	log := zap.L().With(zap.String("component", "discovery.iterator"))

	known := make(map[string]bool, len(req.KnownIDs))
	for id := range req.KnownIDs {
		known[id] = true
	}

	res := &IterateResult{ZonesTotal: len(req.Zones)}
	processed := 0
	var runErr error

	for _, zone := range req.Zones {
		if req.MaxResults > 0 && len(res.Stores) >= req.MaxResults {
			res.HitResultCap = true
			break
		}
		if req.MaxZones > 0 && res.ZonesSearched >= req.MaxZones {
			res.HitZoneCeiling = true
			break
		}
		if req.Budget.Exceeded() {
			res.BudgetExceeded = true
			break
		}
		if err := it.pacer.Wait(ctx); err != nil {
			runErr = eris.Wrap(err, "discovery: zone pacing")
			break
		}
		processed++

		if zone.NeighborhoodID != 0 && req.Lease != nil {
			ok, err := req.Lease.Acquire(ctx, zone.NeighborhoodID)
			switch {
			case err != nil:
				log.Warn("discovery: lease unavailable, continuing without it",
					zap.Int64("neighborhood_id", zone.NeighborhoodID), zap.Error(err))
			case !ok:
				res.Zones = append(res.Zones, ZoneReport{
					Label:          zone.Label,
					NeighborhoodID: zone.NeighborhoodID,
					Skipped:        "lease held by another run",
				})
				continue
			default:
				res.Leased = append(res.Leased, zone.NeighborhoodID)
			}
		}

		report := it.searchZone(ctx, zone, req, known, res)
		res.ZonesSearched++
		res.Zones = append(res.Zones, report)
		res.Errors = append(res.Errors, report.Errors...)

		log.Debug("discovery: zone searched",
			zap.String("zone", zone.Label),
			zap.Int("found", report.Found),
			zap.Int("new", report.New+report.BackupNew),
		)
	}

	res.ZonesRemaining = res.ZonesTotal - processed
	res.EstimatedCostUSD = it.cost.Total(cost.Usage{
		PlacesCalls:     res.APICalls,
		FoursquareCalls: res.BackupCalls,
		GeocodeCalls:    res.GeocodeCalls,
	})
	return res, runErr
}

// capacity returns how many more stores fit, or -1 when unlimited.
func capacity(req IterateRequest, have int) int {
	if req.MaxResults <= 0 {
		return -1
	}
	return max(req.MaxResults-have, 0)
}

func (it *Iterator) searchZone(ctx context.Context, zone Zone, req IterateRequest, known map[string]bool, res *IterateResult) ZoneReport {
	report := ZoneReport{Label: zone.Label, NeighborhoodID: zone.NeighborhoodID}

	limit := zone.Limit
	if limit <= 0 {
		limit = DefaultZoneLimit
	}
	if room := capacity(req, len(res.Stores)); room >= 0 {
		limit = min(limit, room)
	}
	report.Requested = limit

	country := req.Country
	if zone.Country != "" {
		country = zone.Country
	}

	pr, err := it.search.Search(ctx, placesearch.Request{
		Center:     zone.Center,
		RadiusM:    zone.RadiusM,
		MaxResults: limit,
		Country:    country,
		Categories: req.Categories,
	})
	if err != nil {
		report.TotalFailure = true
		report.CallsFailed = true
		report.Errors = append(report.Errors, zone.Label+": "+err.Error())
		return report
	}

	report.APICalls = pr.APICalls
	report.Found = len(pr.Stores)
	report.TotalFailure = pr.TotalFailure
	report.CallsFailed = pr.AllFailed()
	report.FailedKeywords = pr.FailedKeywords
	res.APICalls += pr.APICalls
	for _, e := range pr.Errors {
		report.Errors = append(report.Errors, zone.Label+": "+e)
	}

	for _, st := range pr.Stores {
		if room := capacity(req, len(res.Stores)); room == 0 {
			break
		}
		id := st.ExternalID()
		if id != "" {
			if known[id] {
				continue
			}
			known[id] = true
		}
		st.Neighborhood = zone.Label
		res.Stores = append(res.Stores, st)
		report.stores = append(report.stores, st)
		report.New++
	}

	if it.backup != nil && it.backup.Needed(report.Found, zone.RadiusM) && capacity(req, len(res.Stores)) != 0 {
		it.runBackup(ctx, zone, req, pr.Stores, res, &report)
	}
	return report
}

func (it *Iterator) runBackup(ctx context.Context, zone Zone, req IterateRequest, primary []model.Store, res *IterateResult, report *ZoneReport) {
	existing := make([]model.Store, 0, len(res.Stores)+len(primary))
	existing = append(existing, res.Stores...)
	existing = append(existing, primary...)

	br, err := it.backup.Search(ctx, BackupRequest{
		Zone:      zone,
		Existing:  existing,
		Inventory: it.inventory,
		Room:      capacity(req, len(res.Stores)),
	})
	if br != nil {
		report.BackupCalls = br.Calls
		report.BackupFound = br.Found
		res.BackupCalls += br.Calls
		res.GeocodeCalls += br.GeocodeCalls
	}
	if err != nil {
		zap.L().Warn("discovery: backup search failed", zap.String("zone", zone.Label), zap.Error(err))
		return
	}

	for _, st := range br.Stores {
		if room := capacity(req, len(res.Stores)); room == 0 {
			break
		}
		st.Neighborhood = zone.Label
		res.Stores = append(res.Stores, st)
		report.stores = append(report.stores, st)
		report.BackupNew++
	}
}
