package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/storedir/internal/config"
	"github.com/sells-group/storedir/internal/geo"
	"github.com/sells-group/storedir/internal/metrics"
	"github.com/sells-group/storedir/internal/model"
	"github.com/sells-group/storedir/internal/placesearch"
	"github.com/sells-group/storedir/internal/resilience"
	"github.com/sells-group/storedir/pkg/foursquare"
	"github.com/sells-group/storedir/pkg/geocode"
)

const backupProvider = "foursquare"

// BackupConfig tunes the secondary provider.
type BackupConfig struct {
	Query string
	Limit int
	// SmallYield applies to zones under LargeRadiusM, LargeYield to the rest.
	SmallYield   int
	LargeYield   int
	LargeRadiusM float64
	DedupeM      float64
}

// DefaultBackupConfig returns the stock thresholds: backup fires below 10
// primary results in zones under 5 km and below 45 in larger ones.
func DefaultBackupConfig() BackupConfig {
	return BackupConfig{
		Query:        "store",
		Limit:        30,
		SmallYield:   10,
		LargeYield:   45,
		LargeRadiusM: 5000,
		DedupeM:      50,
	}
}

// BackupConfigFrom reads the discovery section, keeping defaults for unset values.
func BackupConfigFrom(c config.DiscoveryConfig) BackupConfig {
	cfg := DefaultBackupConfig()
	if c.BackupQuery != "" {
		cfg.Query = c.BackupQuery
	}
	if c.BackupLimit > 0 {
		cfg.Limit = c.BackupLimit
	}
	if c.BackupSmallYield > 0 {
		cfg.SmallYield = c.BackupSmallYield
	}
	if c.BackupLargeYield > 0 {
		cfg.LargeYield = c.BackupLargeYield
	}
	if c.BackupDedupeMeters > 0 {
		cfg.DedupeM = c.BackupDedupeMeters
	}
	return cfg
}

// BackupResult is what the secondary provider added for one zone.
type BackupResult struct {
	Stores       []model.Store
	Found        int
	Calls        int
	GeocodeCalls int
}

// BackupOption configures a Backup.
type BackupOption func(*Backup)

// WithReverseGeocoder fills missing addresses from coordinates.
func WithReverseGeocoder(g geocode.Client) BackupOption {
	return func(b *Backup) { b.geocoder = g }
}

// WithBreaker guards the provider with a circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) BackupOption {
	return func(b *Backup) { b.breaker = cb }
}

// WithBackupRetry sets the retry policy.
func WithBackupRetry(cfg resilience.RetryConfig) BackupOption {
	return func(b *Backup) { b.retry = cfg }
}

// WithBackupRateLimit caps provider calls per second.
func WithBackupRateLimit(rps float64) BackupOption {
	return func(b *Backup) {
		if rps > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// Backup searches the secondary provider when the primary yield is thin.
type Backup struct {
	client   foursquare.Client
	geocoder geocode.Client
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	limiter  *rate.Limiter
	cfg      BackupConfig
}

// NewBackup creates a Backup over client.
func NewBackup(client foursquare.Client, cfg BackupConfig, opts ...BackupOption) *Backup {
	b := &Backup{
		client:  client,
		breaker: resilience.NewCircuitBreaker(backupProvider, resilience.DefaultCircuitBreakerConfig()),
		retry:   resilience.DefaultRetryConfig(),
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		cfg:     cfg,
	}
	for _, o := range opts {
		o(b)
	}
	b.retry.OnRetry = resilience.RetryLogger(backupProvider, "search")
	return b
}

// Threshold returns the primary yield below which a zone of radiusM gets a
// backup search.
func (b *Backup) Threshold(radiusM float64) int {
	if radiusM < b.cfg.LargeRadiusM {
		return b.cfg.SmallYield
	}
	return b.cfg.LargeYield
}

// Needed reports whether a zone with the given primary yield needs backup.
func (b *Backup) Needed(primaryYield int, radiusM float64) bool {
	return primaryYield < b.Threshold(radiusM)
}

// BackupRequest is the input of one backup search.
type BackupRequest struct {
	Zone Zone
	// Existing are stores this run already holds.
	Existing []model.Store
	// Inventory supplies stored stores for deduplication and may be nil.
	Inventory Inventory
	// Room caps how many stores are returned. Negative is unlimited.
	Room int
}

// Search queries the secondary provider around the zone and returns the
// places that duplicate neither the run nor the stored inventory. It stops
// accepting places, and reverse geocoding them, once Room is used up.
func (b *Backup) Search(ctx context.Context, br BackupRequest) (*BackupResult, error) {
	res := &BackupResult{}
	if br.Room == 0 {
		return res, nil
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return res, eris.Wrap(err, "discovery: backup rate limit wait")
	}

	req := foursquare.SearchRequest{
		Query:   b.cfg.Query,
		Lat:     br.Zone.Center.Lat,
		Lng:     br.Zone.Center.Lng,
		RadiusM: int(br.Zone.RadiusM),
		Limit:   b.cfg.Limit,
	}
	places, err := resilience.ExecuteVal(ctx, b.breaker, func(ctx context.Context) ([]foursquare.Place, error) {
		return resilience.DoVal(ctx, b.retry, func(ctx context.Context) ([]foursquare.Place, error) {
			start := time.Now()
			p, err := b.client.Search(ctx, req)
			res.Calls++
			metrics.ProviderCallsTotal.WithLabelValues(backupProvider, metrics.Outcome(err)).Inc()
			metrics.ProviderDurationMs.WithLabelValues(backupProvider).Observe(float64(time.Since(start).Milliseconds()))
			return p, err
		})
	})
	if err != nil {
		return res, eris.Wrap(err, "discovery: backup search")
	}
	res.Found = len(places)

	candidates := make([]model.Store, 0, len(places))
	for _, p := range places {
		if !p.HasCoordinates() || strings.TrimSpace(p.Name) == "" {
			continue
		}
		candidates = append(candidates, b.toStore(p))
	}

	seen := append([]model.Store(nil), br.Existing...)
	var stored map[string]bool
	if br.Inventory != nil && len(candidates) > 0 {
		seen, stored = b.inventory(ctx, br, candidates, seen)
	}

	for _, st := range candidates {
		if br.Room > 0 && len(res.Stores) >= br.Room {
			break
		}
		if stored[nameKey(st.Name)] || isDuplicateOfAny(st, seen, b.cfg.DedupeM) {
			continue
		}
		if st.Address == "" {
			res.GeocodeCalls += b.fillAddress(ctx, &st)
		}
		seen = append(seen, st)
		res.Stores = append(res.Stores, st)
	}
	return res, nil
}

// inventory adds stored stores near the zone to seen and returns the
// candidate names already stored anywhere. Lookup failures are logged and
// leave the run-local checks in place.
func (b *Backup) inventory(ctx context.Context, br BackupRequest, candidates, seen []model.Store) ([]model.Store, map[string]bool) {
	log := zap.L().With(zap.String("component", "discovery.backup"), zap.String("zone", br.Zone.Label))

	near, err := br.Inventory.StoresNear(ctx, br.Zone.Center, br.Zone.RadiusM)
	if err != nil {
		log.Warn("discovery: inventory lookup failed", zap.Error(err))
	}
	seen = append(seen, near...)

	names := make([]string, 0, len(candidates))
	for _, st := range candidates {
		names = append(names, nameKey(st.Name))
	}
	stored, err := br.Inventory.StoreNamesExist(ctx, names)
	if err != nil {
		log.Warn("discovery: inventory name lookup failed", zap.Error(err))
	}
	return seen, stored
}

// nameKey is the case-insensitive form of a store name used for
// inventory-wide name matching.
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (b *Backup) toStore(p foursquare.Place) model.Store {
	cat, detection := placesearch.Classify(p.Name, p.CategoryNames())
	return model.Store{
		Name:              strings.TrimSpace(p.Name),
		Address:           p.Location.FormattedAddress,
		Phone:             p.Tel,
		Website:           p.Website,
		Latitude:          p.Geocodes.Main.Latitude,
		Longitude:         p.Geocodes.Main.Longitude,
		Category:          cat,
		CategoryDetection: detection,
		Source:            model.SourceFoursquare,
	}
}

// fillAddress reverse geocodes st and returns the number of geocoder calls.
func (b *Backup) fillAddress(ctx context.Context, st *model.Store) int {
	if b.geocoder == nil {
		return 0
	}
	r, err := b.geocoder.Reverse(ctx, st.Latitude, st.Longitude)
	if err != nil {
		zap.L().Debug("discovery: reverse geocode failed", zap.String("name", st.Name), zap.Error(err))
		return 1
	}
	if r.Matched {
		st.Address = r.FormattedAddress
	}
	return 1
}

// IsDuplicate reports whether a and b are the same store: equal names
// ignoring case, or closer than thresholdM meters.
func IsDuplicate(a, b model.Store, thresholdM float64) bool {
	if strings.EqualFold(strings.TrimSpace(a.Name), strings.TrimSpace(b.Name)) {
		return true
	}
	if !hasCoordinates(a) || !hasCoordinates(b) {
		return false
	}
	return geo.DistanceM(a.Latitude, a.Longitude, b.Latitude, b.Longitude) < thresholdM
}

func isDuplicateOfAny(st model.Store, others []model.Store, thresholdM float64) bool {
	for _, o := range others {
		if IsDuplicate(st, o, thresholdM) {
			return true
		}
	}
	return false
}

func hasCoordinates(s model.Store) bool {
	return s.Latitude != 0 || s.Longitude != 0
}
