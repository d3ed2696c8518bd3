package discovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/storedir/internal/config"
	"github.com/sells-group/storedir/internal/geo"
	"github.com/sells-group/storedir/internal/ingest"
	"github.com/sells-group/storedir/internal/keywords"
	"github.com/sells-group/storedir/internal/metrics"
	"github.com/sells-group/storedir/internal/model"
	"github.com/sells-group/storedir/internal/zones"
)

// Messages returned with a run.
const (
	MessageComplete       = "discovery complete"
	MessageBudgetExceeded = "time budget exceeded; re-run to continue"
	MessageMoreAvailable  = "zone limit reached; more zones available"
)

// Request errors. Callers map them to a validation failure.
var (
	ErrNoZones              = eris.New("discovery: no zones match the request")
	ErrUnknownNeighborhoods = eris.New("discovery: unknown neighborhoods")
)

// ErrAllCallsFailed fails a run in which every searched zone had all of its
// provider calls error and the backup added nothing.
var ErrAllCallsFailed = eris.New("discovery: every search call failed")

// RunRequest is one discovery invocation. NeighborhoodIDs selects a scoped
// run; otherwise Country, State and City filter the zones.
type RunRequest struct {
	Country         string           `json:"country,omitempty"`
	State           string           `json:"state,omitempty"`
	City            string           `json:"city,omitempty"`
	MaxResults      int              `json:"maxResults,omitempty"`
	MaxZones        int              `json:"maxZones,omitempty"`
	Categories      []model.Category `json:"categories,omitempty"`
	UseLegacyZones  bool             `json:"useLegacyZones,omitempty"`
	NeighborhoodIDs []int64          `json:"neighborhoodIds,omitempty"`
}

// Scope classifies the request.
func (r RunRequest) Scope() model.RunScope {
	switch {
	case len(r.NeighborhoodIDs) > 0:
		return model.ScopeScoped
	case r.Country != "" || r.State != "" || r.City != "":
		return model.ScopeFiltered
	default:
		return model.ScopeGlobal
	}
}

func (r RunRequest) filters() map[string]any {
	f := map[string]any{}
	if r.Country != "" {
		f["country"] = r.Country
	}
	if r.State != "" {
		f["state"] = r.State
	}
	if r.City != "" {
		f["city"] = r.City
	}
	if r.MaxResults > 0 {
		f["maxResults"] = r.MaxResults
	}
	if r.MaxZones > 0 {
		f["maxZones"] = r.MaxZones
	}
	if len(r.Categories) > 0 {
		f["categories"] = r.Categories
	}
	if r.UseLegacyZones {
		f["useLegacyZones"] = true
	}
	if len(r.NeighborhoodIDs) > 0 {
		f["neighborhoodIds"] = r.NeighborhoodIDs
	}
	return f
}

// RunResponse is the outcome of Run.
type RunResponse struct {
	Success        bool             `json:"success"`
	Scope          model.RunScope   `json:"scope"`
	RunID          string           `json:"runId"`
	Stats          Stats            `json:"stats"`
	Zones          []ZoneReport     `json:"zones"`
	BudgetExceeded bool             `json:"budgetExceeded"`
	MoreAvailable  bool             `json:"moreAvailable"`
	Message        string           `json:"message"`
	Errors         []string         `json:"errors"`
	Failures       []ingest.Failure `json:"failures,omitempty"`
}

// RunnerConfig holds run defaults.
type RunnerConfig struct {
	TimeBudget        time.Duration
	DefaultMaxResults int
	DefaultMaxZones   int
	ZoneLimit         int
	ChunkSize         int
}

// RunnerConfigFrom reads the discovery section.
func RunnerConfigFrom(c config.DiscoveryConfig) RunnerConfig {
	return RunnerConfig{
		TimeBudget:        time.Duration(c.TimeBudgetSecs) * time.Second,
		DefaultMaxResults: c.DefaultMaxResults,
		DefaultMaxZones:   c.DefaultMaxZones,
		ZoneLimit:         c.ZoneResultLimit,
		ChunkSize:         c.InsertChunkSize,
	}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLegacyZones sets the fallback zone table.
func WithLegacyZones(t *zones.Table) RunnerOption {
	return func(r *Runner) { r.legacy = t }
}

// WithLease guards scoped runs per neighborhood.
func WithLease(l Lease) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.lease = l
		}
	}
}

// Runner resolves a request into zones, iterates them, ingests the result,
// advances apuration counters and writes the audit row.
type Runner struct {
	store    Store
	writer   ingest.Writer
	iterator *Iterator
	legacy   *zones.Table
	lease    Lease
	cfg      RunnerConfig
	now      func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(st Store, w ingest.Writer, it *Iterator, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:    st,
		writer:   w,
		iterator: it,
		lease:    NoopLease{},
		cfg:      cfg,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes one invocation. Every call writes exactly one audit row;
// on error the row is a zero-progress snapshot carrying the message.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	start := r.now()
	scope := req.Scope()
	resp := &RunResponse{
		Scope:  scope,
		RunID:  uuid.NewString(),
		Errors: []string{},
	}
	log := zap.L().With(
		zap.String("component", "discovery.runner"),
		zap.String("run_id", resp.RunID),
		zap.String("scope", string(scope)),
	)

	err := r.run(ctx, req, resp, log)
	resp.Stats.ExecutionMS = r.now().Sub(start).Milliseconds()

	rec := &model.RunRecord{
		ID:          resp.RunID,
		Scope:       scope,
		Filters:     req.filters(),
		ExecutionMS: resp.Stats.ExecutionMS,
		Status:      model.RunStatusSuccess,
	}
	if err != nil {
		rec.Status = model.RunStatusFailed
		rec.Error = err.Error()
		resp.Success = false
		resp.Message = err.Error()
		resp.Errors = append(resp.Errors, err.Error())
	} else {
		rec.StoresAdded = resp.Stats.StoresAdded
		rec.StoresSkipped = resp.Stats.StoresSkipped
		rec.APICalls = resp.Stats.APICalls
		rec.BackupCalls = resp.Stats.BackupCalls
		rec.EstimatedCostUSD = resp.Stats.EstimatedCostUSD
		rec.BudgetExceeded = resp.BudgetExceeded
	}

	// The audit row is written even when the caller has gone away.
	if rerr := r.store.RecordRun(context.WithoutCancel(ctx), rec); rerr != nil {
		log.Error("discovery: record run failed", zap.Error(rerr))
	}

	metrics.DiscoveryRunsTotal.WithLabelValues(string(scope), string(rec.Status)).Inc()
	metrics.DiscoveryDurationMs.Observe(float64(resp.Stats.ExecutionMS))
	if resp.BudgetExceeded {
		metrics.DiscoveryBudgetExceeded.Inc()
	}

	log.Info("discovery: run finished",
		zap.String("status", string(rec.Status)),
		zap.Int("stores_added", resp.Stats.StoresAdded),
		zap.Int("api_calls", resp.Stats.APICalls),
		zap.Bool("budget_exceeded", resp.BudgetExceeded),
		zap.Int64("execution_ms", resp.Stats.ExecutionMS),
	)

	return resp, err
}

func (r *Runner) run(ctx context.Context, req RunRequest, resp *RunResponse, log *zap.Logger) error {
	budget := NewBudget(r.cfg.TimeBudget)
	scope := req.Scope()

	zoneList, err := r.resolveZones(ctx, req)
	if err != nil {
		return err
	}
	if len(zoneList) == 0 {
		return ErrNoZones
	}

	known, err := r.store.KnownPlaceIDs(ctx)
	if err != nil {
		return eris.Wrap(err, "discovery: load known place ids")
	}

	ireq := IterateRequest{
		KnownIDs:   known,
		Zones:      zoneList,
		Country:    keywords.Resolve(req.Country).Country,
		Categories: req.Categories,
		Budget:     budget,
	}
	if scope == model.ScopeScoped {
		ireq.Lease = r.lease
	} else {
		ireq.MaxResults = firstPositive(req.MaxResults, r.cfg.DefaultMaxResults)
		ireq.MaxZones = firstPositive(req.MaxZones, r.cfg.DefaultMaxZones)
	}

	ires, err := r.iterator.Iterate(ctx, ireq)
	defer r.releaseLeases(ires, log)
	if err != nil {
		return err
	}
	if err := allCallsFailed(ires); err != nil {
		resp.Zones = ires.Zones
		resp.Errors = append(resp.Errors, ires.Errors...)
		return err
	}

	in := ingest.New(r.writer, r.cfg.ChunkSize).Ingest(ctx, ires.Stores)

	if scope == model.ScopeScoped {
		r.advanceApuration(ctx, ires, in, resp, log)
	}

	resp.Success = true
	resp.Zones = ires.Zones
	resp.BudgetExceeded = ires.BudgetExceeded
	resp.MoreAvailable = ires.MoreAvailable()
	resp.Errors = append(resp.Errors, ires.Errors...)
	resp.Failures = in.Failures
	for _, f := range in.Failures {
		resp.Errors = append(resp.Errors, "insert "+f.Name+": "+f.Reason)
	}
	resp.Stats = Stats{
		StoresFound:      len(ires.Stores),
		StoresAdded:      in.Inserted,
		StoresSkipped:    in.Skipped,
		StoresFailed:     in.Failed,
		APICalls:         ires.APICalls,
		BackupCalls:      ires.BackupCalls,
		ZonesSearched:    ires.ZonesSearched,
		ZonesTotal:       ires.ZonesTotal,
		ZonesRemaining:   ires.ZonesRemaining,
		EstimatedCostUSD: ires.EstimatedCostUSD,
	}

	switch {
	case ires.BudgetExceeded:
		resp.Message = MessageBudgetExceeded
	case resp.MoreAvailable:
		resp.Message = MessageMoreAvailable
	default:
		resp.Message = MessageComplete
	}
	return nil
}

// resolveZones turns the request into zones. Scoped runs use the listed
// neighborhoods with their apuration limits. Other runs use matching
// neighborhoods, or the legacy table when asked to or when none match.
func (r *Runner) resolveZones(ctx context.Context, req RunRequest) ([]Zone, error) {
	if req.Scope() == model.ScopeScoped {
		hoods, err := r.store.NeighborhoodsByID(ctx, req.NeighborhoodIDs)
		if err != nil {
			return nil, eris.Wrap(err, "discovery: load neighborhoods")
		}
		if missing := missingIDs(req.NeighborhoodIDs, hoods); len(missing) > 0 {
			return nil, eris.Wrapf(ErrUnknownNeighborhoods, "ids %v", missing)
		}
		out := make([]Zone, 0, len(hoods))
		for _, n := range hoods {
			z := neighborhoodZone(n)
			z.Limit = NextLimit(n.ApurationCount)
			out = append(out, z)
		}
		return out, nil
	}

	if _, err := keywords.ResolveFilter(req.Country); err != nil {
		return nil, err
	}

	if !req.UseLegacyZones {
		hoods, err := r.store.ListNeighborhoods(ctx, NeighborhoodFilter{
			Country: req.Country,
			State:   req.State,
			City:    req.City,
		})
		if err != nil {
			return nil, eris.Wrap(err, "discovery: list neighborhoods")
		}
		if len(hoods) > 0 {
			out := make([]Zone, 0, len(hoods))
			for _, n := range hoods {
				z := neighborhoodZone(n)
				z.Limit = r.cfg.ZoneLimit
				out = append(out, z)
			}
			return out, nil
		}
	}

	if r.legacy == nil {
		return nil, nil
	}
	var out []Zone
	for _, lz := range r.legacy.Match(zones.Filter{Country: req.Country, State: req.State, City: req.City}) {
		out = append(out, Zone{
			Label:   lz.Name,
			Center:  geo.Point{Lat: lz.Lat, Lng: lz.Lng},
			RadiusM: lz.RadiusM,
			Limit:   r.cfg.ZoneLimit,
			Country: keywords.Resolve(lz.Country).Country,
		})
	}
	return out, nil
}

// allCallsFailed returns ErrAllCallsFailed when zones were searched and
// none of them got an answer from either provider.
func allCallsFailed(ires *IterateResult) error {
	if ires.ZonesSearched == 0 {
		return nil
	}
	for _, z := range ires.Zones {
		if z.Skipped != "" {
			continue
		}
		if !z.CallsFailed || z.BackupNew > 0 {
			return nil
		}
	}
	first := "no error detail"
	if len(ires.Errors) > 0 {
		first = ires.Errors[0]
	}
	return eris.Wrapf(ErrAllCallsFailed, "%d zones searched, first error %q", ires.ZonesSearched, first)
}

func neighborhoodZone(n model.Neighborhood) Zone {
	z := Zone{
		Label:          n.Name,
		Center:         geo.Point{Lat: n.Latitude, Lng: n.Longitude},
		RadiusM:        n.RadiusM,
		NeighborhoodID: n.ID,
	}
	if n.CountryCode != "" {
		z.Country = keywords.Resolve(n.CountryCode).Country
	}
	return z
}

func missingIDs(want []int64, got []model.Neighborhood) []int64 {
	have := make(map[int64]bool, len(got))
	for _, n := range got {
		have[n.ID] = true
	}
	var missing []int64
	for _, id := range want {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// advanceApuration increments each neighborhood whose search completed and
// whose stores were all written.
func (r *Runner) advanceApuration(ctx context.Context, ires *IterateResult, in ingest.Result, resp *RunResponse, log *zap.Logger) {
	failed := make(map[string]bool, len(in.Failures))
	for _, f := range in.Failures {
		failed[failureKey(f.PlaceID, f.Name)] = true
	}

	for _, z := range ires.Zones {
		if z.NeighborhoodID == 0 || !z.Completed() {
			continue
		}
		if zoneHasFailure(z, failed) {
			resp.Errors = append(resp.Errors, z.Label+": insert failures, apuration not advanced")
			continue
		}
		if err := r.store.IncrementApuration(ctx, z.NeighborhoodID); err != nil {
			log.Error("discovery: increment apuration failed", zap.Int64("neighborhood_id", z.NeighborhoodID), zap.Error(err))
			resp.Errors = append(resp.Errors, err.Error())
		}
	}
}

func zoneHasFailure(z ZoneReport, failed map[string]bool) bool {
	if len(failed) == 0 {
		return false
	}
	for _, st := range z.stores {
		if failed[failureKey(st.ExternalID(), st.Name)] {
			return true
		}
	}
	return false
}

func failureKey(placeID, name string) string {
	if placeID != "" {
		return "id:" + placeID
	}
	return "name:" + name
}

func (r *Runner) releaseLeases(ires *IterateResult, log *zap.Logger) {
	if ires == nil {
		return
	}
	ctx := context.Background()
	for _, id := range ires.Leased {
		if err := r.lease.Release(ctx, id); err != nil {
			log.Warn("discovery: release lease failed", zap.Int64("neighborhood_id", id), zap.Error(err))
		}
	}
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
