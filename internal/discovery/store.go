package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/storedir/internal/db"
	"github.com/sells-group/storedir/internal/geo"
	"github.com/sells-group/storedir/internal/keywords"
	"github.com/sells-group/storedir/internal/model"
)

// Store defines persistence operations for discovery.
type Store interface {
	Inventory
	NeighborhoodsByID(ctx context.Context, ids []int64) ([]model.Neighborhood, error)
	ListNeighborhoods(ctx context.Context, f NeighborhoodFilter) ([]model.Neighborhood, error)
	KnownPlaceIDs(ctx context.Context) (map[string]bool, error)
	IncrementApuration(ctx context.Context, neighborhoodID int64) error
	RecordRun(ctx context.Context, rec *model.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	ListStates(ctx context.Context, country string) ([]model.StateSummary, error)
}

// NeighborhoodFilter narrows ListNeighborhoods. Empty fields match everything.
type NeighborhoodFilter struct {
	Country string
	State   string
	City    string
	CityID  int64
	Limit   int
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const neighborhoodSelect = `SELECT n.id, n.city_id, c.name, s.name, co.code, n.name,
	n.latitude, n.longitude, n.radius_m, n.apuration_count, n.last_apuration_at
FROM neighborhoods n
JOIN cities c ON c.id = n.city_id
JOIN states s ON s.id = c.state_id
JOIN countries co ON co.id = s.country_id`

// NeighborhoodsByID returns the neighborhoods with the given ids, ordered by id.
// Unknown ids are absent from the result.
func (s *PostgresStore) NeighborhoodsByID(ctx context.Context, ids []int64) ([]model.Neighborhood, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, neighborhoodSelect+` WHERE n.id = ANY($1) ORDER BY n.id`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: neighborhoods by id")
	}
	defer rows.Close()
	return scanNeighborhoods(rows)
}

// ListNeighborhoods returns neighborhoods matching f, least searched first.
func (s *PostgresStore) ListNeighborhoods(ctx context.Context, f NeighborhoodFilter) ([]model.Neighborhood, error) {
	var conditions []string
	var args []any
	argIdx := 1

	country, err := keywords.ResolveFilter(f.Country)
	if err != nil {
		return nil, err
	}
	if country != "" {
		conditions = append(conditions, fmt.Sprintf("co.code = $%d", argIdx))
		args = append(args, string(country))
		argIdx++
	}
	if f.State != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.name) = LOWER($%d) OR LOWER(s.code) = LOWER($%d))", argIdx, argIdx))
		args = append(args, f.State)
		argIdx++
	}
	if f.City != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(c.name) = LOWER($%d)", argIdx))
		args = append(args, f.City)
		argIdx++
	}
	if f.CityID > 0 {
		conditions = append(conditions, fmt.Sprintf("n.city_id = $%d", argIdx))
		args = append(args, f.CityID)
		argIdx++
	}
	if len(conditions) == 0 {
		conditions = append(conditions, "TRUE")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY n.apuration_count, n.id LIMIT $%d`,
		neighborhoodSelect,
		strings.Join(conditions, " AND "),
		argIdx,
	)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: list neighborhoods")
	}
	defer rows.Close()
	return scanNeighborhoods(rows)
}

func scanNeighborhoods(rows pgx.Rows) ([]model.Neighborhood, error) {
	var out []model.Neighborhood
	for rows.Next() {
		var n model.Neighborhood
		if err := rows.Scan(
			&n.ID, &n.CityID, &n.CityName, &n.StateName, &n.CountryCode, &n.Name,
			&n.Latitude, &n.Longitude, &n.RadiusM, &n.ApurationCount, &n.LastApurationAt,
		); err != nil {
			return nil, eris.Wrap(err, "discovery: scan neighborhood")
		}
		out = append(out, n)
	}
	return out, eris.Wrap(rows.Err(), "discovery: iterate neighborhoods")
}

// KnownPlaceIDs returns every stored place id.
func (s *PostgresStore) KnownPlaceIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT google_place_id FROM stores WHERE google_place_id IS NOT NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: known place ids")
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "discovery: scan place id")
		}
		ids[id] = true
	}
	return ids, eris.Wrap(rows.Err(), "discovery: iterate place ids")
}

// StoresNear returns stores within radiusM meters of center. A bounding box
// prefilters in SQL and the haversine distance decides.
func (s *PostgresStore) StoresNear(ctx context.Context, center geo.Point, radiusM float64) ([]model.Store, error) {
	minLat, minLng, maxLat, maxLng := geo.BoundingBox(center, radiusM)
	rows, err := s.pool.Query(ctx,
		`SELECT id, google_place_id, name, address, latitude, longitude, source
		FROM stores
		WHERE latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4`,
		minLat, maxLat, minLng, maxLng,
	)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: stores near")
	}
	defer rows.Close()

	var out []model.Store
	for rows.Next() {
		var (
			st     model.Store
			source string
		)
		if err := rows.Scan(&st.ID, &st.PlaceID, &st.Name, &st.Address, &st.Latitude, &st.Longitude, &source); err != nil {
			return nil, eris.Wrap(err, "discovery: scan store")
		}
		st.Source = model.Source(source)
		if geo.DistanceM(center.Lat, center.Lng, st.Latitude, st.Longitude) <= radiusM {
			out = append(out, st)
		}
	}
	return out, eris.Wrap(rows.Err(), "discovery: iterate stores")
}

// StoreNamesExist returns the subset of names that match a stored store
// name. Names are compared lowercased and trimmed, so callers pass them in
// that form.
func (s *PostgresStore) StoreNamesExist(ctx context.Context, names []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(names) == 0 {
		return found, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT lower(btrim(name)) FROM stores WHERE lower(btrim(name)) = ANY($1)`,
		names,
	)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: store names")
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "discovery: scan store name")
		}
		found[name] = true
	}
	return found, eris.Wrap(rows.Err(), "discovery: iterate store names")
}

// IncrementApuration records one completed scoped search of a neighborhood.
func (s *PostgresStore) IncrementApuration(ctx context.Context, neighborhoodID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE neighborhoods SET apuration_count = apuration_count + 1, last_apuration_at = now() WHERE id = $1`,
		neighborhoodID,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: increment apuration %d", neighborhoodID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("discovery: neighborhood %d not found", neighborhoodID)
	}
	return nil
}

// RecordRun appends the audit row of one invocation.
func (s *PostgresStore) RecordRun(ctx context.Context, rec *model.RunRecord) error {
	filters := rec.Filters
	if filters == nil {
		filters = map[string]any{}
	}
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return eris.Wrap(err, "discovery: marshal run filters")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO discovery_runs (id, scope, filters, stores_added, stores_skipped, api_calls,
			backup_calls, estimated_cost_usd, execution_ms, status, budget_exceeded, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, string(rec.Scope), filtersJSON, rec.StoresAdded, rec.StoresSkipped, rec.APICalls,
		rec.BackupCalls, rec.EstimatedCostUSD, rec.ExecutionMS, string(rec.Status), rec.BudgetExceeded,
		model.StringPtr(rec.Error),
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: record run %s", rec.ID)
	}
	return nil
}

// ListRuns returns the most recent audit rows first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, scope, filters, stores_added, stores_skipped, api_calls, backup_calls,
			estimated_cost_usd, execution_ms, status, budget_exceeded, error, created_at
		FROM discovery_runs
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: list runs")
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		var (
			rec     model.RunRecord
			scope   string
			status  string
			filters []byte
			errMsg  *string
		)
		if err := rows.Scan(
			&rec.ID, &scope, &filters, &rec.StoresAdded, &rec.StoresSkipped, &rec.APICalls, &rec.BackupCalls,
			&rec.EstimatedCostUSD, &rec.ExecutionMS, &status, &rec.BudgetExceeded, &errMsg, &rec.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "discovery: scan run")
		}
		rec.Scope = model.RunScope(scope)
		rec.Status = model.RunStatus(status)
		if errMsg != nil {
			rec.Error = *errMsg
		}
		if len(filters) > 0 {
			if err := json.Unmarshal(filters, &rec.Filters); err != nil {
				return nil, eris.Wrapf(err, "discovery: decode filters of run %s", rec.ID)
			}
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "discovery: iterate runs")
}

// ListStates summarizes neighborhood progress per state. An empty country
// lists every state.
func (s *PostgresStore) ListStates(ctx context.Context, country string) ([]model.StateSummary, error) {
	code, err := keywords.ResolveFilter(country)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT s.id, s.country_id, s.name, COALESCE(s.code, ''), co.code,
			COUNT(n.id),
			COUNT(n.id) FILTER (WHERE n.apuration_count = 0),
			COALESCE(MIN(n.apuration_count), 0)
		FROM states s
		JOIN countries co ON co.id = s.country_id
		LEFT JOIN cities c ON c.state_id = s.id
		LEFT JOIN neighborhoods n ON n.city_id = c.id
		WHERE ($1 = '' OR co.code = $1)
		GROUP BY s.id, s.country_id, s.name, s.code, co.code
		ORDER BY co.code, s.name`,
		string(code),
	)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: list states")
	}
	defer rows.Close()

	var out []model.StateSummary
	for rows.Next() {
		var st model.StateSummary
		if err := rows.Scan(
			&st.ID, &st.CountryID, &st.Name, &st.Code, &st.CountryCode,
			&st.Neighborhoods, &st.PendingNeighborhoods, &st.MinApurationCount,
		); err != nil {
			return nil, eris.Wrap(err, "discovery: scan state")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "discovery: iterate states")
}
