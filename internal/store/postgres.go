package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/storedir/internal/db"
	"github.com/sells-group/storedir/internal/geo"
	"github.com/sells-group/storedir/internal/model"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore over an open pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool for subsystems that share it.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

var storeColumns = []string{
	"google_place_id", "name", "address", "phone", "website",
	"latitude", "longitude", "location", "neighborhood",
	"category", "category_detection", "source", "verified",
	"user_id", "business_status",
}

var storeInsert = db.InsertConfig{
	Table:        "stores",
	Columns:      storeColumns,
	ConflictKeys: []string{"google_place_id"},
}

const selectStore = `SELECT id, google_place_id, name, address, phone, website, latitude, longitude,
	neighborhood, category, category_detection, source, verified, user_id, business_status,
	created_at, updated_at FROM stores`

func storeValues(st model.Store) ([]any, error) {
	point, err := geo.EncodePoint(st.Latitude, st.Longitude)
	if err != nil {
		return nil, err
	}
	category := st.Category
	if category == "" {
		category = model.CategoryUnknown
	}
	detection := st.CategoryDetection
	if detection == "" {
		detection = "none"
	}
	return []any{
		st.PlaceID, st.Name, st.Address, st.Phone, st.Website,
		st.Latitude, st.Longitude, point, st.Neighborhood,
		string(category), detection, string(st.Source), st.Verified,
		st.UserID, st.BusinessStatus,
	}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "store: ping")
}

func (s *PostgresStore) InsertStore(ctx context.Context, st model.Store) (bool, error) {
	values, err := storeValues(st)
	if err != nil {
		return false, eris.Wrapf(err, "store: encode location for %q", st.Name)
	}
	return db.InsertIgnore(ctx, s.pool, storeInsert, values)
}

func (s *PostgresStore) CreateStore(ctx context.Context, st model.Store) (int64, error) {
	values, err := storeValues(st)
	if err != nil {
		return 0, eris.Wrapf(err, "store: encode location for %q", st.Name)
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO stores (google_place_id, name, address, phone, website, latitude, longitude, location,
			neighborhood, category, category_detection, source, verified, user_id, business_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		values...,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "store: create store")
	}
	return id, nil
}

func (s *PostgresStore) FindByPlaceID(ctx context.Context, placeID string) (*model.Store, error) {
	row := s.pool.QueryRow(ctx, selectStore+` WHERE google_place_id = $1`, placeID)
	st, err := scanStore(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: find by place id %s", placeID)
	}
	return st, nil
}

func (s *PostgresStore) UpgradeToVerified(ctx context.Context, id, userID int64, patch model.Store) (*model.Store, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE stores SET
			source = 'verified',
			verified = true,
			user_id = $2,
			phone = CASE WHEN phone = '' THEN $3 ELSE phone END,
			website = CASE WHEN website = '' THEN $4 ELSE website END,
			category = CASE WHEN category IN ('', 'unknown') THEN $5 ELSE category END,
			updated_at = now()
		WHERE id = $1 AND source = 'auto'
		RETURNING id, google_place_id, name, address, phone, website, latitude, longitude,
			neighborhood, category, category_detection, source, verified, user_id, business_status,
			created_at, updated_at`,
		id, userID, patch.Phone, patch.Website, string(patch.Category),
	)
	st, err := scanStore(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: upgrade store %d", id)
	}
	return st, nil
}

func (s *PostgresStore) UpsertUser(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username) VALUES ($1)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING id, username, role, created_at`,
		username,
	).Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "store: upsert user %s", username)
	}
	return &u, nil
}

func (s *PostgresStore) SourceCounts(ctx context.Context) ([]model.SourceCount, error) {
	rows, err := s.pool.Query(ctx, `SELECT source, total, verified FROM store_source_counts ORDER BY source`)
	if err != nil {
		return nil, eris.Wrap(err, "store: source counts")
	}
	defer rows.Close()

	var counts []model.SourceCount
	for rows.Next() {
		var c model.SourceCount
		if err := rows.Scan(&c.Source, &c.Total, &c.Verified); err != nil {
			return nil, eris.Wrap(err, "store: scan source count")
		}
		counts = append(counts, c)
	}
	return counts, eris.Wrap(rows.Err(), "store: iterate source counts")
}

func scanStore(row pgx.Row) (*model.Store, error) {
	var st model.Store
	err := row.Scan(
		&st.ID, &st.PlaceID, &st.Name, &st.Address, &st.Phone, &st.Website,
		&st.Latitude, &st.Longitude, &st.Neighborhood, &st.Category, &st.CategoryDetection,
		&st.Source, &st.Verified, &st.UserID, &st.BusinessStatus, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
