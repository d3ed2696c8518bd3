// Package store persists stores and users and owns the schema migrations.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/storedir/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = eris.New("store: not found")

// Store defines persistence for store records and their owners.
type Store interface {
	// InsertStore writes s unless a row with the same place id exists.
	// It reports whether a row was written.
	InsertStore(ctx context.Context, s model.Store) (bool, error)

	// CreateStore inserts s and returns its id. Conflicts are errors.
	CreateStore(ctx context.Context, s model.Store) (int64, error)

	FindByPlaceID(ctx context.Context, placeID string) (*model.Store, error)

	// UpgradeToVerified turns an auto-discovered row into a verified one owned
	// by userID, filling phone, website and category only where empty.
	UpgradeToVerified(ctx context.Context, id, userID int64, patch model.Store) (*model.Store, error)

	UpsertUser(ctx context.Context, username string) (*model.User, error)
	SourceCounts(ctx context.Context) ([]model.SourceCount, error)

	Ping(ctx context.Context) error
}
