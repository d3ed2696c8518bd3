package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storesInsert = InsertConfig{
	Table:        "stores",
	Columns:      []string{"google_place_id", "name"},
	ConflictKeys: []string{"google_place_id"},
}

func TestInsertIgnoreSQL(t *testing.T) {
	sql, err := InsertIgnoreSQL(storesInsert)
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "stores" ("google_place_id", "name") VALUES ($1, $2) ON CONFLICT ("google_place_id") DO NOTHING`,
		sql)
}

func TestInsertIgnoreSQL_SchemaAndReturning(t *testing.T) {
	cfg := storesInsert
	cfg.Table = "public.stores"
	cfg.Returning = "id"
	sql, err := InsertIgnoreSQL(cfg)
	require.NoError(t, err)
	assert.Contains(t, sql, `INSERT INTO "public"."stores"`)
	assert.Contains(t, sql, `RETURNING "id"`)
}

func TestInsertIgnoreSQL_Invalid(t *testing.T) {
	_, err := InsertIgnoreSQL(InsertConfig{Table: "stores", ConflictKeys: []string{"a"}})
	assert.ErrorContains(t, err, "no columns")

	_, err = InsertIgnoreSQL(InsertConfig{Table: "stores", Columns: []string{"a"}})
	assert.ErrorContains(t, err, "no conflict keys")
}

func TestInsertIgnore_Inserted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO "stores"`).
		WithArgs("ChIJ1", "Tintas Suvinil").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ok, err := InsertIgnore(context.Background(), mock, storesInsert, []any{"ChIJ1", "Tintas Suvinil"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIgnore_Conflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("ChIJ1", "Tintas Suvinil").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	ok, err := InsertIgnore(context.Background(), mock, storesInsert, []any{"ChIJ1", "Tintas Suvinil"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIgnore_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO "stores"`).
		WithArgs("ChIJ1", "x").
		WillReturnError(fmt.Errorf("connection lost"))

	_, err = InsertIgnore(context.Background(), mock, storesInsert, []any{"ChIJ1", "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: insert into stores")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIgnore_ArgCountMismatch(t *testing.T) {
	_, err := InsertIgnore(context.Background(), nil, storesInsert, []any{"only-one"})
	assert.ErrorContains(t, err, "1 values for 2 columns")
}
