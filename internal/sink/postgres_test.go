package sink

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearhealth/pricing-cli/internal/model"
)

func amount(v float64) *float64 { return &v }

func TestPostgres_ReplaceCommit(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectBegin()
	pool.ExpectExec("DELETE FROM prices").WithArgs("src-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	pool.ExpectQuery("INSERT INTO items").
		WithArgs("hosp-1", "99213", "CPT", "Office Visit", "outpatient").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created"}).AddRow(int64(7), true))
	pool.ExpectCopyFrom(pgx.Identifier{"prices"}, priceColumns).WillReturnResult(1)
	pool.ExpectCommit()

	s := NewPostgresWithPool(pool)
	w, err := s.Replace(context.Background(), "src-1")
	require.NoError(t, err)

	id, created, err := w.UpsertItem(context.Background(), model.Item{
		HospitalID:  "hosp-1",
		Code:        "99213",
		CodeType:    model.CodeCPT,
		Description: "Office Visit",
		Setting:     "outpatient",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.True(t, created)

	require.NoError(t, w.AppendPrice(context.Background(), id, model.Price{
		Payer:  "Aetna",
		Plan:   "PPO",
		Amount: amount(150),
	}))
	require.NoError(t, w.Commit(context.Background()))
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_ReplaceRollback(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectBegin()
	pool.ExpectExec("DELETE FROM prices").WithArgs("src-2").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	pool.ExpectRollback()

	s := NewPostgresWithPool(pool)
	w, err := s.Replace(context.Background(), "src-2")
	require.NoError(t, err)
	require.NoError(t, w.Rollback(context.Background()))
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_UpsertDefinitions(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	cols := []string{"code", "code_type", "short_text", "long_text"}
	pool.ExpectBegin()
	pool.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	pool.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_code_definitions"}, cols).WillReturnResult(2)
	pool.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	pool.ExpectCommit()

	s := NewPostgresWithPool(pool)
	n, err := s.UpsertDefinitions(context.Background(), []model.CodeDefinition{
		{Code: "99213", CodeType: model.CodeCPT, ShortText: "Office visit, est patient"},
		{Code: "J1100", CodeType: model.CodeHCPCS, ShortText: "Dexamethasone injection"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgres_SourcePriceCount(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectQuery("SELECT count").WithArgs("src-3").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	s := NewPostgresWithPool(pool)
	n, err := s.SourcePriceCount(context.Background(), "src-3")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestPostgres_MigrateError(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectExec("CREATE TABLE").WillReturnError(assert.AnError)

	s := NewPostgresWithPool(pool)
	require.Error(t, s.Migrate(context.Background()))
}
