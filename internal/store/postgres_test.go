package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/brreg-matcher/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_GetEnrichment(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM enrichment_cache WHERE org_number = \$1`).
		WithArgs("923609016").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"org_number":"923609016","employees":40,"revenue_mnok":12.5}`)))

	got, err := s.GetEnrichment(context.Background(), "923609016")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 40, *got.Employees)
	assert.InDelta(t, 12.5, *got.Revenue, 0.0001)
	assert.Nil(t, got.FiscalYear)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetEnrichment_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM enrichment_cache`).
		WithArgs("000000000").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetEnrichment(context.Background(), "000000000")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetEnrichment_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM enrichment_cache`).
		WithArgs("1").
		WillReturnError(errors.New("conn closed"))

	_, err := s.GetEnrichment(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get enrichment")
}

func TestPostgresStore_PutEnrichment(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO enrichment_cache`).
		WithArgs("923609016", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n := 7
	err := s.PutEnrichment(context.Background(), model.Enrichment{OrgNumber: "923609016", Employees: &n}, 24*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutEnrichment_RequiresOrgNumber(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	require.Error(t, s.PutEnrichment(context.Background(), model.Enrichment{}, time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpired(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM enrichment_cache WHERE expires_at <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS enrichment_cache`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	require.NoError(t, s.Ping(context.Background()))
}
