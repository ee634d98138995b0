package quota

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLStore(context.Background(), DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore_SQLite(t *testing.T) {
	storeContract(t, newSQLiteStore(t))
}

func TestSQLStore_SQLiteConcurrent(t *testing.T) {
	concurrentContract(t, newSQLiteStore(t))
}

func TestSQLStore_MigrateIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestOpenSQLStore_UnknownDialect(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), "oracle", "dsn")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := NewSQLStore(nil, DialectPostgres)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := NewSQLStore(nil, DialectSQLite)
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func newPostgresMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db, DialectPostgres), mock
}

func TestSQLStore_PostgresReserve(t *testing.T) {
	s, mock := newPostgresMock(t)
	ctx := context.Background()

	mock.ExpectExec(s.rebind(reserveQuery)).
		WithArgs("upload_ip_1", "2026-03-14", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(s.rebind(getQuery)).
		WithArgs("upload_ip_1").
		WillReturnRows(sqlmock.NewRows([]string{"upload_day", "upload_count"}).AddRow("2026-03-14", 3))

	rec, ok, err := s.Reserve(ctx, "upload_ip_1", "2026-03-14", 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Record{Date: "2026-03-14", Count: 3}, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresReserveExceeded(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectExec(s.rebind(reserveQuery)).
		WithArgs("upload_ip_1", "2026-03-14", 4).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(s.rebind(getQuery)).
		WithArgs("upload_ip_1").
		WillReturnRows(sqlmock.NewRows([]string{"upload_day", "upload_count"}).AddRow("2026-03-14", 4))

	rec, ok, err := s.Reserve(context.Background(), "upload_ip_1", "2026-03-14", 4)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 4, rec.Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresErrors(t *testing.T) {
	s, mock := newPostgresMock(t)
	ctx := context.Background()

	mock.ExpectExec(s.rebind(reserveQuery)).WillReturnError(errors.New("connection refused"))
	_, _, err := s.Reserve(ctx, "k", "d", 4)
	assert.ErrorContains(t, err, "connection refused")

	mock.ExpectQuery(s.rebind(getQuery)).WithArgs("k").WillReturnError(sql.ErrNoRows)
	rec, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, Record{}, rec)

	mock.ExpectExec(s.rebind(releaseQuery)).WithArgs("k", "d").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Release(ctx, "k", "d"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_MigrateUsesGoose(t *testing.T) {
	s, _ := newPostgresMock(t)

	var called bool
	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		called = true
		assert.Equal(t, ".", dir)
		return errors.New("locked")
	}
	t.Cleanup(func() { gooseUpContext = orig })

	err := s.Migrate(context.Background())
	assert.True(t, called)
	assert.ErrorContains(t, err, "locked")
}
