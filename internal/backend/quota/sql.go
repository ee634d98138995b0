package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/jo-hoe/venicebridges/internal/backend/quota/migrations"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

const reserveQuery = `INSERT INTO upload_quota (quota_key, upload_day, upload_count) VALUES (?, ?, 1)
ON CONFLICT (quota_key) DO UPDATE SET
	upload_count = CASE WHEN upload_quota.upload_day = excluded.upload_day THEN upload_quota.upload_count + 1 ELSE 1 END,
	upload_day = excluded.upload_day
WHERE upload_quota.upload_day <> excluded.upload_day OR upload_quota.upload_count < ?`

const releaseQuery = `UPDATE upload_quota SET upload_count = upload_count - 1
WHERE quota_key = ? AND upload_day = ? AND upload_count > 0`

const getQuery = `SELECT upload_day, upload_count FROM upload_quota WHERE quota_key = ?`

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// SQLStore keeps records in the upload_quota table. Reserve is a single
// conditional upsert so concurrent requests cannot pass the limit.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// OpenSQLStore connects, migrates and returns a store. Dialect "sqlite" uses
// modernc.org/sqlite, "postgres" uses the pgx stdlib driver.
func OpenSQLStore(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	var driver string
	switch dialect {
	case DialectSQLite:
		driver = "sqlite"
	case DialectPostgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported quota sql dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// sqlite serialises writers, and each ":memory:" connection is a new database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", dialect, err)
	}

	s := NewSQLStore(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database that already has the schema.
func NewSQLStore(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate applies the embedded goose migrations.
func (s *SQLStore) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	gooseDialect := "sqlite3"
	if s.dialect == DialectPostgres {
		gooseDialect = "pgx"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("failed to migrate quota schema: %w", err)
	}
	log.Debug().Str("dialect", s.dialect).Msg("quota schema up to date")
	return nil
}

func (s *SQLStore) Reserve(ctx context.Context, key, day string, limit int) (Record, bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(reserveQuery), key, day, limit)
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to upsert quota %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, false, err
	}
	rec, err := s.Get(ctx, key)
	if err != nil {
		return Record{}, false, err
	}
	return rec, n > 0, nil
}

func (s *SQLStore) Release(ctx context.Context, key, day string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(releaseQuery), key, day); err != nil {
		return fmt.Errorf("failed to release quota %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, s.rebind(getQuery), key).Scan(&rec.Date, &rec.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read quota %s: %w", key, err)
	}
	return rec, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind turns "?" placeholders into "$N" for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
