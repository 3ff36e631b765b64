package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
)

// Dialect selects SQL syntax differences.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const pgUniqueViolation = "23505"

// DB is a database handle tagged with its dialect.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Wrap tags an already opened handle, for example one built by sqlmock.
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, dialect: dialect}
}

func (d *DB) Dialect() Dialect {
	return d.dialect
}

// OpenPostgres opens dsn with the pgx stdlib driver and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying postgres connection: %w", err)
	}
	return Wrap(db, Postgres), nil
}

// OpenSQLite opens the database file at path in WAL mode with foreign keys
// on. SQLite allows a single writer, so the pool is capped at one connection.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying sqlite connection: %w", err)
	}
	return Wrap(db, SQLite), nil
}

// rebind rewrites ? placeholders to $1..$n for PostgreSQL.
func (d *DB) rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.ExecContext(ctx, d.rebind(query), args...)
}

func (d *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.QueryRowContext(ctx, d.rebind(query), args...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func unavailable(err error) error {
	return fmt.Errorf("%w: db error: %v", authcore.ErrStoreUnavailable, err)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
