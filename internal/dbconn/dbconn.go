// Package dbconn produces the database connections and transactions every
// other journal component builds on (spec C3), and owns the auto_initialize
// bootstrap DDL for both tag layouts.
package dbconn

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/relaydb/sqljournal/internal/row"
)

//go:embed migrations/csv/*.sql migrations/tag_table/*.sql
var migrationsFS embed.FS

// Config configures the connection factory.
type Config struct {
	ConnectionString string
	// ProviderName names the SQL dialect. Open does not consult it and
	// always uses the postgres driver; the field is retained so a
	// deployment's config file round-trips unchanged.
	ProviderName string
	Parallelism  int
	TagMode      row.TagMode
	AutoInitialize bool
	// UseCloneConnection mirrors the source system's driver workaround
	// flag for drivers that cannot share a connection across concurrent
	// statements. lib/pq connections are already exclusive per
	// *sql.Conn, so this is a no-op for the postgres driver and exists
	// for config-file compatibility.
	UseCloneConnection bool
}

// DB is a live handle to the journal's database, scoped to one tag
// layout for its entire lifetime (spec I4).
type DB struct {
	sqlDB   *sql.DB
	TagMode row.TagMode
}

// Executor is satisfied by *sql.DB, *sql.Tx, and *sql.Conn. The
// non-transactional queries in write, retention, replay, tagquery, and
// allevents run through it (via DB.Exec); the transactional insert and
// delete helpers take a *sql.Tx directly.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to the configured database, tunes the connection pool to
// the write pipeline's parallelism, and runs the layout's bootstrap DDL
// when AutoInitialize is set.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if !cfg.TagMode.Valid() {
		return nil, fmt.Errorf("dbconn: invalid tag mode %q", cfg.TagMode)
	}

	sqlDB, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("dbconn: open database: %w", err)
	}

	maxOpen := cfg.Parallelism * 4
	if maxOpen < 4 {
		maxOpen = 4
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen / 2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("dbconn: ping database: %w", err)
	}

	if cfg.AutoInitialize {
		if err := runMigrations(sqlDB, cfg.TagMode); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("dbconn: run migrations: %w", err)
		}
	}

	return &DB{sqlDB: sqlDB, TagMode: cfg.TagMode}, nil
}

func runMigrations(db *sql.DB, tagMode row.TagMode) error {
	sub, err := fs.Sub(migrationsFS, "migrations/"+string(tagMode))
	if err != nil {
		return fmt.Errorf("select migration source: %w", err)
	}

	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Exec returns the top-level database handle as an Executor, for
// operations that do not need an explicit transaction.
func (d *DB) Exec() Executor { return d.sqlDB }

// BeginTx starts a new transaction. The write and delete pipelines use
// sql.LevelReadCommitted.
func (d *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return d.sqlDB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

// Raw exposes the underlying *sql.DB for operations (like pq.CopyIn) that
// need driver-specific access beyond the Executor interface.
func (d *DB) Raw() *sql.DB { return d.sqlDB }

// Close releases the connection pool.
func (d *DB) Close() error { return d.sqlDB.Close() }
