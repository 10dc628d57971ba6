// Package sqldb implements the job and Q&A store on SQLite (modernc.org/sqlite)
// or PostgreSQL (pgx) through sqlx.
package sqldb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/raphaelgruber/qaharvest/internal/metrics"
	"github.com/raphaelgruber/qaharvest/internal/models"
)

// Driver names registered by the blank imports above.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var sqlitePragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// Store is a sqlx-backed store.
type Store struct {
	db      *sqlx.DB
	driver  string
	logger  *slog.Logger
	metrics *metrics.Collector
}

// OpenSQLite opens (creating if needed) the database file at path and
// applies the schema. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger, m *metrics.Collector) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}

	db, err := sqlx.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer avoids SQLITE_BUSY; every ":memory:" connection is a
	// separate database.
	db.SetMaxOpenConns(1)

	for _, p := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	return newStore(ctx, db, DriverSQLite, logger, m)
}

// OpenPostgres connects with dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger, m *metrics.Collector) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return newStore(ctx, db, DriverPostgres, logger, m)
}

func newStore(ctx context.Context, db *sqlx.DB, driver string, logger *slog.Logger, m *metrics.Collector) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, driver: driver, logger: logger, metrics: m}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("sql store ready", "driver", driver)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// wrapSQLError maps unique-constraint violations to models.ErrJobExists.
func wrapSQLError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", models.ErrJobExists, pgErr.Message)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", models.ErrJobExists, err.Error())
	}
	return err
}
