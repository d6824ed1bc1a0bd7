package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type PersistentStore struct {
	db     *sql.DB
	driver string
}

// New opens the job database and runs pending migrations. For sqlite the dsn
// is a file path; for postgres it is a connection string. A store that cannot
// be opened is fatal to the caller by contract, never masked.
func New(driver, dsn string) (*PersistentStore, error) {
	var db *sql.DB
	var err error

	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite

		dbDir := filepath.Dir(dsn)

		// Ensure the database directory exists
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}

		db, err = sql.Open("sqlite", dsn+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}

	// Ping makes sure the target is actually reachable and the DSN is valid
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	store := &PersistentStore{db: db, driver: driver}

	if err := store.RunMigrations(); err != nil {
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return store, nil
}

func (s *PersistentStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $1..$n for postgres. Queries are written
// once in sqlite style and adapted here.
func (s *PersistentStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
