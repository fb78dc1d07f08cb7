// Package historystore persists terminal discovery sessions as
// historical records, the storage half of spec.md §4.10's "on
// terminal, persist a historical discovery record." Grounded on
// cwilson613-specularium's internal/repository/sqlite (inline schema,
// JSON-blob columns, ON CONFLICT upserts) for the schema/query idiom,
// and on jroosing-HydraDNS's internal/database (embedded golang-migrate
// migrations over a pure-Go modernc.org/sqlite driver) for connection
// setup and schema versioning, since the teacher's own go.mod already
// names modernc.org/sqlite as its direct dependency even though its
// checked-in repository code still imports the cgo-based
// github.com/mattn/go-sqlite3 driver.
package historystore

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite connection holding the discovery_history table.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at path and brings its
// schema up to date, mirroring internal/repository/sqlite.New's
// WAL/busy-timeout pragmas.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open discovery history database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate discovery history database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}
