package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lazypower/rapport/internal/clock"
	_ "modernc.org/sqlite"
)

var (
	// ErrStorageUnavailable means the store could not be opened or initialized.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrStorage wraps a failed read or write on an open store.
	ErrStorage = errors.New("storage error")
)

// DB wraps a sql.DB connection to the rapport SQLite event log.
type DB struct {
	*sql.DB
	Path  string
	clock clock.Clock
}

// DefaultDBPath returns the default database path: data/owner_memory.db
func DefaultDBPath() string {
	return filepath.Join("data", "owner_memory.db")
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create db dir: %v", ErrStorageUnavailable, err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrStorageUnavailable, err)
	}

	return initDB(sqlDB, path)
}

// OpenMemory opens an in-memory SQLite database for testing.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite memory: %v", ErrStorageUnavailable, err)
	}
	// Each pooled connection would otherwise see its own empty database.
	sqlDB.SetMaxOpenConns(1)

	return initDB(sqlDB, ":memory:")
}

func initDB(sqlDB *sql.DB, path string) (*DB, error) {
	db := &DB{DB: sqlDB, Path: path, clock: clock.System{}}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStorageUnavailable, err)
	}
	return db, nil
}

// SetClock replaces the clock used for record timestamps and window cutoffs.
func (db *DB) SetClock(c clock.Clock) {
	db.clock = c
}

func (db *DB) now() time.Time {
	return db.clock.Now()
}

// cutoff returns the inclusive lower bound, in unix ms, of a trailing window.
func (db *DB) cutoff(window time.Duration) int64 {
	return db.now().Add(-window).UnixMilli()
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}
