package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

// Every statement is IF NOT EXISTS so re-running against a database that
// already has the tables (for example one created by an older tool without
// schema_versions) is a no-op.
var migrations = []migration{
	{
		Version:     1,
		Description: "interactions: append-only interaction log",
		SQL: `
CREATE TABLE IF NOT EXISTS interactions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp  INTEGER NOT NULL,
    emotion    TEXT,
    gesture    TEXT,
    distance   REAL,
    duration   REAL,
    bond_score REAL,
    metadata   TEXT
);

CREATE INDEX IF NOT EXISTS idx_interactions_timestamp ON interactions(timestamp DESC);
`,
	},
	{
		Version:     2,
		Description: "signal history: emotion, gesture and distance sub-streams",
		SQL: `
CREATE TABLE IF NOT EXISTS emotion_history (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp  INTEGER NOT NULL,
    emotion    TEXT NOT NULL,
    confidence REAL
);

CREATE TABLE IF NOT EXISTS gesture_history (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp  INTEGER NOT NULL,
    gesture    TEXT NOT NULL,
    confidence REAL
);

CREATE TABLE IF NOT EXISTS distance_history (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp  INTEGER NOT NULL,
    distance   REAL NOT NULL CHECK (distance >= 0)
);

CREATE INDEX IF NOT EXISTS idx_emotion_timestamp  ON emotion_history(timestamp);
CREATE INDEX IF NOT EXISTS idx_gesture_timestamp  ON gesture_history(timestamp);
CREATE INDEX IF NOT EXISTS idx_distance_timestamp ON distance_history(timestamp);
`,
	},
	{
		Version:     3,
		Description: "weight_versions: bond weight adaptation history",
		SQL: `
CREATE TABLE IF NOT EXISTS weight_versions (
    version_id TEXT PRIMARY KEY,
    parent_id  TEXT,
    emotion    REAL NOT NULL,
    gesture    REAL NOT NULL,
    frequency  REAL NOT NULL,
    reward     REAL,
    decision   TEXT NOT NULL CHECK (decision IN ('increase', 'decrease', 'hold', 'load')),
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_weight_versions_created ON weight_versions(created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
