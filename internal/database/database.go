package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Database is the durable trajectory ledger. One writer transaction at a
// time; WAL mode lets query paths read consistent snapshots without
// blocking the ingest path.
type Database struct {
	db *sql.DB
}

// New opens (or creates) the ledger at dbPath.
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate runs database migrations.
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			object_id INTEGER NOT NULL,
			label TEXT NOT NULL,
			confidence REAL NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			speed REAL,
			distance REAL,
			timestamp DATETIME NOT NULL,
			history_id TEXT UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS trajectories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			object_id INTEGER NOT NULL UNIQUE,
			label TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			last_seen DATETIME NOT NULL,
			is_active INTEGER DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS trajectory_points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trajectory_id INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			speed REAL,
			distance REAL,
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (trajectory_id) REFERENCES trajectories(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_time ON detections(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_object_time ON detections(object_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_points_trajectory_time ON trajectory_points(trajectory_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_trajectories_last_seen ON trajectories(last_seen)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
