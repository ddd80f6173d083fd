package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/k3vt/aprsgate/internal/storage"
)

// Store implements the storage.Store interface on a SQLite database
type Store struct {
	db       *sql.DB
	profiles *profileStore
	beacons  *beaconLogStore
}

// Open creates a new database connection and runs migrations
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite limitation
	db.SetMaxIdleConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		db:       db,
		profiles: &profileStore{db: db},
		beacons:  &beaconLogStore{db: db},
	}, nil
}

// runMigrations applies all database migrations
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for version := 1; version <= len(migrations); version++ {
		if version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(migrations[version-1]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

var migrations = []string{
	migration001Users,
	migration002Beacons,
}

// Migration schemas. Timestamps are stored as unix seconds.
const migration001Users = `
CREATE TABLE IF NOT EXISTS users (
	user_id INTEGER PRIMARY KEY,
	user_name TEXT NOT NULL DEFAULT '',
	user_callsign TEXT NOT NULL DEFAULT '',
	user_ssid TEXT NOT NULL DEFAULT '9',
	aprs_icon TEXT NOT NULL DEFAULT '$/',
	user_comment TEXT NOT NULL DEFAULT '',
	aprs_interval INTEGER NOT NULL DEFAULT 30,
	approved INTEGER NOT NULL DEFAULT 0,
	registered_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_users_approved ON users(approved);
`

const migration002Beacons = `
CREATE TABLE IF NOT EXISTS beacons (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	packet TEXT NOT NULL,
	sent_at INTEGER NOT NULL
);

CREATE INDEX idx_beacons_sent_at ON beacons(sent_at);
CREATE INDEX idx_beacons_user ON beacons(user_id, sent_at);
`

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Profiles returns the ProfileStore implementation
func (s *Store) Profiles() storage.ProfileStore {
	return s.profiles
}

// BeaconLog returns the BeaconLogStore implementation
func (s *Store) BeaconLog() storage.BeaconLogStore {
	return s.beacons
}
