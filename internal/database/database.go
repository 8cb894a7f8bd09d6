package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps sql.DB and implements the booking store on SQLite.
type DB struct {
	*sql.DB
	path     string
	inMemory bool
	logger   *zerolog.Logger
}

// NewDB opens (creating if needed) the database at path and runs migrations.
// ":memory:" is accepted for tests.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	inMemory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: db, path: path, inMemory: inMemory, logger: logger}, nil
}

// dsn enables foreign keys and makes every transaction take the write lock
// up front, so count-then-insert cannot interleave between connections.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            token TEXT PRIMARY KEY,
            date TEXT NOT NULL,
            approx_time_slot TEXT NOT NULL,
            municipality TEXT NOT NULL,
            status TEXT NOT NULL,
            status_at TEXT NOT NULL,
            version INTEGER NOT NULL DEFAULT 1,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS booking_items (
            token TEXT NOT NULL,
            position INTEGER NOT NULL,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            PRIMARY KEY (token, position),
            FOREIGN KEY (token) REFERENCES bookings(token)
        )`,
		`CREATE TABLE IF NOT EXISTS booking_status_history (
            token TEXT NOT NULL,
            position INTEGER NOT NULL,
            status TEXT NOT NULL,
            changed_at TEXT NOT NULL,
            PRIMARY KEY (token, position),
            FOREIGN KEY (token) REFERENCES bookings(token)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_slot ON bookings(date, approx_time_slot, municipality)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_municipality ON bookings(municipality)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Healthy pings the database.
func (db *DB) Healthy(ctx context.Context) error {
	return db.PingContext(ctx)
}

// vacuumInto writes a compacted, consistent copy of the live database to path.
func (db *DB) vacuumInto(ctx context.Context, path string) error {
	quoted := strings.ReplaceAll(path, "'", "''")
	_, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted))
	return err
}
