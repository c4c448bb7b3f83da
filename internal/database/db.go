package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// Open opens a connection to the SQLite database at the specified path
func Open(path string) (*DB, error) {
	// Open the database with appropriate pragmas
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(1) // SQLite works best with a single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	// Test the connection
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Init initializes the database schema, migrating legacy databases first
func (db *DB) Init() error {
	if err := db.migrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if _, err := db.conn.Exec(Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	if _, err := db.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// migrate rebuilds the version-1 activities table, which carried a start
// column (event time) instead of last_updated (sync time). The event time is
// preserved inside the raw JSON payload; last_updated is stamped with the
// migration time since these rows were last synced by the old tool.
func (db *DB) migrate() error {
	var version int
	if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= SchemaVersion {
		return nil
	}

	var hasStart int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('activities') WHERE name = 'start'",
	).Scan(&hasStart)
	if err != nil {
		return fmt.Errorf("failed to inspect activities table: %w", err)
	}
	if hasStart == 0 {
		return nil // Fresh database or already on the new shape
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		`CREATE TABLE activities_v2 (
			id INTEGER PRIMARY KEY,
			private_note TEXT,
			description TEXT,
			name TEXT,
			type TEXT,
			user_id TEXT NOT NULL,
			last_updated INTEGER NOT NULL,
			raw TEXT NOT NULL
		)`,
		fmt.Sprintf(`INSERT INTO activities_v2 (id, private_note, description, name, type, user_id, last_updated, raw)
			SELECT id, private_note, description, name, type, user_id, %d, raw FROM activities`,
			time.Now().Unix()),
		`DROP TABLE activities`,
		`ALTER TABLE activities_v2 RENAME TO activities`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to rebuild activities table: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying *sql.DB connection for direct use
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Health checks if the database connection is healthy
func (db *DB) Health() error {
	return db.conn.Ping()
}
