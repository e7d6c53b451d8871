package database

import (
	"database/sql"
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers, named after their database/sql registration
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB wraps the database connection
type DB struct {
	conn   *sql.DB
	driver string
}

// New creates a new database connection
func New(driver, dsn string) (*DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// every sqlite connection to :memory: is a separate database
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, driver: driver}

	// Initialize tables and run migrations
	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.migrateSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

var placeholder = regexp.MustCompile(`\$\d+`)

// bind rewrites postgres style $N placeholders for drivers that want ?
func (db *DB) bind(query string) string {
	if db.driver == DriverPostgres {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

// createTables creates the necessary tables
func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS user_activity (
			user_id TEXT NOT NULL PRIMARY KEY,
			message_count BIGINT NOT NULL DEFAULT 0,
			forum_count BIGINT NOT NULL DEFAULT 0,
			voice_accumulated_ms BIGINT NOT NULL DEFAULT 0,
			voice_session_started_at BIGINT,
			voice_channel_id TEXT NOT NULL DEFAULT '',
			last_reward_granted_at BIGINT,
			special_channel_counts TEXT NOT NULL DEFAULT '{}',
			last_updated BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS bot_config (
			name TEXT NOT NULL PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at BIGINT NOT NULL DEFAULT 0
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// migrateSchema handles database schema migrations
func (db *DB) migrateSchema() error {
	if db.driver != DriverPostgres {
		return nil
	}

	migrations := []string{
		// Columns added after the first deployments
		`ALTER TABLE user_activity ADD COLUMN IF NOT EXISTS forum_count BIGINT NOT NULL DEFAULT 0`,
		`ALTER TABLE user_activity ADD COLUMN IF NOT EXISTS voice_channel_id TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE user_activity ADD COLUMN IF NOT EXISTS special_channel_counts TEXT NOT NULL DEFAULT '{}'`,
		`ALTER TABLE user_activity ADD COLUMN IF NOT EXISTS last_reward_granted_at BIGINT`,

		// Old rows written with a zero marker instead of NULL
		`UPDATE user_activity SET voice_session_started_at = NULL WHERE voice_session_started_at = 0`,
		`UPDATE user_activity SET last_reward_granted_at = NULL WHERE last_reward_granted_at = 0`,
	}

	for _, migration := range migrations {
		if _, err := db.conn.Exec(migration); err != nil {
			log.Warn().Err(err).Msg("migration failed (this might be expected)")
		}
	}

	return nil
}
