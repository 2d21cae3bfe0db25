// Package persistence is the SQLite audit store: every cycle run, its
// state transitions, and snapshots of the agent conversation are kept
// so a run can be inspected or replayed after the fact.
package persistence

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"issueflow/pkg/logx"
)

// Store wraps one SQLite database. Methods are safe for concurrent use;
// the connection pool is capped at a single connection because SQLite
// allows only one writer.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the database at dbPath and brings the
// schema up to the current version. A nil logger gets a default.
func Open(dbPath string, logger *logx.Logger) (*Store, error) {
	if logger == nil {
		logger = logx.NewLogger("persistence")
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger.Info("📦 Audit store ready: %s", dbPath)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
