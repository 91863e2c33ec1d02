package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the durable local store: the tasks table, the sync_queue outbox and
// the conflict log all live in one SQLite file.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
	now    func() time.Time
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer anyway, and ":memory:"
	// databases are per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, logger: logger, now: time.Now}

	if err := db.configure(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

func (db *DB) configure() error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Base shape of the tasks table. Later columns are added by migrate.
		`CREATE TABLE IF NOT EXISTS tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL CHECK (length(trim(title)) > 0),
            description TEXT NOT NULL DEFAULT '',
            priority TEXT NOT NULL DEFAULT 'medium'
                CHECK (priority IN ('low', 'medium', 'high', 'urgent')),
            completed BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_id INTEGER NOT NULL,
            operation TEXT NOT NULL CHECK (operation IN ('CREATE', 'UPDATE', 'DELETE')),
            payload TEXT,
            timestamp DATETIME NOT NULL
        )`,
		// Server stamp of the last version this client wrote, per task.
		`CREATE TABLE IF NOT EXISTS remote_versions (
            task_id INTEGER PRIMARY KEY,
            server_modified_at INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS conflict_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_id INTEGER NOT NULL,
            entry_id INTEGER NOT NULL,
            operation TEXT NOT NULL,
            local_timestamp DATETIME NOT NULL,
            remote_timestamp DATETIME NOT NULL,
            resolution TEXT NOT NULL,
            detected_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_order ON sync_queue(timestamp, id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_task_id ON sync_queue(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conflict_log_task_id ON conflict_log(task_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// taskColumnMigrations are applied in order. Every column carries a default so
// rows written before it existed stay readable; is_synced defaults to 1
// because such rows predate sync tracking.
var taskColumnMigrations = []struct {
	column     string
	definition string
}{
	{"photo_path", "TEXT"},
	{"completed_at", "DATETIME"},
	{"completed_by", "TEXT"},
	{"latitude", "REAL"},
	{"longitude", "REAL"},
	{"location_name", "TEXT"},
	{"is_synced", "BOOLEAN NOT NULL DEFAULT 1"},
	{"last_modified", "DATETIME"},
}

func (db *DB) migrate() error {
	for _, m := range taskColumnMigrations {
		if err := db.ensureColumn("tasks", m.column, m.definition); err != nil {
			return err
		}
	}

	// SQLite only allows constant defaults in ALTER TABLE, so last_modified is
	// backfilled with the migration time here.
	res, err := db.Exec(`UPDATE tasks SET last_modified = ? WHERE last_modified IS NULL`, db.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to backfill last_modified: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		db.logger.Info().Int64("rows", n).Msg("Backfilled last_modified for pre-existing tasks")
	}
	return nil
}

func (db *DB) ensureColumn(table, column, definition string) error {
	query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(query); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			return nil
		}
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}
	db.logger.Info().Str("table", table).Str("column", column).Msg("Added column")
	return nil
}

// withTx runs fn inside a transaction and commits when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
