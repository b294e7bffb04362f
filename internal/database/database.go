package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sync_tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            operator_id TEXT NOT NULL,
            corp_id TEXT NOT NULL,
            total_staff INTEGER NOT NULL DEFAULT 0,
            success_count INTEGER NOT NULL DEFAULT 0,
            fail_count INTEGER NOT NULL DEFAULT 0,
            total_customers INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'pending',
            error_message TEXT,
            created_at DATETIME NOT NULL,
            started_at DATETIME,
            completed_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS sync_task_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_id INTEGER NOT NULL,
            staff_id TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            customer_count INTEGER NOT NULL DEFAULT 0,
            added_count INTEGER NOT NULL DEFAULT 0,
            error_message TEXT,
            started_at DATETIME,
            completed_at DATETIME,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS customers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            operator_id TEXT NOT NULL,
            corp_id TEXT NOT NULL,
            staff_id TEXT NOT NULL,
            external_id TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            position TEXT NOT NULL DEFAULT '',
            avatar TEXT NOT NULL DEFAULT '',
            corp_name TEXT NOT NULL DEFAULT '',
            corp_full_name TEXT NOT NULL DEFAULT '',
            type INTEGER NOT NULL DEFAULT 0,
            gender INTEGER NOT NULL DEFAULT 0,
            union_id TEXT NOT NULL DEFAULT '',
            remark TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            contact_time INTEGER NOT NULL DEFAULT 0,
            tag_ids TEXT NOT NULL DEFAULT '[]',
            remark_corp_name TEXT NOT NULL DEFAULT '',
            remark_mobiles TEXT NOT NULL DEFAULT '[]',
            add_way INTEGER NOT NULL DEFAULT 0,
            state TEXT NOT NULL DEFAULT '',
            channel_nickname TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            UNIQUE(operator_id, corp_id, staff_id, external_id)
        )`,
		`CREATE TABLE IF NOT EXISTS staff_accounts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            operator_id TEXT NOT NULL,
            corp_id TEXT NOT NULL,
            staff_id TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            UNIQUE(operator_id, corp_id, staff_id)
        )`,
		`CREATE TABLE IF NOT EXISTS settings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            operator_id TEXT NOT NULL,
            key TEXT NOT NULL,
            value TEXT NOT NULL,
            updated_at DATETIME NOT NULL,
            UNIQUE(operator_id, key)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_sync_tasks_operator ON sync_tasks(operator_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_tasks_status ON sync_tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_task_items_task_id ON sync_task_items(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_task_items_status ON sync_task_items(task_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_scope ON customers(operator_id, corp_id)`,
		`CREATE INDEX IF NOT EXISTS idx_staff_scope ON staff_accounts(operator_id, corp_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
