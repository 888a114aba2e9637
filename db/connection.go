package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
)

// DB wraps the sqlite connection used for persisted application state
type DB struct {
	conn   *sql.DB
	cfg    Config
	closed bool
	mu     sync.Mutex
}

// Open opens (creating if needed) the database at cfg.Path and applies migrations
func Open(cfg Config) (*DB, error) {
	if err := ensureDatabaseDirectory(cfg.Path); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL, foreign keys and a busy timeout so the single writer rarely blocks readers
	dsn := cfg.Path + "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=-64000"

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Path, err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(max(cfg.MaxIdleConns, 1))
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Info().Str("path", cfg.Path).Msg("database initialized")
	return &DB{conn: conn, cfg: cfg}, nil
}

// Close closes the database connection. Safe to call twice.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.conn.Close()
}

// Conn exposes the raw connection for maintenance queries
func (d *DB) Conn() *sql.DB {
	return d.conn
}

func ensureDatabaseDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		log.Info().Str("dir", dir).Msg("created database directory")
	}
	return nil
}

func (d *DB) logQuery(kind, query string, args ...any) {
	if !d.cfg.LogQueries {
		return
	}
	log.Debug().
		Str("kind", kind).
		Str("sql", query).
		Interface("params", args).
		Msg("db query")
}
