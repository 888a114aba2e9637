package db

import (
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
)

// Migration is one schema step. Up runs inside the transaction that also
// records the new version, so a failed step leaves the schema untouched.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is populated by the migration_*.go files
var migrations []Migration

// RegisterMigration adds a migration to the list
func RegisterMigration(m Migration) {
	migrations = append(migrations, m)
}

const schemaVersionTable = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL,
		description TEXT
	)`

func schemaVersion(q interface {
	QueryRow(query string, args ...any) *sql.Row
}) (int, error) {
	var version int
	err := q.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

func runMigrations(conn *sql.DB) error {
	if _, err := conn.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := schemaVersion(conn)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	pending := slices.Clone(migrations)
	slices.SortFunc(pending, func(a, b Migration) int { return a.Version - b.Version })

	for _, m := range pending {
		if m.Version <= current {
			continue
		}
		log.Info().Int("version", m.Version).Str("description", m.Description).Msg("applying migration")

		if err := applyMigration(conn, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
	}
	return nil
}

func applyMigration(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.Up(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_version (version, applied_at, description) VALUES (?, ?, ?)",
		m.Version, time.Now().UnixMilli(), m.Description,
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// CurrentVersion returns the current database schema version
func (d *DB) CurrentVersion() (int, error) {
	return schemaVersion(d.conn)
}
