package db

import "database/sql"

func init() {
	RegisterMigration(Migration{
		Version:     1,
		Description: "Key/value blob table for gallery metadata",
		Up:          migration001Blobs,
	})
}

func migration001Blobs(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS blobs (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	return err
}
