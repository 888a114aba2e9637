package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetBlob returns the value stored under key. found is false when the key
// has never been written.
func (d *DB) GetBlob(ctx context.Context, key string) (value []byte, found bool, err error) {
	const query = "SELECT value FROM blobs WHERE key = ?"
	d.logQuery("get", query, key)

	err = d.conn.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// PutBlob replaces the value stored under key
func (d *DB) PutBlob(ctx context.Context, key string, value []byte) error {
	const query = `
		INSERT INTO blobs (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	d.logQuery("put", query, key)

	_, err := d.conn.ExecContext(ctx, query, key, value, time.Now().UnixMilli())
	return err
}
