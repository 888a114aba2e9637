package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", "test.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpen_AppliesMigrations(t *testing.T) {
	d := openTestDB(t)

	version, err := d.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestBlob_RoundTripAndReplace(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	_, found, err := d.GetBlob(ctx, "screenshots")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, d.PutBlob(ctx, "screenshots", []byte(`[1]`)))
	require.NoError(t, d.PutBlob(ctx, "screenshots", []byte(`[1,2]`)))

	value, found, err := d.GetBlob(ctx, "screenshots")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[1,2]`, string(value))
}

func TestClose_Idempotent(t *testing.T) {
	d, err := Open(Config{Path: filepath.Join(t.TempDir(), "x.sqlite")})
	require.NoError(t, err)

	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())
}
