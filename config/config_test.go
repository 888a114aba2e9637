package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SNAP_DATA_DIR", "/tmp/snap")
	t.Setenv("CAPTURE_WORKER", "")

	c := load()

	assert.Equal(t, 12480, c.Port)
	assert.Equal(t, filepath.Join("/tmp/snap", "app", "database.sqlite"), c.DatabasePath)
	assert.Equal(t, filepath.Join("/tmp/snap", "screenshots"), c.ScreenshotDir)
	assert.Equal(t, []string{"capture-worker"}, c.CaptureWorker)
	assert.Equal(t, 60*time.Second, c.CaptureTimeout)
	assert.True(t, c.IsDevelopment())
	assert.False(t, c.OSSEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CAPTURE_WORKER", "node resources/browser_session.js")
	t.Setenv("CAPTURE_TIMEOUT", "5s")
	t.Setenv("INBOX_WATCH", "false")
	t.Setenv("PORT", "not-a-number")
	t.Setenv("ENV", "production")

	c := load()

	assert.Equal(t, []string{"node", "resources/browser_session.js"}, c.CaptureWorker)
	assert.Equal(t, 5*time.Second, c.CaptureTimeout)
	assert.False(t, c.InboxWatch)
	assert.Equal(t, 12480, c.Port)
	assert.False(t, c.IsDevelopment())
}
