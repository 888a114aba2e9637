package server

import (
	"fmt"
	"time"

	"github.com/xiaoyuanzhu-com/screenshot-taker/capture"
	"github.com/xiaoyuanzhu-com/screenshot-taker/config"
	"github.com/xiaoyuanzhu-com/screenshot-taker/db"
	"github.com/xiaoyuanzhu-com/screenshot-taker/export"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
	"github.com/xiaoyuanzhu-com/screenshot-taker/importer"
	"github.com/xiaoyuanzhu-com/screenshot-taker/raster"
)

// Config holds server configuration
type Config struct {
	// Server infrastructure (immutable, requires restart)
	Port int
	Host string
	Env  string // "development" or "production"

	// Paths (immutable, requires restart)
	DatabasePath  string
	ScreenshotDir string
	InboxDir      string
	ProfileDir    string
	CaptureDir    string

	// Capture process
	CaptureWorker        []string
	CaptureLaunchTimeout time.Duration
	CaptureTimeout       time.Duration
	CaptureNavTimeout    time.Duration
	CaptureHeadless      bool
	// Launcher overrides the subprocess launcher built from CaptureWorker
	Launcher capture.Launcher

	// Gallery
	GalleryLoadMode      string
	GalleryReplayWorkers int

	// Inbox import
	InboxWatch   bool
	InboxConvert string

	// OSS export
	OSSRegion          string
	OSSBucket          string
	OSSAccessKeyID     string
	OSSAccessKeySecret string
	OSSPrefix          string

	// Debug settings
	DBLogQueries bool
}

// FromAppConfig copies the environment-derived configuration
func FromAppConfig(c *config.Config) *Config {
	return &Config{
		Port:                 c.Port,
		Host:                 c.Host,
		Env:                  c.Env,
		DatabasePath:         c.DatabasePath,
		ScreenshotDir:        c.ScreenshotDir,
		InboxDir:             c.InboxDir,
		ProfileDir:           c.ProfileDir,
		CaptureDir:           c.CaptureDir,
		CaptureWorker:        c.CaptureWorker,
		CaptureLaunchTimeout: c.CaptureLaunchTimeout,
		CaptureTimeout:       c.CaptureTimeout,
		CaptureNavTimeout:    c.CaptureNavTimeout,
		CaptureHeadless:      c.CaptureHeadless,
		GalleryLoadMode:      c.GalleryLoadMode,
		GalleryReplayWorkers: c.GalleryReplayWorkers,
		InboxWatch:           c.InboxWatch,
		InboxConvert:         c.InboxConvert,
		OSSRegion:            c.OSSRegion,
		OSSBucket:            c.OSSBucket,
		OSSAccessKeyID:       c.OSSAccessKeyID,
		OSSAccessKeySecret:   c.OSSAccessKeySecret,
		OSSPrefix:            c.OSSPrefix,
		DBLogQueries:         c.DBLogQueries,
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// ToDBConfig converts server config to database config
func (c *Config) ToDBConfig() db.Config {
	return db.Config{
		Path:            c.DatabasePath,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 0, // Never expire
		LogQueries:      c.DBLogQueries,
	}
}

// ToGalleryConfig converts server config to screenshot store config
func (c *Config) ToGalleryConfig() gallery.Config {
	mode := gallery.LoadEager
	if c.GalleryLoadMode == string(gallery.LoadLazy) {
		mode = gallery.LoadLazy
	}
	return gallery.Config{
		Dir:      c.ScreenshotDir,
		LoadMode: mode,
	}
}

// ToImporterConfig converts server config to inbox importer config
func (c *Config) ToImporterConfig() importer.Config {
	cfg := importer.Config{Dir: c.InboxDir}
	if c.InboxConvert == string(raster.FormatJPEG) {
		cfg.Convert = raster.FormatJPEG
	}
	return cfg
}

// ToOSSConfig converts server config to the cloud export sink config
func (c *Config) ToOSSConfig() export.OSSConfig {
	return export.OSSConfig{
		Region:          c.OSSRegion,
		Bucket:          c.OSSBucket,
		AccessKeyID:     c.OSSAccessKeyID,
		AccessKeySecret: c.OSSAccessKeySecret,
		Prefix:          c.OSSPrefix,
	}
}

// ToLauncher returns the capture process launcher. The worker command gets
// the profile, output and timeout flags before the URL argument.
func (c *Config) ToLauncher() capture.Launcher {
	if c.Launcher != nil {
		return c.Launcher
	}
	command := append([]string{}, c.CaptureWorker...)
	if len(command) > 0 {
		command = append(command,
			"--profile-dir", c.ProfileDir,
			"--out-dir", c.CaptureDir,
			fmt.Sprintf("--headless=%t", c.CaptureHeadless),
			"--nav-timeout", c.CaptureNavTimeout.String(),
		)
	}
	return capture.NewSubprocessLauncher(capture.SubprocessConfig{Command: command})
}

// ToCaptureOptions converts server config to controller options. Observers
// and the ingester are wired by the server.
func (c *Config) ToCaptureOptions() capture.Options {
	return capture.Options{
		Launcher:        c.ToLauncher(),
		LaunchTimeout:   c.CaptureLaunchTimeout,
		CaptureTimeout:  c.CaptureTimeout,
		NavigateTimeout: c.CaptureNavTimeout,
	}
}
