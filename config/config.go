package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port int
	Host string
	Env  string // "development" or "production"

	// Data directory
	DataDir string

	// Derived paths
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

	// Gallery
	GalleryLoadMode      string // "eager" or "lazy"
	GalleryReplayWorkers int

	// Inbox import
	InboxWatch   bool
	InboxConvert string // "jpeg" or "none"

	// Aliyun OSS export
	OSSRegion          string
	OSSBucket          string
	OSSAccessKeyID     string
	OSSAccessKeySecret string
	OSSPrefix          string

	// Debug settings
	LogLevel     string
	DBLogQueries bool
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

// load reads configuration from environment variables
func load() *Config {
	dataDir := getEnv("SNAP_DATA_DIR", "./data")
	appDir := filepath.Join(dataDir, "app")

	return &Config{
		// Server
		Port: getEnvInt("PORT", 12480),
		Host: getEnv("HOST", "127.0.0.1"),
		Env:  getEnv("ENV", "development"),

		// Data
		DataDir:       dataDir,
		DatabasePath:  filepath.Join(appDir, "database.sqlite"),
		ScreenshotDir: filepath.Join(dataDir, "screenshots"),
		InboxDir:      filepath.Join(dataDir, "inbox"),
		ProfileDir:    filepath.Join(appDir, "browser-profile"),
		CaptureDir:    filepath.Join(appDir, "captures"),

		// Capture process
		CaptureWorker:        strings.Fields(getEnv("CAPTURE_WORKER", "capture-worker")),
		CaptureLaunchTimeout: getEnvDuration("CAPTURE_LAUNCH_TIMEOUT", 90*time.Second),
		CaptureTimeout:       getEnvDuration("CAPTURE_TIMEOUT", 60*time.Second),
		CaptureNavTimeout:    getEnvDuration("CAPTURE_NAV_TIMEOUT", 60*time.Second),
		CaptureHeadless:      getEnvBool("CAPTURE_HEADLESS", false),

		// Gallery
		GalleryLoadMode:      getEnv("GALLERY_LOAD_MODE", "eager"),
		GalleryReplayWorkers: getEnvInt("GALLERY_REPLAY_WORKERS", 4),

		// Inbox
		InboxWatch:   getEnvBool("INBOX_WATCH", true),
		InboxConvert: getEnv("INBOX_CONVERT", "jpeg"),

		// OSS
		OSSRegion:          getEnv("OSS_REGION", "oss-cn-beijing"),
		OSSBucket:          getEnv("OSS_BUCKET", ""),
		OSSAccessKeyID:     getEnv("OSS_ACCESS_KEY_ID", ""),
		OSSAccessKeySecret: getEnv("OSS_ACCESS_KEY_SECRET", ""),
		OSSPrefix:          getEnv("OSS_PREFIX", "screenshots"),

		// Debug
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DBLogQueries: getEnv("DB_LOG_QUERIES", "") == "1",
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// OSSEnabled reports whether cloud export credentials are configured
func (c *Config) OSSEnabled() bool {
	return c.OSSBucket != "" && c.OSSAccessKeyID != "" && c.OSSAccessKeySecret != ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
