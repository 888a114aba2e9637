package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/screenshot-taker/capture"
	"github.com/xiaoyuanzhu-com/screenshot-taker/crop"
	"github.com/xiaoyuanzhu-com/screenshot-taker/db"
	"github.com/xiaoyuanzhu-com/screenshot-taker/export"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
	"github.com/xiaoyuanzhu-com/screenshot-taker/importer"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
	"github.com/xiaoyuanzhu-com/screenshot-taker/metrics"
	"github.com/xiaoyuanzhu-com/screenshot-taker/notifications"
	"github.com/xiaoyuanzhu-com/screenshot-taker/raster"
	"github.com/xiaoyuanzhu-com/screenshot-taker/selection"
)

// Server owns and coordinates all application components
type Server struct {
	cfg *Config

	// Components (owned by server)
	database     *db.DB
	notifService *notifications.Service
	metrics      *metrics.Metrics
	codec        *raster.Codec
	store        *gallery.Store
	selection    *selection.Model
	cropper      *crop.Engine
	controller   *capture.Controller
	importer     *importer.Importer
	watcher      *importer.Watcher
	exporter     *export.Exporter
	ossSink      *export.OSSSink

	loadReport gallery.LoadReport

	// Shutdown context - cancelled when server is shutting down.
	// Long-running handlers (WebSocket, SSE) should listen to this.
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	// HTTP
	router *gin.Engine
	http   *http.Server
}

// New creates a new server with all components initialized
func New(cfg *Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:            cfg,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	// 1. Open database
	log.Info().Msg("initializing database")
	database, err := db.Open(cfg.ToDBConfig())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s.database = database

	// 2. Notifications and metrics
	s.notifService = notifications.NewService()
	s.metrics = metrics.New()
	s.codec = raster.NewCodec()

	// 3. Screenshot store, restored from the metadata blob
	log.Info().Str("dir", cfg.ScreenshotDir).Str("mode", cfg.GalleryLoadMode).Msg("initializing screenshot store")
	s.store = gallery.NewStore(cfg.ToGalleryConfig(), s.database, gallery.DirFileStore{})
	report, err := s.store.LoadAll(ctx)
	if err != nil {
		// A corrupt collection starts empty and is rewritten on the next change
		log.Error().Err(err).Msg("failed to load screenshots, starting with an empty gallery")
	}
	s.loadReport = report
	s.metrics.ObserveLoad(report)

	// 4. Selection and crop engine over the store
	s.selection = selection.New(s.store)
	s.cropper = crop.NewEngine(s.store, s.codec, cfg.GalleryReplayWorkers)

	// 5. Session controller
	log.Info().Msg("initializing capture controller")
	opts := cfg.ToCaptureOptions()
	opts.Ingester = s.store
	opts.OnStatus = s.metrics.ObserveStatus
	notifySession := s.notifService.SessionObserver(func() capture.Snapshot { return s.controller.Snapshot() })
	opts.OnEvent = func(ev capture.Event) {
		s.metrics.ObserveEvent(ev)
		notifySession(ev)
	}
	s.controller = capture.NewController(opts)

	// 6. Inbox importer
	s.importer = importer.New(cfg.ToImporterConfig(), s.store, s.codec)
	if cfg.InboxWatch {
		s.watcher = importer.NewWatcher(s.importer, 0)
	}

	// 7. Export
	s.exporter = export.New(s.store, s.codec)
	s.ossSink = export.NewOSSSink(s.store, cfg.ToOSSConfig())

	// 8. Wire service connections
	s.connectServices()

	// 9. Setup HTTP router
	s.setupRouter()

	log.Info().Msg("server initialized successfully")
	return s, nil
}

// connectServices wires up event handlers between services
func (s *Server) connectServices() {
	// Store → UI, metrics and selection
	notifyGallery := s.notifService.GalleryObserver(s.store)
	s.store.OnChange(func(c gallery.Change) {
		notifyGallery(c)
		s.metrics.SetGalleryEntries(s.store.Len())

		if c.Kind == gallery.ChangeDeleted || c.Kind == gallery.ChangeCleared || c.Kind == gallery.ChangeLoaded {
			s.selection.Prune()
		}
	})

	// Selection → UI
	s.selection.OnChange(func() {
		s.notifService.NotifySelectionChanged(s.selection.Selected())
	})
}

// setupRouter creates and configures the Gin router
func (s *Server) setupRouter() {
	// Set Gin mode
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router
	s.router = gin.New()

	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(log.GinLogger())

	// CORS for development
	if s.cfg.IsDevelopment() {
		s.router.Use(s.corsMiddleware())
	}

	// Security headers (production only)
	if !s.cfg.IsDevelopment() {
		s.router.Use(s.securityHeadersMiddleware())
	}

	// Gzip compression (skip streaming and binary endpoints)
	s.router.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{
			"/api/notifications/stream", // SSE - needs streaming
			"/api/events/ws",            // WebSocket - protocol upgrade
			"/api/export/",              // zip and pdf are already compressed
		}),
		gzip.WithExcludedPathsRegexs([]string{`^/api/screenshots/\d+/(content|thumbnail)$`}),
	))

	// Trust proxy headers
	s.router.SetTrustedProxies(nil)

	// Ignore .well-known requests
	s.router.GET("/.well-known/*path", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	// Note: API routes should be set up by calling code (main.go)
	// to avoid import cycles
}

// corsMiddleware handles CORS for development environments
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:12345": true,
			"http://localhost:12346": true,
		}

		if allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Screenshot-Missing, X-Export-Failed")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// securityHeadersMiddleware adds security headers for production
func (s *Server) securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Header("X-Content-Type-Options", "nosniff")

		// Clickjacking protection
		c.Header("X-Frame-Options", "SAMEORIGIN")

		// Cross-Origin-Opener-Policy for origin isolation
		c.Header("Cross-Origin-Opener-Policy", "same-origin")

		// Referrer policy - don't leak full URLs to other origins
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		c.Next()
	}
}

// Start starts all background services and the HTTP server
func (s *Server) Start() error {
	log.Info().Msg("starting server components")

	// Start inbox watcher
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			return fmt.Errorf("failed to start inbox watcher: %w", err)
		}
	}

	// Create HTTP server
	s.http = &http.Server{
		Addr:     fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:  s.router,
		ErrorLog: log.StdErrorLogger(), // Route Go's internal HTTP errors through zerolog
	}

	log.Info().
		Str("addr", s.http.Addr).
		Str("env", s.cfg.Env).
		Msg("HTTP server starting")

	// Start HTTP server (blocks)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	// 1. Cancel the shutdown context to signal all long-running handlers (WebSocket, SSE)
	log.Info().Msg("signaling handlers to stop")
	s.shutdownCancel()

	// Give handlers a moment to process the cancellation and close connections.
	// This prevents "response.WriteHeader on hijacked connection" warnings.
	time.Sleep(100 * time.Millisecond)

	// 2. Close notification service to cleanly disconnect SSE clients
	s.notifService.Shutdown()

	// 3. Shutdown HTTP server (stop accepting new requests and wait for existing ones)
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// 4. Stop the capture process, if one is running
	if err := s.controller.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("capture session shutdown error")
	}

	// 5. Stop background services (in reverse order of startup)
	if s.watcher != nil {
		s.watcher.Stop()
	}

	// Close database last
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			log.Error().Err(err).Msg("database close error")
			return err
		}
	}

	log.Info().Msg("server shutdown complete")
	return nil
}

// Component accessors for API handlers
func (s *Server) DB() *db.DB                            { return s.database }
func (s *Server) Notifications() *notifications.Service { return s.notifService }
func (s *Server) Metrics() *metrics.Metrics             { return s.metrics }
func (s *Server) Raster() *raster.Codec                 { return s.codec }
func (s *Server) Store() *gallery.Store                 { return s.store }
func (s *Server) Selection() *selection.Model           { return s.selection }
func (s *Server) Cropper() *crop.Engine                 { return s.cropper }
func (s *Server) Controller() *capture.Controller       { return s.controller }
func (s *Server) Importer() *importer.Importer          { return s.importer }
func (s *Server) Exporter() *export.Exporter            { return s.exporter }
func (s *Server) OSS() *export.OSSSink                  { return s.ossSink }
func (s *Server) LoadReport() gallery.LoadReport        { return s.loadReport }
func (s *Server) Router() *gin.Engine                   { return s.router }
func (s *Server) ShutdownContext() context.Context      { return s.shutdownCtx }
