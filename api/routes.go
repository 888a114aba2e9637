package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *Handlers) {
	// API group
	api := r.Group("/api")

	// Capture session
	api.GET("/session", h.GetSession)
	api.POST("/session/start", h.StartSession)
	api.POST("/session/capture", h.Capture)
	api.POST("/session/capture-mobile", h.CaptureMobile)
	api.POST("/session/navigate", h.Navigate)
	api.POST("/session/stop", h.StopSession)

	// Screenshots - static routes first
	api.GET("/screenshots", h.ListScreenshots)
	api.POST("/screenshots", h.UploadScreenshot)
	api.DELETE("/screenshots", h.ClearScreenshots)
	api.GET("/screenshots/load-report", h.GetLoadReport)
	api.POST("/screenshots/delete", h.DeleteScreenshots)
	api.POST("/screenshots/reorder", h.ReorderScreenshots)
	api.POST("/screenshots/import", h.ImportScreenshot)
	api.GET("/screenshots/:id", h.GetScreenshot)
	api.DELETE("/screenshots/:id", h.DeleteScreenshot)
	api.GET("/screenshots/:id/content", h.GetScreenshotContent)
	api.GET("/screenshots/:id/thumbnail", h.GetScreenshotThumbnail)
	api.POST("/screenshots/:id/crop", h.CropScreenshot)

	// Selection
	api.GET("/selection", h.GetSelection)
	api.POST("/selection/toggle", h.ToggleSelection)
	api.POST("/selection/rubber-band", h.SelectByRubberBand)
	api.POST("/selection/add", h.AddSelection)
	api.DELETE("/selection", h.ClearSelection)

	// Export
	api.POST("/export/folder", h.ExportFolder)
	api.GET("/export/archive", h.ExportArchive)
	api.GET("/export/pdf", h.ExportPDF)
	api.POST("/export/oss", h.ExportOSS)

	// Live updates
	api.GET("/notifications/stream", h.NotificationStream)
	api.GET("/events/ws", h.EventsWebSocket)

	// Prometheus scrape endpoint
	r.GET("/metrics", gin.WrapH(h.server.Metrics().Handler()))
}
