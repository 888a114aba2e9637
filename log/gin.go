package log

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKeyHijacked marks a gin context whose connection was taken over
// by a websocket upgrade.
const ContextKeyHijacked = "connection_hijacked"

// MarkHijacked must be called before websocket.Accept so the request logger
// never touches the hijacked writer.
func MarkHijacked(c *gin.Context) {
	c.Set(ContextKeyHijacked, true)
}

// IsHijacked reports whether MarkHijacked was called for this request.
func IsHijacked(c *gin.Context) bool {
	hijacked, exists := c.Get(ContextKeyHijacked)
	return exists && hijacked.(bool)
}

// GinLogger returns a Gin middleware that logs requests using zerolog.
// Polling endpoints (metrics, content fetches) are logged at debug level.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		// Touching c.Writer after a hijack makes net/http complain.
		if IsHijacked(c) {
			return
		}

		status := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		event := Info()
		switch {
		case status >= 500:
			event = Error()
		case status >= 400:
			event = Warn()
		case isQuiet(c.Request.URL.Path):
			event = Debug()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP())

		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			event.Str("error", msg)
		}

		event.Msg("request")
	}
}

func isQuiet(path string) bool {
	return path == "/metrics" || strings.HasSuffix(path, "/content")
}
