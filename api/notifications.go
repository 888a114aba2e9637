package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
	"github.com/xiaoyuanzhu-com/screenshot-taker/notifications"
)

const heartbeatInterval = 30 * time.Second

// NotificationStream handles GET /api/notifications/stream (SSE)
func (h *Handlers) NotificationStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering

	// Subscribe to notifications
	events, unsubscribe := h.server.Notifications().Subscribe()
	defer unsubscribe()

	// Send initial connected event with the current session state
	sendSSEEvent(c.Writer, notifications.Event{
		Type:      notifications.EventConnected,
		Timestamp: time.Now().UnixMilli(),
		Data:      h.server.Controller().Snapshot(),
	})
	c.Writer.Flush()

	log.Debug().Msg("client connected to notification stream")

	// Heartbeat ticker
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	shutdown := h.server.ShutdownContext()

	// Stream events
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			sendSSEEvent(c.Writer, event)
			c.Writer.Flush()

		case <-ticker.C:
			// Send heartbeat comment
			fmt.Fprintf(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			log.Debug().Msg("client disconnected from notification stream")
			return

		case <-shutdown.Done():
			return
		}
	}
}

func sendSSEEvent(w io.Writer, event notifications.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
