package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
	"github.com/xiaoyuanzhu-com/screenshot-taker/notifications"
)

// EventsWebSocket handles GET /api/events/ws. It pushes the same events as
// the SSE stream, one JSON text message each. Client messages are ignored.
func (h *Handlers) EventsWebSocket(c *gin.Context) {
	// Gin wraps the response writer to track state, but WebSocket needs the raw writer
	var w http.ResponseWriter = c.Writer
	if unwrapper, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = unwrapper.Unwrap()
	}

	log.MarkHijacked(c)
	conn, err := websocket.Accept(w, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Local control UI, origin checks are left to the proxy
		CompressionMode:    websocket.CompressionContextTakeover,
	})
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Abort Gin context to prevent middleware from writing headers on hijacked connection
	c.Abort()

	// Gin's request context doesn't cancel when the WebSocket closes
	ctx, cancel := context.WithCancel(h.server.ShutdownContext())
	defer cancel()

	events, unsubscribe := h.server.Notifications().Subscribe()
	defer unsubscribe()

	// Reader: detects the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				status := websocket.CloseStatus(err)
				if status == websocket.StatusGoingAway ||
					status == websocket.StatusNormalClosure ||
					status == websocket.StatusNoStatusRcvd {
					log.Debug().Int("closeStatus", int(status)).Msg("events WebSocket closed normally")
				} else if ctx.Err() == nil {
					log.Info().Err(err).Msg("events WebSocket read error")
				}
				return
			}
		}
	}()

	if err := writeEvent(ctx, conn, notifications.Event{
		Type:      notifications.EventConnected,
		Timestamp: time.Now().UnixMilli(),
		Data:      h.server.Controller().Snapshot(),
	}); err != nil {
		return
	}

	pingTicker := time.NewTicker(heartbeatInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeEvent(ctx, conn, event); err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Msg("WebSocket write failed")
				}
				return
			}
		case <-pingTicker.C:
			if err := conn.Ping(ctx); err != nil {
				log.Debug().Err(err).Msg("WebSocket ping failed")
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, event notifications.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
