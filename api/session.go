package api

import (
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/screenshot-taker/capture"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
)

type urlRequest struct {
	URL string `json:"url"`
}

// bindURL reads an optional {"url": ...} body. An empty body means no URL.
func bindURL(c *gin.Context) (string, bool) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondBadRequest(c, "invalid request body")
		return "", false
	}
	return req.URL, true
}

// CaptureResponse is returned by the capture endpoints. Entry is nil when the
// request opened a session instead of capturing.
type CaptureResponse struct {
	Session capture.Snapshot `json:"session"`
	Entry   *gallery.Entry   `json:"entry,omitempty"`
	Started bool             `json:"started"`
}

// GetSession handles GET /api/session
func (h *Handlers) GetSession(c *gin.Context) {
	RespondData(c, h.server.Controller().Snapshot())
}

// StartSession handles POST /api/session/start
func (h *Handlers) StartSession(c *gin.Context) {
	url, ok := bindURL(c)
	if !ok {
		return
	}

	snap, err := h.server.Controller().StartSession(c.Request.Context(), url)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondData(c, snap)
}

// Capture handles POST /api/session/capture. Without a live session it opens
// one on the given URL (a blank page when empty) instead of capturing.
func (h *Handlers) Capture(c *gin.Context) {
	url, ok := bindURL(c)
	if !ok {
		return
	}

	ctrl := h.server.Controller()
	if !ctrl.Snapshot().State.Live() {
		snap, err := ctrl.StartSession(c.Request.Context(), url)
		if err != nil {
			respondErr(c, err)
			return
		}
		RespondData(c, CaptureResponse{Session: snap, Started: true})
		return
	}

	h.capture(c, false)
}

// CaptureMobile handles POST /api/session/capture-mobile
func (h *Handlers) CaptureMobile(c *gin.Context) {
	h.capture(c, true)
}

func (h *Handlers) capture(c *gin.Context, mobile bool) {
	ctrl := h.server.Controller()
	started := time.Now()

	do := ctrl.Capture
	if mobile {
		do = ctrl.CaptureMobile
	}
	entry, err := do(c.Request.Context())
	h.server.Metrics().ObserveCapture(mobile, started, err)

	if err != nil {
		log.Warn().Err(err).Bool("mobile", mobile).Msg("capture request failed")
		respondErr(c, err)
		return
	}
	RespondData(c, CaptureResponse{Session: ctrl.Snapshot(), Entry: &entry})
}

// Navigate handles POST /api/session/navigate
func (h *Handlers) Navigate(c *gin.Context) {
	url, ok := bindURL(c)
	if !ok {
		return
	}
	if url == "" {
		RespondBadRequest(c, "url is required")
		return
	}

	if err := h.server.Controller().Navigate(c.Request.Context(), url); err != nil {
		respondErr(c, err)
		return
	}
	RespondData(c, h.server.Controller().Snapshot())
}

// StopSession handles POST /api/session/stop
func (h *Handlers) StopSession(c *gin.Context) {
	if err := h.server.Controller().Stop(c.Request.Context()); err != nil {
		respondErr(c, err)
		return
	}
	RespondData(c, h.server.Controller().Snapshot())
}
