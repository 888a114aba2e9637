package api

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
	"github.com/xiaoyuanzhu-com/screenshot-taker/protocol"
	"github.com/xiaoyuanzhu-com/screenshot-taker/raster"
)

// HeaderMissing marks a placeholder served for unreadable content
const HeaderMissing = "X-Screenshot-Missing"

const defaultThumbnailWidth = 320

var (
	placeholderOnce sync.Once
	placeholderPNG  []byte
)

// placeholder is a flat grey card shown in place of missing content
func placeholder() []byte {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 320, 200))
		grey := color.RGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}
		for y := 0; y < 200; y++ {
			for x := 0; x < 320; x++ {
				img.SetRGBA(x, y, grey)
			}
		}
		var buf bytes.Buffer
		_ = png.Encode(&buf, img)
		placeholderPNG = buf.Bytes()
	})
	return placeholderPNG
}

// ScreenshotItem is an entry with its card title: the host of the captured
// page, or the source label when it is not a URL
type ScreenshotItem struct {
	gallery.Entry
	Title string `json:"title"`
}

func newScreenshotItem(e gallery.Entry) ScreenshotItem {
	return ScreenshotItem{Entry: e, Title: protocol.Hostname(e.SourceLabel)}
}

// ListScreenshotsResponse is the gallery in display order
type ListScreenshotsResponse struct {
	Screenshots []ScreenshotItem `json:"screenshots"`
	// LoadSummary reports records dropped at startup, empty when none were
	LoadSummary string `json:"loadSummary,omitempty"`
}

// ListScreenshots handles GET /api/screenshots
func (h *Handlers) ListScreenshots(c *gin.Context) {
	entries := h.server.Store().List()
	items := make([]ScreenshotItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, newScreenshotItem(e))
	}
	RespondData(c, ListScreenshotsResponse{
		Screenshots: items,
		LoadSummary: h.server.LoadReport().Summary(),
	})
}

// GetLoadReport handles GET /api/screenshots/load-report
func (h *Handlers) GetLoadReport(c *gin.Context) {
	RespondData(c, h.server.LoadReport())
}

// GetScreenshot handles GET /api/screenshots/:id
func (h *Handlers) GetScreenshot(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	entry, found := h.server.Store().Get(id)
	if !found {
		RespondNotFound(c, "screenshot not found")
		return
	}

	resp := struct {
		ScreenshotItem
		Prev     int64 `json:"prev,omitempty"`
		Next     int64 `json:"next,omitempty"`
		Selected bool  `json:"selected"`
	}{ScreenshotItem: newScreenshotItem(entry), Selected: h.server.Selection().Contains(id)}
	resp.Prev, resp.Next, _ = h.server.Store().Neighbors(id)

	RespondData(c, resp)
}

// GetScreenshotContent handles GET /api/screenshots/:id/content. Unreadable
// content is answered with a placeholder image and HeaderMissing set.
func (h *Handlers) GetScreenshotContent(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if _, found := h.server.Store().Get(id); !found {
		RespondNotFound(c, "screenshot not found")
		return
	}

	data, loaded := h.server.Store().EnsureLoaded(c.Request.Context(), id)
	c.Header("Cache-Control", "no-cache")
	if !loaded {
		c.Header(HeaderMissing, "1")
		c.Data(http.StatusOK, "image/png", placeholder())
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// GetScreenshotThumbnail handles GET /api/screenshots/:id/thumbnail?w=320
func (h *Handlers) GetScreenshotThumbnail(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	width := defaultThumbnailWidth
	if raw := c.Query("w"); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil || w <= 0 || w > 4096 {
			RespondBadRequest(c, "invalid thumbnail width")
			return
		}
		width = w
	}
	if _, found := h.server.Store().Get(id); !found {
		RespondNotFound(c, "screenshot not found")
		return
	}

	data, loaded := h.server.Store().EnsureLoaded(c.Request.Context(), id)
	c.Header("Cache-Control", "no-cache")
	if !loaded {
		c.Header(HeaderMissing, "1")
		c.Data(http.StatusOK, "image/png", placeholder())
		return
	}
	thumb, err := h.server.Raster().Thumbnail(data, width)
	if err != nil {
		c.Header(HeaderMissing, "1")
		c.Data(http.StatusOK, "image/png", placeholder())
		return
	}
	c.Data(http.StatusOK, "image/jpeg", thumb)
}

// DeleteScreenshot handles DELETE /api/screenshots/:id
func (h *Handlers) DeleteScreenshot(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.server.Store().Delete(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	RespondNoContent(c)
}

type idsRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

// DeleteScreenshots handles POST /api/screenshots/delete with {"ids": [...]}.
// Every id is attempted; failures are reported per id.
func (h *Handlers) DeleteScreenshots(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "ids are required")
		return
	}

	report := h.server.Store().DeleteMany(c.Request.Context(), req.IDs)
	if len(report.Failed) > 0 {
		RespondUnprocessable(c, report.Summary(), failureDetails(report.Failed))
		return
	}
	RespondData(c, report)
}

// ClearScreenshots handles DELETE /api/screenshots
func (h *Handlers) ClearScreenshots(c *gin.Context) {
	report, err := h.server.Store().ClearAll(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	h.server.Selection().Clear()

	if len(report.Failed) > 0 {
		RespondUnprocessable(c, report.Summary(), failureDetails(report.Failed))
		return
	}
	RespondData(c, report)
}

type reorderRequest struct {
	ID int64 `json:"id" binding:"required"`
	// BeforeID 0 moves the screenshot to the end
	BeforeID int64 `json:"beforeId"`
}

// ReorderScreenshots handles POST /api/screenshots/reorder
func (h *Handlers) ReorderScreenshots(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "id is required")
		return
	}
	if err := h.server.Selection().Reorder(c.Request.Context(), req.ID, req.BeforeID); err != nil {
		respondErr(c, err)
		return
	}
	RespondData(c, h.server.Store().IDs())
}

type importRequest struct {
	Path string `json:"path" binding:"required"`
}

// ImportScreenshot handles POST /api/screenshots/import. It takes a file
// produced by an external capture (e.g. the global hotkey) into the gallery.
func (h *Handlers) ImportScreenshot(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "path is required")
		return
	}

	entry, err := h.server.Importer().ProcessFile(c.Request.Context(), req.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			RespondNotFound(c, err.Error())
			return
		}
		respondErr(c, err)
		return
	}
	RespondCreated(c, entry, "/api/screenshots/"+idString(entry.ID))
}

// UploadScreenshot handles POST /api/screenshots with a raw image body
func (h *Handlers) UploadScreenshot(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<20))
	if err != nil {
		RespondBadRequest(c, "could not read body")
		return
	}
	if len(data) == 0 {
		RespondBadRequest(c, "empty body")
		return
	}
	if _, err := h.server.Raster().Dimensions(data); err != nil {
		RespondUnprocessable(c, "not a supported image: "+err.Error(), nil)
		return
	}

	label := c.DefaultQuery("label", "Upload")
	entry, err := h.server.Store().Append(c.Request.Context(), gallery.NewEntry{
		SourceLabel: label,
		Content:     data,
		Ext:         raster.DetectExtension(data),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondCreated(c, entry, "/api/screenshots/"+idString(entry.ID))
}
