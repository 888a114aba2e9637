package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/screenshot-taker/export"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
)

// HeaderExportFailed carries the number of screenshots left out of a download
const HeaderExportFailed = "X-Export-Failed"

type exportRequest struct {
	// IDs limits the export; empty means the selection, or everything when
	// nothing is selected
	IDs []int64 `json:"ids"`
	// Dir is the destination of a folder export
	Dir string `json:"dir"`
}

// exportEntries resolves ids to entries in display order
func (h *Handlers) exportEntries(ids []int64) []gallery.Entry {
	if len(ids) == 0 {
		ids = h.server.Selection().ExportTargets()
	}
	var entries []gallery.Entry
	for _, e := range h.server.Store().List() {
		if slices.Contains(ids, e.ID) {
			entries = append(entries, e)
		}
	}
	return entries
}

// queryIDs parses ?ids=1,2,3
func queryIDs(c *gin.Context) ([]int64, bool) {
	raw := c.Query("ids")
	if raw == "" {
		return nil, true
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			RespondBadRequest(c, "invalid id list")
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func exportFilename(ext string) string {
	return "screenshots_" + time.Now().Format("20060102_150405") + ext
}

// ExportFolder handles POST /api/export/folder
func (h *Handlers) ExportFolder(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondBadRequest(c, "invalid request body")
		return
	}
	if req.Dir == "" || !filepath.IsAbs(req.Dir) {
		RespondValidationError(c, "invalid export request", []ErrorDetail{
			{Field: "dir", Message: "an absolute destination directory is required"},
		})
		return
	}

	entries := h.exportEntries(req.IDs)
	if len(entries) == 0 {
		respondErr(c, export.ErrNothingToExport)
		return
	}

	report, err := h.server.Exporter().ToFolder(c.Request.Context(), req.Dir, entries)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondData(c, report)
}

// ExportArchive handles GET /api/export/archive?ids=...
func (h *Handlers) ExportArchive(c *gin.Context) {
	ids, ok := queryIDs(c)
	if !ok {
		return
	}
	entries := h.exportEntries(ids)
	if len(entries) == 0 {
		respondErr(c, export.ErrNothingToExport)
		return
	}

	var buf bytes.Buffer
	report, err := h.server.Exporter().WriteArchive(c.Request.Context(), &buf, entries)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+exportFilename(".zip")+`"`)
	c.Header(HeaderExportFailed, strconv.Itoa(len(report.Failed)))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// ExportPDF handles GET /api/export/pdf?ids=...
func (h *Handlers) ExportPDF(c *gin.Context) {
	ids, ok := queryIDs(c)
	if !ok {
		return
	}
	entries := h.exportEntries(ids)
	if len(entries) == 0 {
		respondErr(c, export.ErrNothingToExport)
		return
	}

	dir, err := os.MkdirTemp("", "screenshot-export-*")
	if err != nil {
		respondErr(c, err)
		return
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "screenshots.pdf")
	report, err := h.server.Exporter().WritePDF(c.Request.Context(), out, entries)
	if err != nil {
		respondErr(c, err)
		return
	}
	data, err := os.ReadFile(out)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+exportFilename(".pdf")+`"`)
	c.Header(HeaderExportFailed, strconv.Itoa(len(report.Failed)))
	c.Data(http.StatusOK, "application/pdf", data)
}

// ExportOSS handles POST /api/export/oss
func (h *Handlers) ExportOSS(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondBadRequest(c, "invalid request body")
		return
	}
	if !h.server.OSS().Enabled() {
		respondErr(c, export.ErrOSSDisabled)
		return
	}

	entries := h.exportEntries(req.IDs)
	if len(entries) == 0 {
		respondErr(c, export.ErrNothingToExport)
		return
	}

	report, err := h.server.OSS().Upload(c.Request.Context(), entries)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondData(c, report)
}
