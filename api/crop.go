package api

import (
	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/screenshot-taker/crop"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
)

type cropRequest struct {
	Rect      crop.Rect `json:"rect"`
	Displayed crop.Size `json:"displayed"`
	// ApplyToSelected replays the crop on the other selected screenshots when
	// this one is selected too
	ApplyToSelected bool `json:"applyToSelected"`
}

// CropScreenshot handles POST /api/screenshots/:id/crop
func (h *Handlers) CropScreenshot(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req cropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}
	if req.Displayed.W <= 0 || req.Displayed.H <= 0 {
		RespondValidationError(c, "invalid crop request", []ErrorDetail{
			{Field: "displayed", Message: "displayed size must be positive"},
		})
		return
	}
	if _, found := h.server.Store().Get(id); !found {
		RespondNotFound(c, "screenshot not found")
		return
	}

	cropReq := crop.Request{ID: id, Rect: req.Rect, Displayed: req.Displayed}
	if req.ApplyToSelected {
		cropReq.Others = h.server.Selection().CropTargets(id)
	}

	report, err := h.server.Cropper().Apply(c.Request.Context(), cropReq)
	if err != nil {
		respondErr(c, err)
		return
	}
	h.server.Metrics().ObserveCrop(report)

	if len(report.Results) == 0 {
		details := make([]ErrorDetail, 0, len(report.Failed))
		for _, f := range report.Failed {
			details = append(details, ErrorDetail{Field: idString(f.ID), Message: f.Err})
		}
		RespondUnprocessable(c, "crop failed", details)
		return
	}
	if len(report.Failed) > 0 {
		log.Warn().Int64("id", id).Int("failed", len(report.Failed)).Msg("crop replay partially failed")
	}
	RespondData(c, report)
}
