package api

import (
	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/screenshot-taker/selection"
)

// SelectionResponse is the selection in display order
type SelectionResponse struct {
	IDs    []int64 `json:"ids"`
	Anchor *int64  `json:"anchor,omitempty"`
}

func (h *Handlers) selectionResponse() SelectionResponse {
	sel := h.server.Selection()
	resp := SelectionResponse{IDs: sel.Selected()}
	if anchor, ok := sel.Anchor(); ok {
		resp.Anchor = &anchor
	}
	return resp
}

// GetSelection handles GET /api/selection
func (h *Handlers) GetSelection(c *gin.Context) {
	RespondData(c, h.selectionResponse())
}

type toggleRequest struct {
	ID int64 `json:"id" binding:"required"`
	// Extend selects the range from the anchor (shift-click)
	Extend bool `json:"extend"`
}

// ToggleSelection handles POST /api/selection/toggle
func (h *Handlers) ToggleSelection(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "id is required")
		return
	}
	if _, found := h.server.Store().Get(req.ID); !found {
		RespondNotFound(c, "screenshot not found")
		return
	}
	h.server.Selection().Toggle(req.ID, req.Extend)
	RespondData(c, h.selectionResponse())
}

type rubberBandRequest struct {
	Drag  selection.Bounds `json:"drag"`
	Cards []selection.Card `json:"cards"`
}

// SelectByRubberBand handles POST /api/selection/rubber-band. The client
// sends the drag rectangle and the on-screen bounds of every card.
func (h *Handlers) SelectByRubberBand(c *gin.Context) {
	var req rubberBandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "invalid request body")
		return
	}
	h.server.Selection().SelectByIntersection(req.Drag, req.Cards)
	RespondData(c, h.selectionResponse())
}

// AddSelection handles POST /api/selection/add with {"ids": [...]}
func (h *Handlers) AddSelection(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "ids are required")
		return
	}
	h.server.Selection().Add(req.IDs...)
	RespondData(c, h.selectionResponse())
}

// ClearSelection handles DELETE /api/selection
func (h *Handlers) ClearSelection(c *gin.Context) {
	h.server.Selection().Clear()
	RespondData(c, h.selectionResponse())
}
