package api

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/screenshot-taker/capture"
	"github.com/xiaoyuanzhu-com/screenshot-taker/crop"
	"github.com/xiaoyuanzhu-com/screenshot-taker/export"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
	"github.com/xiaoyuanzhu-com/screenshot-taker/raster"
)

// respondErr maps domain errors to the typed response helpers
func respondErr(c *gin.Context, err error) {
	var (
		launchErr  *capture.LaunchError
		navErr     *capture.NavigationError
		captureErr *capture.CaptureError
	)

	switch {
	case errors.Is(err, capture.ErrBusy):
		RespondBusy(c, err.Error())
	case errors.Is(err, capture.ErrSessionActive),
		errors.Is(err, capture.ErrInvalidState),
		errors.Is(err, capture.ErrSessionClosed):
		RespondConflict(c, err.Error())
	case errors.Is(err, capture.ErrProtocolTimeout),
		errors.Is(err, context.DeadlineExceeded):
		RespondTimeout(c, err.Error())
	case errors.As(err, &launchErr):
		RespondServiceUnavailable(c, err.Error())
	case errors.As(err, &navErr), errors.As(err, &captureErr):
		RespondUnprocessable(c, err.Error(), nil)
	case errors.Is(err, gallery.ErrNotFound):
		RespondNotFound(c, err.Error())
	case errors.Is(err, gallery.ErrUnavailable),
		errors.Is(err, crop.ErrEmptyRect),
		errors.Is(err, raster.ErrUnsupported),
		errors.Is(err, export.ErrNothingToExport):
		RespondUnprocessable(c, err.Error(), nil)
	case errors.Is(err, export.ErrOSSDisabled):
		RespondServiceUnavailable(c, err.Error())
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		RespondInternalError(c, err.Error())
	}
}

// failureDetails turns per-entry failures into error details
func failureDetails(failed []gallery.Failure) []ErrorDetail {
	details := make([]ErrorDetail, 0, len(failed))
	for _, f := range failed {
		details = append(details, ErrorDetail{Field: idString(f.ID), Message: f.Err})
	}
	return details
}
