package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Responses share one JSON envelope: {"data": ...} on success and
// {"error": {"code", "message", "details"}} on failure, with a matching HTTP status.
// Batch endpoints report per-screenshot failures as details keyed by id.

// -----------------------------------------------------------------------------
// Error Response Types
// -----------------------------------------------------------------------------

// ErrorCode defines standard error codes for programmatic handling
type ErrorCode string

const (
	// Client errors (4xx)
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"      // 400 - Malformed request
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR" // 400 - Validation failed
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"        // 404 - Screenshot not found
	ErrCodeConflict      ErrorCode = "CONFLICT"         // 409 - Session state does not allow it
	ErrCodeBusy          ErrorCode = "BUSY"             // 409 - Command already in flight
	ErrCodeUnprocessable ErrorCode = "UNPROCESSABLE"    // 422 - Semantic error

	// Server errors (5xx)
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"      // 500 - Unexpected error
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // 503 - Capture process or sink unavailable
	ErrCodeTimeout            ErrorCode = "TIMEOUT"             // 504 - Capture process did not answer
)

// ErrorDetail is one failed field, or one failed screenshot keyed by id
type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ErrorResponse is the standard error response structure
type ErrorResponse struct {
	Error struct {
		Code    ErrorCode     `json:"code"`              // Machine-readable error code
		Message string        `json:"message"`           // Human-readable error message
		Details []ErrorDetail `json:"details,omitempty"` // Additional error details
	} `json:"error"`
}

// -----------------------------------------------------------------------------
// Success Response Types
// -----------------------------------------------------------------------------

// DataResponse wraps a single resource or object response
// Use for: GET /resource/:id, POST /resource (created item), PUT /resource/:id
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// -----------------------------------------------------------------------------
// Response Helpers
// -----------------------------------------------------------------------------

// RespondData sends a successful response with a single data object
// Status: 200 OK
func RespondData[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, DataResponse[T]{Data: data})
}

// RespondCreated sends a 201 Created response with the created resource
// Also sets the Location header if path is provided
func RespondCreated[T any](c *gin.Context, data T, locationPath string) {
	if locationPath != "" {
		c.Header("Location", locationPath)
	}
	c.JSON(http.StatusCreated, DataResponse[T]{Data: data})
}

// RespondNoContent sends a 204 No Content response
// Use for: successful DELETE, PUT/PATCH with no body needed
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Error Helpers
// -----------------------------------------------------------------------------

// respondError is the internal helper for error responses
func respondError(c *gin.Context, status int, code ErrorCode, message string, details []ErrorDetail) {
	resp := ErrorResponse{}
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	c.JSON(status, resp)
}

// RespondBadRequest sends a 400 Bad Request error
func RespondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, ErrCodeBadRequest, message, nil)
}

// RespondValidationError sends a 400 Bad Request with validation details
func RespondValidationError(c *gin.Context, message string, details []ErrorDetail) {
	respondError(c, http.StatusBadRequest, ErrCodeValidation, message, details)
}

// RespondNotFound sends a 404 Not Found error
func RespondNotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, ErrCodeNotFound, message, nil)
}

// RespondConflict sends a 409 Conflict error
func RespondConflict(c *gin.Context, message string) {
	respondError(c, http.StatusConflict, ErrCodeConflict, message, nil)
}

// RespondInternalError sends a 500 Internal Server Error
func RespondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, ErrCodeInternal, message, nil)
}

// RespondUnprocessable sends a 422 with details, e.g. per-entry failures
func RespondUnprocessable(c *gin.Context, message string, details []ErrorDetail) {
	respondError(c, http.StatusUnprocessableEntity, ErrCodeUnprocessable, message, details)
}

// RespondBusy sends a 409 for a command rejected because another is pending
func RespondBusy(c *gin.Context, message string) {
	respondError(c, http.StatusConflict, ErrCodeBusy, message, nil)
}

// RespondTimeout sends a 504 Gateway Timeout error
func RespondTimeout(c *gin.Context, message string) {
	respondError(c, http.StatusGatewayTimeout, ErrCodeTimeout, message, nil)
}

// RespondServiceUnavailable sends a 503 Service Unavailable error
func RespondServiceUnavailable(c *gin.Context, message string) {
	respondError(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message, nil)
}
