package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Reason codes carried alongside every error message so clients can branch
// without parsing human-readable text.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeValidation         = "VALIDATION_ERROR"
	CodeAlreadyRegistered  = "ALREADY_REGISTERED"
	CodeNotRegistered      = "NOT_REGISTERED"
	CodeEventNotPublished  = "EVENT_NOT_PUBLISHED"
	CodeEventEnded         = "EVENT_ENDED"
	CodeCapacityExceeded   = "CAPACITY_EXCEEDED"
	CodeInvalidQuantity    = "INVALID_QUANTITY"
	CodeInvalidPromo       = "INVALID_PROMO"
	CodeDuplicateCode      = "DUPLICATE_CODE"
	CodeCancellationLocked = "CANCELLATION_LOCKED"
	CodeNotCheckedIn       = "NOT_CHECKED_IN"
	CodeWrongEvent         = "WRONG_EVENT"
	CodeInvalidCredential  = "INVALID_CREDENTIAL"
	CodeCommitFailed       = "COMMIT_FAILED"
	CodeInternal           = "INTERNAL"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with a reason code and message.
func BadRequest(c *gin.Context, code, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err, Code: code})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: err, Code: CodeUnauthorized})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Error: err, Code: CodeForbidden})
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: err, Code: CodeNotFound})
}

// Conflict sends 409 with a reason code and message.
func Conflict(c *gin.Context, code, err string) {
	c.JSON(http.StatusConflict, Body{Success: false, Error: err, Code: code})
}

// UnprocessableEntity sends 422 with a reason code and message.
func UnprocessableEntity(c *gin.Context, code, err string) {
	c.JSON(http.StatusUnprocessableEntity, Body{Success: false, Error: err, Code: code})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err, Code: CodeInternal})
}
