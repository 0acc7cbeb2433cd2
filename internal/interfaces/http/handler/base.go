// Package handler implements the operations API: health, system info and
// manual overdue detection runs.
package handler

import (
	"net/http"

	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID set by the logging middleware,
// falling back to the inbound header
func getRequestID(c *gin.Context) string {
	if id := logger.GetRequestID(c.Request.Context()); id != "" {
		return id
	}
	return c.GetHeader(logger.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// ErrorFromDomain maps err onto the API error taxonomy.
// Internal errors are reported with a generic message.
func (h *BaseHandler) ErrorFromDomain(c *gin.Context, err error) {
	code := dto.CodeForError(err)
	message := err.Error()
	if code == dto.ErrCodeInternal {
		logger.FromContext(c.Request.Context()).Error("Request failed", zap.Error(err))
		message = "internal error"
	}
	h.ErrorWithCode(c, code, message)
}
