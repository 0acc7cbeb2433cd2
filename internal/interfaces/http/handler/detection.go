package handler

import (
	"context"
	"errors"
	"net/http"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/scheduler"
	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// DetectionTrigger runs overdue detection on demand and reports its state
type DetectionTrigger interface {
	RunNow(ctx context.Context) (appinvoicing.DetectionResult, error)
	Status() scheduler.TriggerStatus
}

// DetectionHandler exposes the overdue detection trigger
type DetectionHandler struct {
	BaseHandler
	trigger DetectionTrigger
}

// NewDetectionHandler creates a DetectionHandler
func NewDetectionHandler(trigger DetectionTrigger) *DetectionHandler {
	return &DetectionHandler{trigger: trigger}
}

// Run performs a detection pass synchronously. A pass already in flight
// answers 409.
func (h *DetectionHandler) Run(c *gin.Context) {
	result, err := h.trigger.RunNow(c.Request.Context())
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		h.ErrorWithCode(c, dto.ErrCodeRunInProgress, "an overdue detection pass is already running")
	case err != nil:
		h.ErrorFromDomain(c, err)
	default:
		h.Success(c, result)
	}
}

// Status reports the trigger state and the last pass
func (h *DetectionHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(h.trigger.Status()))
}

// RegisterRoutes mounts the detection endpoints under /overdue-detection
func (h *DetectionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/overdue-detection")
	g.POST("/runs", h.Run)
	g.GET("/status", h.Status)
}
