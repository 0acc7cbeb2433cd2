package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/persistence"
	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BusStats exposes event bus counters
type BusStats interface {
	Pending() int
	Stats() (handled, failed int64)
}

// PoolStats exposes database connection pool statistics
type PoolStats interface {
	Stats() (persistence.ConnectionStats, error)
}

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	startTime time.Time
	bus       BusStats
	pool      PoolStats
}

// SystemOption configures a SystemHandler
type SystemOption func(*SystemHandler)

// WithBusStats reports event bus counters in /system/info
func WithBusStats(bus BusStats) SystemOption {
	return func(h *SystemHandler) { h.bus = bus }
}

// WithPoolStats reports connection pool statistics in /system/info
func WithPoolStats(pool PoolStats) SystemOption {
	return func(h *SystemHandler) { h.pool = pool }
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string, opts ...SystemOption) *SystemHandler {
	h := &SystemHandler{
		name:      name,
		version:   version,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventBusInfo summarises the notification pipeline queue
type EventBusInfo struct {
	Pending int   `json:"pending"`
	Handled int64 `json:"handled"`
	Failed  int64 `json:"failed"`
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string                       `json:"name"`
	Version   string                       `json:"version"`
	GoVersion string                       `json:"go_version"`
	Uptime    string                       `json:"uptime"`
	EventBus  *EventBusInfo                `json:"event_bus,omitempty"`
	Database  *persistence.ConnectionStats `json:"database,omitempty"`
}

// GetSystemInfo returns version, uptime and pipeline statistics
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.bus != nil {
		handled, failed := h.bus.Stats()
		info.EventBus = &EventBusInfo{Pending: h.bus.Pending(), Handled: handled, Failed: failed}
	}
	if h.pool != nil {
		if stats, err := h.pool.Stats(); err == nil {
			info.Database = &stats
		}
	}

	h.Success(c, info)
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping is a liveness probe that touches no dependencies
func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	}))
}

// RegisterRoutes mounts the system endpoints under /system
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/system")
	g.GET("/info", h.GetSystemInfo)
	g.GET("/ping", h.Ping)
}
