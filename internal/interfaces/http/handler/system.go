package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/ecdemo/backend/internal/infrastructure/persistence"
	"github.com/ecdemo/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Pinger is the slice of the database the health check needs.
type Pinger interface {
	Ping() error
}

// poolStatser is optionally implemented by the database handle. When it
// is, the health payload includes connection pool counters.
type poolStatser interface {
	Stats() (persistence.ConnectionStats, error)
}

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	startTime time.Time
	db        Pinger
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler() *SystemHandler {
	return &SystemHandler{
		startTime: time.Now(),
	}
}

// NewSystemHandlerWithDB creates a SystemHandler whose health check also
// pings the database
func NewSystemHandlerWithDB(db Pinger) *SystemHandler {
	h := NewSystemHandler()
	h.db = db
	return h
}

// SystemInfoResponse represents the system information response
// @name HandlerSystemInfoResponse
type SystemInfoResponse struct {
	Name      string `json:"name" example:"ECApp Backend API"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// GetSystemInfo godoc
// @ID           getSystemSystemInfo
// @Summary      Get system information
// @Description  Returns basic system information including version and uptime
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response{data=SystemInfoResponse}
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      "ECApp Backend API",
		Version:   "1.0.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(info))
}

// PingResponse represents the ping response
// @name HandlerPingResponse
type PingResponse struct {
	Message   string `json:"message" example:"pong"`
	Timestamp string `json:"timestamp" example:"2026-01-23T12:00:00Z"`
}

// Ping godoc
// @ID           pingSystem
// @Summary      Ping the API
// @Description  Simple ping endpoint to check if the API is responsive
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response{data=PingResponse}
// @Router       /system/ping [get]
func (h *SystemHandler) Ping(c *gin.Context) {
	response := PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(response))
}

// HealthResponse represents the health check response
// @name HandlerHealthResponse
type HealthResponse struct {
	Status   string     `json:"status" example:"healthy"`
	Database string     `json:"database,omitempty" example:"up"`
	Pool     *PoolStats `json:"pool,omitempty"`
}

// PoolStats reports connection pool pressure alongside the health
// status. A growing wait count during batch creation means the pool is
// undersized for the configured worker count.
// @name HandlerPoolStats
type PoolStats struct {
	Open      int   `json:"open" example:"5"`
	InUse     int   `json:"in_use" example:"2"`
	Idle      int   `json:"idle" example:"3"`
	WaitCount int64 `json:"wait_count" example:"0"`
}

// Health godoc
// @ID           healthSystem
// @Summary      Health check
// @Description  Reports service health, including database reachability
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response{data=HealthResponse}
// @Failure      503 {object} dto.Response{data=HealthResponse}
// @Router       /system/health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "healthy"}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			resp.Status = "degraded"
			resp.Database = "down"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "up"
			if statser, ok := h.db.(poolStatser); ok {
				if stats, err := statser.Stats(); err == nil {
					resp.Pool = &PoolStats{
						Open:      stats.OpenConnections,
						InUse:     stats.InUse,
						Idle:      stats.Idle,
						WaitCount: stats.WaitCount,
					}
				}
			}
		}
	}

	c.JSON(status, dto.NewSuccessResponse(resp))
}

// RegisterRoutes registers all system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/system")
	group.GET("/info", h.GetSystemInfo)
	group.GET("/ping", h.Ping)
	group.GET("/health", h.Health)
}
