package handler

import (
	"time"

	loadtestapp "github.com/ecdemo/backend/internal/application/loadtest"
	"github.com/ecdemo/backend/internal/domain/loadtest"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LoadTestHandler handles load test session API endpoints
type LoadTestHandler struct {
	BaseHandler
	manager *loadtestapp.Manager
}

// NewLoadTestHandler creates a new LoadTestHandler
func NewLoadTestHandler(manager *loadtestapp.Manager) *LoadTestHandler {
	return &LoadTestHandler{manager: manager}
}

// StartLoadTestRequest represents a request to start a load test session
// @Description Request body for starting a load test. Unset fields take the
// @Description shipped defaults; everything is checked against the safety
// @Description limits before any worker starts.
type StartLoadTestRequest struct {
	SessionName          string             `json:"session_name" example:"checkout spike"`
	ConcurrentUsers      int                `json:"concurrent_users" example:"10"`
	DurationMinutes      int                `json:"duration_minutes" example:"30"`
	RequestIntervalMinMS int                `json:"request_interval_min_ms" example:"1000"`
	RequestIntervalMaxMS int                `json:"request_interval_max_ms" example:"5000"`
	EndpointWeights      map[string]float64 `json:"endpoint_weights,omitempty"`
	MaxErrorsPerMinute   int                `json:"max_errors_per_minute" example:"100"`
}

func (r StartLoadTestRequest) toConfig() loadtest.Config {
	cfg := loadtest.DefaultConfig()
	cfg.SessionName = r.SessionName
	if r.ConcurrentUsers > 0 {
		cfg.ConcurrentUsers = r.ConcurrentUsers
	}
	if r.DurationMinutes > 0 {
		cfg.DurationMinutes = r.DurationMinutes
	}
	if r.RequestIntervalMinMS > 0 {
		cfg.RequestIntervalMin = time.Duration(r.RequestIntervalMinMS) * time.Millisecond
	}
	if r.RequestIntervalMaxMS > 0 {
		cfg.RequestIntervalMax = time.Duration(r.RequestIntervalMaxMS) * time.Millisecond
	}
	if r.EndpointWeights != nil {
		cfg.EndpointWeights = r.EndpointWeights
	}
	if r.MaxErrorsPerMinute > 0 {
		cfg.MaxErrorsPerMinute = r.MaxErrorsPerMinute
	}
	return cfg
}

// Start godoc
// @Summary      Start a load test session
// @Tags         load-test
// @Accept       json
// @Produce      json
// @Param        request body StartLoadTestRequest true "Session config"
// @Success      201 {object} dto.Response{data=loadtest.SessionView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /load-test/start [post]
func (h *LoadTestHandler) Start(c *gin.Context) {
	var req StartLoadTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	session, err := h.manager.StartTest(c.Request.Context(), req.toConfig())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Created(c, session)
}

// StopLoadTestRequest carries the optional stop reason
// @Description Request body for stopping a session
type StopLoadTestRequest struct {
	Reason string `json:"reason" example:"done measuring"`
}

// Stop godoc
// @Summary      Stop a running session
// @Description  Requests a graceful stop and waits for the workers to drain.
// @Tags         load-test
// @Accept       json
// @Produce      json
// @Param        id path string true "Session ID" format(uuid)
// @Param        request body StopLoadTestRequest false "Stop reason"
// @Success      200 {object} dto.Response{data=loadtestapp.StatusReport}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /load-test/sessions/{id}/stop [post]
func (h *LoadTestHandler) Stop(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid session ID format")
		return
	}

	var req StopLoadTestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindingError(c, err)
			return
		}
	}

	if err := h.manager.StopTest(id, req.Reason); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	report, err := h.manager.Status(id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, report)
}

// EmergencyStopResponse reports how many sessions were halted
// @Description Emergency stop result
type EmergencyStopResponse struct {
	StoppedSessions int `json:"stopped_sessions"`
}

// EmergencyStop godoc
// @Summary      Stop every active session immediately
// @Tags         load-test
// @Produce      json
// @Success      200 {object} dto.Response{data=EmergencyStopResponse}
// @Router       /load-test/emergency-stop [post]
func (h *LoadTestHandler) EmergencyStop(c *gin.Context) {
	stopped := h.manager.EmergencyStop()
	h.Success(c, EmergencyStopResponse{StoppedSessions: stopped})
}

// Status godoc
// @Summary      Session status and per-endpoint statistics
// @Tags         load-test
// @Produce      json
// @Param        id path string true "Session ID" format(uuid)
// @Success      200 {object} dto.Response{data=loadtestapp.StatusReport}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /load-test/sessions/{id} [get]
func (h *LoadTestHandler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid session ID format")
		return
	}

	report, err := h.manager.Status(id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, report)
}

// Sessions godoc
// @Summary      List all known sessions
// @Tags         load-test
// @Produce      json
// @Success      200 {object} dto.Response{data=[]loadtest.SessionView}
// @Router       /load-test/sessions [get]
func (h *LoadTestHandler) Sessions(c *gin.Context) {
	h.Success(c, h.manager.Sessions())
}

// RegisterRoutes registers all load test routes
func (h *LoadTestHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/load-test")
	group.POST("/start", h.Start)
	group.POST("/emergency-stop", h.EmergencyStop)
	group.GET("/sessions", h.Sessions)
	group.GET("/sessions/:id", h.Status)
	group.POST("/sessions/:id/stop", h.Stop)
}
