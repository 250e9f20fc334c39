package handler

import (
	"time"

	loadtestapp "github.com/ecdemo/backend/internal/application/loadtest"
	"github.com/ecdemo/backend/internal/domain/loadtest"
	"github.com/ecdemo/backend/internal/infrastructure/configstore"
	"github.com/gin-gonic/gin"
)

// EndpointConfigHandler manages the load-test endpoint registry and safety
// limits. Updates persist to the config store and apply to the live selector
// and manager immediately.
type EndpointConfigHandler struct {
	BaseHandler
	store    *configstore.Store
	selector *loadtest.Selector
	manager  *loadtestapp.Manager
}

// NewEndpointConfigHandler creates a new EndpointConfigHandler
func NewEndpointConfigHandler(store *configstore.Store, selector *loadtest.Selector, manager *loadtestapp.Manager) *EndpointConfigHandler {
	return &EndpointConfigHandler{
		store:    store,
		selector: selector,
		manager:  manager,
	}
}

// EndpointRequest represents one endpoint in a registry update
// @Description Endpoint registry entry
type EndpointRequest struct {
	Name           string  `json:"name" binding:"required" example:"home"`
	URL            string  `json:"url" binding:"required,url" example:"http://localhost:5000/"`
	Method         string  `json:"method" binding:"omitempty,oneof=GET POST PUT DELETE" example:"GET"`
	Weight         float64 `json:"weight" binding:"gte=0" example:"3"`
	Enabled        bool    `json:"enabled" example:"true"`
	TimeoutSeconds int     `json:"timeout_seconds" binding:"gte=0" example:"30"`
	Description    string  `json:"description,omitempty"`
}

func (r EndpointRequest) toConfig() loadtest.EndpointConfig {
	timeout := 30 * time.Second
	if r.TimeoutSeconds > 0 {
		timeout = time.Duration(r.TimeoutSeconds) * time.Second
	}
	method := r.Method
	if method == "" {
		method = "GET"
	}
	return loadtest.EndpointConfig{
		Name:        r.Name,
		URL:         r.URL,
		Method:      method,
		Weight:      r.Weight,
		Enabled:     r.Enabled,
		Timeout:     timeout,
		Description: r.Description,
	}
}

// ListEndpoints godoc
// @Summary      List load-test endpoints
// @Tags         load-test-config
// @Produce      json
// @Success      200 {object} dto.Response{data=[]loadtest.EndpointConfig}
// @Router       /load-test/endpoints [get]
func (h *EndpointConfigHandler) ListEndpoints(c *gin.Context) {
	h.Success(c, h.store.Endpoints())
}

// SetEndpoints godoc
// @Summary      Replace the load-test endpoint registry
// @Description  Validates, persists, and applies the new registry. Running
//
//	workers pick it up on their next request.
//
// @Tags         load-test-config
// @Accept       json
// @Produce      json
// @Param        request body []EndpointRequest true "Endpoint registry"
// @Success      200 {object} dto.Response{data=[]loadtest.EndpointConfig}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /load-test/endpoints [put]
func (h *EndpointConfigHandler) SetEndpoints(c *gin.Context) {
	var reqs []EndpointRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		h.BindingError(c, err)
		return
	}

	endpoints := make([]loadtest.EndpointConfig, 0, len(reqs))
	for _, r := range reqs {
		endpoints = append(endpoints, r.toConfig())
	}

	if err := h.store.SetEndpoints(endpoints); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.selector.Replace(endpoints)

	h.Success(c, h.store.Endpoints())
}

// GetSafetyLimits godoc
// @Summary      Current load-test safety limits
// @Tags         load-test-config
// @Produce      json
// @Success      200 {object} dto.Response{data=loadtest.SafetyLimits}
// @Router       /load-test/safety-limits [get]
func (h *EndpointConfigHandler) GetSafetyLimits(c *gin.Context) {
	h.Success(c, h.store.SafetyLimits())
}

// SetSafetyLimits godoc
// @Summary      Replace the load-test safety limits
// @Description  Persists the new limits and applies them to future sessions.
//
//	Running sessions keep the limits they started under.
//
// @Tags         load-test-config
// @Accept       json
// @Produce      json
// @Param        request body loadtest.SafetyLimits true "Safety limits"
// @Success      200 {object} dto.Response{data=loadtest.SafetyLimits}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /load-test/safety-limits [put]
func (h *EndpointConfigHandler) SetSafetyLimits(c *gin.Context) {
	var limits loadtest.SafetyLimits
	if err := c.ShouldBindJSON(&limits); err != nil {
		h.BindingError(c, err)
		return
	}

	if err := h.store.SetSafetyLimits(limits); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.manager.SetLimits(limits)

	h.Success(c, h.store.SafetyLimits())
}

// RegisterRoutes registers all endpoint config routes
func (h *EndpointConfigHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/load-test")
	group.GET("/endpoints", h.ListEndpoints)
	group.PUT("/endpoints", h.SetEndpoints)
	group.GET("/safety-limits", h.GetSafetyLimits)
	group.PUT("/safety-limits", h.SetSafetyLimits)
}
