package handler

import (
	"fmt"

	bulkuserapp "github.com/ecdemo/backend/internal/application/bulkuser"
	"github.com/ecdemo/backend/internal/infrastructure/configstore"
	"github.com/gin-gonic/gin"
)

// BulkUserHandler handles bulk user creation API endpoints
type BulkUserHandler struct {
	BaseHandler
	creator *bulkuserapp.Creator
	store   *configstore.Store
}

// NewBulkUserHandler creates a new BulkUserHandler
func NewBulkUserHandler(creator *bulkuserapp.Creator, store *configstore.Store) *BulkUserHandler {
	return &BulkUserHandler{
		creator: creator,
		store:   store,
	}
}

// CreateBulkUsersRequest represents a request to create synthetic users
// @Description Request body for bulk user creation
type CreateBulkUsersRequest struct {
	Count    int                         `json:"count" binding:"required,min=1" example:"100"`
	Template string                      `json:"template" example:"load_test"`
	Config   *bulkuserapp.CreationConfig `json:"config,omitempty"`
}

// Create godoc
// @Summary      Create synthetic users in bulk
// @Description  Creates count synthetic users tagged with a fresh batch ID.
//
//	The creation config comes from an inline config, a named
//	template, or the default template, in that order.
//
// @Tags         bulk-users
// @Accept       json
// @Produce      json
// @Param        request body CreateBulkUsersRequest true "Bulk creation request"
// @Success      201 {object} dto.Response{data=bulkuserapp.BulkCreationResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/create [post]
func (h *BulkUserHandler) Create(c *gin.Context) {
	var req CreateBulkUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	cfg, err := h.resolveConfig(req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	result, err := h.creator.CreateBulkUsers(c.Request.Context(), req.Count, cfg)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, result)
}

func (h *BulkUserHandler) resolveConfig(req CreateBulkUsersRequest) (bulkuserapp.CreationConfig, error) {
	if req.Config != nil {
		return *req.Config, nil
	}
	name := req.Template
	if name == "" {
		name = "default"
	}
	return h.store.Template(name)
}

// ValidateConfig godoc
// @Summary      Validate a creation config
// @Description  Runs full validation on a creation config without creating
//
//	anything. Returns every error and warning found.
//
// @Tags         bulk-users
// @Accept       json
// @Produce      json
// @Param        request body bulkuserapp.CreationConfig true "Creation config"
// @Success      200 {object} dto.Response{data=bulkuserapp.ValidationResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/validate-config [post]
func (h *BulkUserHandler) ValidateConfig(c *gin.Context) {
	var cfg bulkuserapp.CreationConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		h.BindingError(c, err)
		return
	}

	h.Success(c, cfg.Validate())
}

// TemplateListResponse lists available creation templates
// @Description Available creation template names
type TemplateListResponse struct {
	Templates []string `json:"templates"`
}

// ListTemplates godoc
// @Summary      List creation templates
// @Tags         bulk-users
// @Produce      json
// @Success      200 {object} dto.Response{data=TemplateListResponse}
// @Router       /bulk-users/config/templates [get]
func (h *BulkUserHandler) ListTemplates(c *gin.Context) {
	h.Success(c, TemplateListResponse{Templates: h.store.TemplateNames()})
}

// GetTemplate godoc
// @Summary      Get one creation template
// @Tags         bulk-users
// @Produce      json
// @Param        name path string true "Template name"
// @Success      200 {object} dto.Response{data=bulkuserapp.CreationConfig}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/config/templates/{name} [get]
func (h *BulkUserHandler) GetTemplate(c *gin.Context) {
	cfg, err := h.store.Template(c.Param("name"))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, cfg)
}

// SaveTemplate godoc
// @Summary      Create or replace a custom creation template
// @Description  Built-in template names cannot be shadowed.
// @Tags         bulk-users
// @Accept       json
// @Produce      json
// @Param        name path string true "Template name"
// @Param        request body bulkuserapp.CreationConfig true "Creation config"
// @Success      200 {object} dto.Response{data=dto.MessageResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/config/templates/{name} [put]
func (h *BulkUserHandler) SaveTemplate(c *gin.Context) {
	name := c.Param("name")

	var cfg bulkuserapp.CreationConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		h.BindingError(c, err)
		return
	}

	if err := h.store.SaveTemplate(name, cfg); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, messageResponse(fmt.Sprintf("Template %q saved", name)))
}

// DeleteTemplate godoc
// @Summary      Delete a custom creation template
// @Tags         bulk-users
// @Produce      json
// @Param        name path string true "Template name"
// @Success      200 {object} dto.Response{data=dto.MessageResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/config/templates/{name} [delete]
func (h *BulkUserHandler) DeleteTemplate(c *gin.Context) {
	name := c.Param("name")
	if err := h.store.DeleteTemplate(name); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, messageResponse(fmt.Sprintf("Template %q deleted", name)))
}

// RegisterRoutes registers all bulk user routes
func (h *BulkUserHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/bulk-users")
	group.POST("/create", h.Create)
	group.POST("/validate-config", h.ValidateConfig)
	group.GET("/config/templates", h.ListTemplates)
	group.GET("/config/templates/:name", h.GetTemplate)
	group.PUT("/config/templates/:name", h.SaveTemplate)
	group.DELETE("/config/templates/:name", h.DeleteTemplate)
}
