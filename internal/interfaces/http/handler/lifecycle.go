package handler

import (
	"fmt"
	"strconv"

	bulkuserapp "github.com/ecdemo/backend/internal/application/bulkuser"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LifecycleHandler handles test user identification and cleanup endpoints
type LifecycleHandler struct {
	BaseHandler
	lifecycle *bulkuserapp.Lifecycle
}

// NewLifecycleHandler creates a new LifecycleHandler
func NewLifecycleHandler(lifecycle *bulkuserapp.Lifecycle) *LifecycleHandler {
	return &LifecycleHandler{lifecycle: lifecycle}
}

// IdentifyRequest optionally narrows an identification scan to specific users
// @Description Request body for user identification
type IdentifyRequest struct {
	UserIDs []string `json:"user_ids,omitempty"`
}

// Identify godoc
// @Summary      Classify users
// @Description  Classifies each record as test, production, or unknown.
//
//	Scans the whole store unless user_ids narrows the set.
//	Unknown records are listed so an operator can resolve them;
//	they are never deleted.
//
// @Tags         lifecycle
// @Accept       json
// @Produce      json
// @Param        request body IdentifyRequest false "Optional id filter"
// @Success      200 {object} dto.Response{data=bulkuserapp.IdentificationReport}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/lifecycle/identify [post]
func (h *LifecycleHandler) Identify(c *gin.Context) {
	var req IdentifyRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindingError(c, err)
			return
		}
	}

	ids := make([]uuid.UUID, 0, len(req.UserIDs))
	for _, raw := range req.UserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, fmt.Sprintf("Invalid user id %q", raw))
			return
		}
		ids = append(ids, id)
	}

	report, err := h.lifecycle.IdentifyUsers(c.Request.Context(), ids)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, report)
}

// GetBatch godoc
// @Summary      Batch metadata
// @Tags         lifecycle
// @Produce      json
// @Param        id path string true "Batch ID"
// @Success      200 {object} dto.Response{data=testuser.BatchSummary}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/batches/{id} [get]
func (h *LifecycleHandler) GetBatch(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid batch ID format")
		return
	}

	detail, err := h.lifecycle.BatchDetail(c.Request.Context(), batchID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, detail)
}

// DeleteBatch godoc
// @Summary      Delete one creation batch
// @Description  Re-classifies every member at execution time and deletes only
//
//	records positively classified as test data.
//
// @Tags         lifecycle
// @Produce      json
// @Param        id path string true "Batch ID"
// @Success      200 {object} dto.Response{data=bulkuserapp.CleanupResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/batches/{id} [delete]
func (h *LifecycleHandler) DeleteBatch(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid batch ID format")
		return
	}

	result, err := h.lifecycle.Cleanup(c.Request.Context(), batchID, false)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, result)
}

// Stats godoc
// @Summary      Store-wide test user statistics
// @Tags         lifecycle
// @Produce      json
// @Success      200 {object} dto.Response{data=bulkuserapp.StatsReport}
// @Router       /bulk-users/stats [get]
func (h *LifecycleHandler) Stats(c *gin.Context) {
	stats, err := h.lifecycle.Stats(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, stats)
}

// CleanupCandidates godoc
// @Summary      List batches old enough to clean up
// @Tags         lifecycle
// @Produce      json
// @Param        age_days query int false "Minimum batch age in days" default(7)
// @Success      200 {object} dto.Response{data=[]testuser.BatchSummary}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/lifecycle/cleanup-candidates [get]
func (h *LifecycleHandler) CleanupCandidates(c *gin.Context) {
	ageDays := 7
	if raw := c.Query("age_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.BadRequest(c, "age_days must be an integer")
			return
		}
		ageDays = parsed
	}

	candidates, err := h.lifecycle.CleanupCandidates(c.Request.Context(), ageDays)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, candidates)
}

// CleanupRequest represents a request to delete one creation batch
// @Description Request body for batch cleanup
type CleanupRequest struct {
	BatchID       string `json:"batch_id" binding:"required,uuid"`
	CascadeToPeer bool   `json:"cascade_to_peer"`
}

// Cleanup godoc
// @Summary      Delete one creation batch
// @Description  Re-classifies every member at execution time and deletes only
//
//	records positively classified as test data. Optionally
//	cascades the deletion to the load-tester peer.
//
// @Tags         lifecycle
// @Accept       json
// @Produce      json
// @Param        request body CleanupRequest true "Cleanup request"
// @Success      200 {object} dto.Response{data=bulkuserapp.CleanupResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/lifecycle/cleanup [post]
func (h *LifecycleHandler) Cleanup(c *gin.Context) {
	var req CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	batchID, err := uuid.Parse(req.BatchID)
	if err != nil {
		h.BadRequest(c, "Invalid batch ID format")
		return
	}

	result, err := h.lifecycle.Cleanup(c.Request.Context(), batchID, req.CascadeToPeer)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, result)
}

// SyncCleanupRequest asks for a batch deletion on both stores
// @Description Request body for two-sided batch cleanup
type SyncCleanupRequest struct {
	BatchID string `json:"batch_id" binding:"required,uuid"`
}

// PeerCleanupSummary is the load-tester side of a two-sided cleanup
type PeerCleanupSummary struct {
	DeletedCount int    `json:"deleted_count"`
	Error        string `json:"error,omitempty"`
}

// SyncCleanupResponse pairs both sides of a cascaded batch deletion
type SyncCleanupResponse struct {
	MainApplication *bulkuserapp.CleanupResult `json:"main_application"`
	LoadTester      PeerCleanupSummary         `json:"load_tester"`
}

// SyncCleanup godoc
// @Summary      Delete one batch on both stores
// @Description  Runs the protected local cleanup, then cascades the deletion
//
//	to the load-tester peer. A peer failure is reported but does
//	not undo the committed local deletion.
//
// @Tags         lifecycle
// @Accept       json
// @Produce      json
// @Param        request body SyncCleanupRequest true "Cleanup request"
// @Success      200 {object} dto.Response{data=SyncCleanupResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/lifecycle/sync-cleanup [post]
func (h *LifecycleHandler) SyncCleanup(c *gin.Context) {
	var req SyncCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	batchID, err := uuid.Parse(req.BatchID)
	if err != nil {
		h.BadRequest(c, "Invalid batch ID format")
		return
	}

	result, err := h.lifecycle.Cleanup(c.Request.Context(), batchID, true)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, SyncCleanupResponse{
		MainApplication: result,
		LoadTester: PeerCleanupSummary{
			DeletedCount: result.PeerDeletedCount,
			Error:        result.PeerError,
		},
	})
}

// Report godoc
// @Summary      Store-wide lifecycle report
// @Description  Totals by classification, per-batch summaries, and cleanup
//
//	recommendations.
//
// @Tags         lifecycle
// @Produce      json
// @Success      200 {object} dto.Response{data=bulkuserapp.LifecycleReport}
// @Router       /bulk-users/lifecycle/report [get]
func (h *LifecycleHandler) Report(c *gin.Context) {
	report, err := h.lifecycle.Report(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, report)
}

// RegisterRoutes registers the batch and lifecycle routes
func (h *LifecycleHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/bulk-users")
	group.GET("/batches/:id", h.GetBatch)
	group.DELETE("/batches/:id", h.DeleteBatch)
	group.GET("/stats", h.Stats)

	lifecycle := group.Group("/lifecycle")
	lifecycle.POST("/identify", h.Identify)
	lifecycle.GET("/cleanup-candidates", h.CleanupCandidates)
	lifecycle.POST("/cleanup", h.Cleanup)
	lifecycle.POST("/sync-cleanup", h.SyncCleanup)
	lifecycle.GET("/report", h.Report)
}
