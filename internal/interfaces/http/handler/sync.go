package handler

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ecdemo/backend/internal/application/usersync"
	"github.com/ecdemo/backend/internal/domain/shared"
	"github.com/ecdemo/backend/internal/domain/testuser"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PeerGateway is the outbound side of synchronization: pushing exports to
// the load-tester peer and reading its sync state.
type PeerGateway interface {
	Import(ctx context.Context, data *usersync.ExportData) (*usersync.ImportResult, error)
	SyncStatus(ctx context.Context) (*usersync.Status, error)
}

// SyncHandler handles user synchronization API endpoints. The same routes
// serve both directions: export/sync push local users out, import accepts a
// peer's push.
type SyncHandler struct {
	BaseHandler
	sync *usersync.Service
	peer PeerGateway
}

// NewSyncHandler creates a new SyncHandler. peer may be nil when no
// load-tester peer is configured; peer-facing routes then refuse.
func NewSyncHandler(sync *usersync.Service, peer PeerGateway) *SyncHandler {
	return &SyncHandler{sync: sync, peer: peer}
}

// syncFilter is the default record set sync operations run over: synthetic
// accounts only, production rows never leave the store.
func syncFilter() testuser.Filter {
	return testuser.Filter{TestUsersOnly: true}
}

// filterFromQuery builds the record filter from the batch_id and
// test_users_only query parameters, defaulting to test users only.
func filterFromQuery(c *gin.Context) (testuser.Filter, error) {
	filter := syncFilter()
	if raw := c.Query("test_users_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("test_users_only must be a boolean")
		}
		filter.TestUsersOnly = v
	}
	if raw := c.Query("batch_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid batch_id format")
		}
		filter.BatchID = &id
	}
	return filter, nil
}

// Export godoc
// @Summary      Export test users for synchronization
// @Description  Differential export: when the record set for the given
//
//	filter is unchanged since the last export, the payload is
//	empty and flagged unchanged.
//
// @Tags         sync
// @Produce      json
// @Param        batch_id query string false "Restrict to one creation batch"
// @Param        test_users_only query bool false "Default true"
// @Success      200 {object} dto.Response{data=usersync.ExportData}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/export [get]
func (h *SyncHandler) Export(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	data, err := h.sync.Export(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, data)
}

// Import godoc
// @Summary      Import a peer's user export
// @Description  Accepts an export payload, optionally gzip-compressed
//
//	(Content-Encoding: gzip). Verifies the payload hash, then
//	adds or updates records. Never deletes local users.
//
// @Tags         sync
// @Accept       json
// @Produce      json
// @Success      200 {object} dto.Response{data=usersync.ImportResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/import [post]
func (h *SyncHandler) Import(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}

	payload := usersync.Payload{
		Body:       body,
		Compressed: strings.Contains(c.GetHeader("Content-Encoding"), "gzip"),
	}
	data, err := usersync.DecodePayload(payload)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	result, err := h.sync.Import(c.Request.Context(), data)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, result)
}

// SyncStatusResponse is the consistency check between this store and the
// peer. Without a configured peer it reports local drift only.
type SyncStatusResponse struct {
	IsValid         bool             `json:"is_valid"`
	Inconsistencies []string         `json:"inconsistencies"`
	Local           *usersync.Status `json:"local"`
	Peer            *usersync.Status `json:"peer,omitempty"`
}

// SyncStatus godoc
// @Summary      Synchronization consistency check
// @Description  Compares the local record set against its last export and,
//
//	when a peer is configured, against the peer's state. Read
//	only; mutates nothing on either side.
//
// @Tags         sync
// @Produce      json
// @Param        batch_id query string false "Restrict to one creation batch"
// @Success      200 {object} dto.Response{data=SyncStatusResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/sync/status [get]
func (h *SyncHandler) SyncStatus(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	local, err := h.sync.CurrentStatus(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	resp := SyncStatusResponse{Local: local, Inconsistencies: []string{}}
	if local.Dirty {
		resp.Inconsistencies = append(resp.Inconsistencies,
			"local store has drifted since the last export")
	}

	if h.peer != nil {
		remote, err := h.peer.SyncStatus(c.Request.Context())
		if err != nil {
			h.HandleDomainError(c, err)
			return
		}
		resp.Peer = remote
		if remote.CurrentHash != local.CurrentHash {
			resp.Inconsistencies = append(resp.Inconsistencies,
				"local and peer datasets differ")
		}
		if remote.UserCount != local.UserCount {
			resp.Inconsistencies = append(resp.Inconsistencies,
				fmt.Sprintf("user counts differ: local %d, peer %d", local.UserCount, remote.UserCount))
		}
	}

	resp.IsValid = len(resp.Inconsistencies) == 0
	h.Success(c, resp)
}

// SyncToPeerRequest optionally narrows what gets pushed to the peer
// @Description Request body for a sync push; empty means all test users
type SyncToPeerRequest struct {
	BatchID       string `json:"batch_id,omitempty"`
	TestUsersOnly *bool  `json:"test_users_only,omitempty"`
}

// SyncToPeerResponse reports one push to the peer
// @Description Result of pushing local users to the peer
type SyncToPeerResponse struct {
	Unchanged bool                   `json:"unchanged"`
	Exported  int                    `json:"exported"`
	Result    *usersync.ImportResult `json:"result,omitempty"`
}

// SyncToPeer godoc
// @Summary      Push local test users to the peer
// @Description  Runs a differential export for the requested filter and,
//
//	when anything changed, pushes the payload to the peer's
//	import endpoint.
//
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        request body SyncToPeerRequest false "Optional filter"
// @Success      200 {object} dto.Response{data=SyncToPeerResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/sync [post]
func (h *SyncHandler) SyncToPeer(c *gin.Context) {
	if h.peer == nil {
		h.HandleDomainError(c, shared.NewDomainError("CONNECTIVITY", "No load-tester peer is configured"))
		return
	}

	filter := syncFilter()
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		var req SyncToPeerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindingError(c, err)
			return
		}
		if req.TestUsersOnly != nil {
			filter.TestUsersOnly = *req.TestUsersOnly
		}
		if req.BatchID != "" {
			id, err := uuid.Parse(req.BatchID)
			if err != nil {
				h.BadRequest(c, "Invalid batch ID format")
				return
			}
			filter.BatchID = &id
		}
	}

	data, err := h.sync.Export(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	if data.Unchanged {
		h.Success(c, SyncToPeerResponse{Unchanged: true})
		return
	}

	result, err := h.peer.Import(c.Request.Context(), data)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, SyncToPeerResponse{Exported: data.UserCount, Result: result})
}

// ValidateIntegrity godoc
// @Summary      Validate an export against the local store
// @Description  Checks the payload hash and compares the remote record set
//
//	with the local one without modifying anything.
//
// @Tags         sync
// @Accept       json
// @Produce      json
// @Success      200 {object} dto.Response{data=usersync.IntegrityReport}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/sync/validate [post]
func (h *SyncHandler) ValidateIntegrity(c *gin.Context) {
	var data usersync.ExportData
	if err := c.ShouldBindJSON(&data); err != nil {
		h.BindingError(c, err)
		return
	}

	report, err := h.sync.ValidateIntegrity(c.Request.Context(), &data, syncFilter())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, report)
}

// PeerStatusResponse pairs the local and peer sync states
// @Description Local and peer synchronization state side by side
type PeerStatusResponse struct {
	Local  *usersync.Status `json:"local"`
	Peer   *usersync.Status `json:"peer"`
	InSync bool             `json:"in_sync"`
}

// PeerStatus godoc
// @Summary      Compare local and peer sync state
// @Tags         sync
// @Produce      json
// @Success      200 {object} dto.Response{data=PeerStatusResponse}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /bulk-users/peer-status [get]
func (h *SyncHandler) PeerStatus(c *gin.Context) {
	if h.peer == nil {
		h.HandleDomainError(c, shared.NewDomainError("CONNECTIVITY", "No load-tester peer is configured"))
		return
	}

	local, err := h.sync.CurrentStatus(c.Request.Context(), syncFilter())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	remote, err := h.peer.SyncStatus(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, PeerStatusResponse{
		Local:  local,
		Peer:   remote,
		InSync: local.CurrentHash == remote.CurrentHash,
	})
}

// RegisterRoutes registers all sync routes
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/bulk-users")
	group.GET("/export", h.Export)
	group.POST("/import", h.Import)
	group.POST("/sync", h.SyncToPeer)
	group.GET("/sync/status", h.SyncStatus)
	group.POST("/sync/validate", h.ValidateIntegrity)
	group.GET("/peer-status", h.PeerStatus)
}
