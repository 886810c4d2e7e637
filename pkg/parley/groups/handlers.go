// Package groups manages group chats and their memberships.
package groups

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/auth"
	"github.com/parleychat/parley/pkg/parley/messages"
	"github.com/parleychat/parley/pkg/parley/models"
	"github.com/parleychat/parley/pkg/parley/respond"
	"github.com/parleychat/parley/pkg/parley/validation"
)

// Handler handles group-related requests
type Handler struct {
	manager  *Manager
	messages *messages.Service
}

// NewHandler creates a new groups handler
func NewHandler(manager *Manager, messageService *messages.Service) *Handler {
	return &Handler{manager: manager, messages: messageService}
}

// MemberInput names a user and an optional role in request bodies
type MemberInput struct {
	UserUUID string `json:"user_uuid" binding:"required,notblank"`
	Role     string `json:"role" binding:"omitempty,oneof=admin member"`
}

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name    string        `json:"name" binding:"required,notblank,max=100"`
	Members []MemberInput `json:"members" binding:"omitempty,dive"`
}

// UpdateGroupRequest represents a batch of group changes
type UpdateGroupRequest struct {
	Name          *string       `json:"name" binding:"omitempty,max=100"`
	RemoveMembers []string      `json:"removeMembers" binding:"omitempty,dive,notblank"`
	AddMembers    []MemberInput `json:"addMembers" binding:"omitempty,dive"`
	RoleUpdates   []MemberInput `json:"roleUpdates" binding:"omitempty,dive"`
}

// GroupWithMessages is a group detail plus one page of its messages
type GroupWithMessages struct {
	Group *Detail `json:"group"`
	messages.PageResponse
}

func toSpecs(inputs []MemberInput) []MemberSpec {
	specs := make([]MemberSpec, len(inputs))
	for i, in := range inputs {
		specs[i] = MemberSpec{UserUUID: in.UserUUID, Role: models.GroupRole(in.Role)}
	}
	return specs
}

// List returns all groups the current user is a member of
// @Summary List groups
// @Description Get all active groups the current user belongs to
// @Tags groups
// @Produce json
// @Success 200 {object} respond.Envelope{data=[]Summary}
// @Security BearerAuth
// @Router /groups [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	summaries, err := h.manager.ListGroups(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "Groups retrieved successfully", summaries)
}

// Create creates a new group and adds the creator as admin
// @Summary Create a group
// @Description Create a new group with the current user as admin. Unknown members are skipped.
// @Tags groups
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} respond.Envelope{data=Detail}
// @Failure 400 {object} respond.Envelope "Validation error"
// @Security BearerAuth
// @Router /groups [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateGroupRequest
	if err := validation.BindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	detail, err := h.manager.CreateGroup(c.Request.Context(), req.Name, userID, toSpecs(req.Members))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusCreated, "Group created successfully", detail)
}

// Get returns a group with a page of its messages
// @Summary Get a group
// @Description Get a group, its active members and a page of its messages
// @Tags groups
// @Produce json
// @Param uuid path string true "Group UUID"
// @Param page query int false "Page (1-based, max 100000)"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} respond.Envelope{data=GroupWithMessages}
// @Failure 404 {object} respond.Envelope "Group not found"
// @Security BearerAuth
// @Router /groups/{uuid} [get]
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	q, err := messages.BindPage(c)
	if err != nil {
		respond.Error(c, err)
		return
	}

	detail, err := h.manager.GetGroup(c.Request.Context(), c.Param("uuid"), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	result, err := h.messages.ListForGroup(c.Request.Context(), detail.ID, q.Limit, q.Offset())
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Group retrieved successfully", GroupWithMessages{
		Group:        detail,
		PageResponse: messages.NewPageResponse(result, q),
	})
}

// Update applies a batch of changes to a group (admin only)
// @Summary Update a group
// @Description Rename, remove members, add members and change roles in one transaction (requires admin role)
// @Tags groups
// @Accept json
// @Produce json
// @Param uuid path string true "Group UUID"
// @Param request body UpdateGroupRequest true "Changes"
// @Success 200 {object} respond.Envelope{data=Detail}
// @Failure 400 {object} respond.Envelope "Validation error"
// @Failure 403 {object} respond.Envelope "Admin access required"
// @Failure 404 {object} respond.Envelope "Group or user not found"
// @Failure 422 {object} respond.Envelope "Group would be left without an admin"
// @Security BearerAuth
// @Router /groups/{uuid} [put]
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req UpdateGroupRequest
	if err := validation.BindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	detail, err := h.manager.UpdateGroup(c.Request.Context(), c.Param("uuid"), userID, Changes{
		Name:          req.Name,
		RemoveMembers: req.RemoveMembers,
		AddMembers:    toSpecs(req.AddMembers),
		RoleUpdates:   toSpecs(req.RoleUpdates),
	})
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "Group updated successfully", detail)
}

// Delete deactivates a group (admin only)
// @Summary Delete a group
// @Description Deactivate a group and all of its memberships (requires admin role)
// @Tags groups
// @Produce json
// @Param uuid path string true "Group UUID"
// @Success 200 {object} respond.Envelope "Group deleted"
// @Failure 403 {object} respond.Envelope "Admin access required"
// @Failure 404 {object} respond.Envelope "Group not found"
// @Security BearerAuth
// @Router /groups/{uuid} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	if err := h.manager.DeleteGroup(c.Request.Context(), c.Param("uuid"), userID); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "Group deleted successfully", nil)
}

// RegisterRoutes registers group routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:uuid", h.Get)
	rg.PUT("/:uuid", h.Update)
	rg.DELETE("/:uuid", h.Delete)
}
