package groups

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/apperr"
	"github.com/parleychat/parley/pkg/parley/auth"
	"github.com/parleychat/parley/pkg/parley/models"
	"github.com/parleychat/parley/pkg/parley/respond"
	"github.com/parleychat/parley/pkg/parley/validation"
)

// AddMembersRequest represents a request to add members
type AddMembersRequest struct {
	Members []MemberInput `json:"members" binding:"required,min=1,dive"`
}

// UpdateMemberRequest represents a request to update a member's role
type UpdateMemberRequest struct {
	Role string `json:"role" binding:"required,oneof=admin member"`
}

// ListMembers returns the active members of a group
// @Summary List group members
// @Tags groups
// @Produce json
// @Param uuid path string true "Group UUID"
// @Success 200 {object} respond.Envelope{data=MemberList}
// @Failure 404 {object} respond.Envelope "Group not found"
// @Security BearerAuth
// @Router /groups/{uuid}/members [get]
func (h *Handler) ListMembers(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	list, err := h.manager.ListMembers(c.Request.Context(), c.Param("uuid"), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "Members retrieved successfully", list)
}

// AddMembers adds users to a group (admin only)
// @Summary Add group members
// @Description Add or reactivate members. Members who are already active are left unchanged.
// @Tags groups
// @Accept json
// @Produce json
// @Param uuid path string true "Group UUID"
// @Param request body AddMembersRequest true "Members"
// @Success 200 {object} respond.Envelope{data=MemberList}
// @Failure 403 {object} respond.Envelope "Admin access required"
// @Failure 404 {object} respond.Envelope "Group or user not found"
// @Security BearerAuth
// @Router /groups/{uuid}/members [post]
func (h *Handler) AddMembers(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req AddMembersRequest
	if err := validation.BindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	list, err := h.manager.AddMembers(c.Request.Context(), c.Param("uuid"), toSpecs(req.Members), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "Members added successfully", list)
}

// UpdateMember changes a member's role (admin only)
// @Summary Update a member's role
// @Tags groups
// @Accept json
// @Produce json
// @Param uuid path string true "Group UUID"
// @Param user_uuid path string true "User UUID"
// @Param request body UpdateMemberRequest true "Role"
// @Success 200 {object} respond.Envelope{data=Detail}
// @Failure 403 {object} respond.Envelope "Admin access required"
// @Failure 404 {object} respond.Envelope "Member not found"
// @Failure 422 {object} respond.Envelope "Group would be left without an admin"
// @Security BearerAuth
// @Router /groups/{uuid}/members/{user_uuid} [put]
func (h *Handler) UpdateMember(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	memberUUID := c.Param("user_uuid")

	var req UpdateMemberRequest
	if err := validation.BindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	detail, err := h.manager.UpdateGroup(c.Request.Context(), c.Param("uuid"), userID, Changes{
		RoleUpdates: []MemberSpec{{UserUUID: memberUUID, Role: models.GroupRole(req.Role)}},
	})
	if err != nil {
		respond.Error(c, err)
		return
	}
	if !hasMember(detail, memberUUID) {
		respond.Error(c, apperr.NotFound("Member not found"))
		return
	}
	respond.OK(c, http.StatusOK, "Member updated successfully", detail)
}

// RemoveMember removes a user from a group (admin only)
// @Summary Remove a member
// @Tags groups
// @Produce json
// @Param uuid path string true "Group UUID"
// @Param user_uuid path string true "User UUID"
// @Success 200 {object} respond.Envelope{data=Detail}
// @Failure 403 {object} respond.Envelope "Admin access required"
// @Failure 422 {object} respond.Envelope "Group would be left without an admin"
// @Security BearerAuth
// @Router /groups/{uuid}/members/{user_uuid} [delete]
func (h *Handler) RemoveMember(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	detail, err := h.manager.UpdateGroup(c.Request.Context(), c.Param("uuid"), userID, Changes{
		RemoveMembers: []string{c.Param("user_uuid")},
	})
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "Member removed successfully", detail)
}

func hasMember(detail *Detail, userUUID string) bool {
	for _, m := range detail.Members {
		if m.UUID == userUUID {
			return true
		}
	}
	return false
}

// RegisterMemberRoutes registers member management routes
func (h *Handler) RegisterMemberRoutes(rg *gin.RouterGroup) {
	rg.GET("/:uuid/members", h.ListMembers)
	rg.POST("/:uuid/members", h.AddMembers)
	rg.PUT("/:uuid/members/:user_uuid", h.UpdateMember)
	rg.DELETE("/:uuid/members/:user_uuid", h.RemoveMember)
}
