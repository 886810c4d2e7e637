package messages

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/auth"
	"github.com/parleychat/parley/pkg/parley/models"
	"github.com/parleychat/parley/pkg/parley/respond"
	"github.com/parleychat/parley/pkg/parley/validation"
)

// Handler serves the direct message endpoints
type Handler struct {
	service *Service
}

// NewHandler creates a new messages handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// SendRequest is the body of POST /direct-messages
type SendRequest struct {
	ReceiverUUID string `json:"receiver_uuid" binding:"required_without=GroupUUID,excluded_with=GroupUUID"`
	GroupUUID    string `json:"group_uuid" binding:"required_without=ReceiverUUID,excluded_with=ReceiverUUID"`
	Content      string `json:"content" binding:"required,notblank,max=10000"`
	// Image and file messages are created through the upload routes
	MessageType  string `json:"message_type" binding:"omitempty,oneof=text"`
}

// Send creates a direct or group message
// @Summary Send a message
// @Description Send a message to a user (receiver_uuid) or a group (group_uuid)
// @Tags messages
// @Accept json
// @Produce json
// @Param request body SendRequest true "Message"
// @Success 201 {object} respond.Envelope{data=MessageView}
// @Failure 400 {object} respond.Envelope "Validation error"
// @Failure 403 {object} respond.Envelope "Not a group member"
// @Failure 404 {object} respond.Envelope "Receiver or group not found"
// @Security BearerAuth
// @Router /direct-messages [post]
func (h *Handler) Send(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req SendRequest
	if err := validation.BindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	msg, err := h.service.Send(c.Request.Context(), SendInput{
		SenderID:     userID,
		ReceiverUUID: req.ReceiverUUID,
		GroupUUID:    req.GroupUUID,
		Content:      req.Content,
		MessageType:  models.MessageType(req.MessageType),
	})
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusCreated, "Message sent successfully", msg)
}

// List returns the conversation with a user or group
// @Summary List messages
// @Description Get the conversation with a user, or the messages of a group the caller belongs to
// @Tags messages
// @Produce json
// @Param receiver_uuid path string true "User or group UUID"
// @Param page query int false "Page (1-based, max 100000)"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} respond.Envelope{data=PageResponse}
// @Failure 404 {object} respond.Envelope "Conversation not found"
// @Security BearerAuth
// @Router /direct-messages/{receiver_uuid} [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	q, err := BindPage(c)
	if err != nil {
		respond.Error(c, err)
		return
	}

	result, err := h.service.List(c.Request.Context(), userID, c.Param("receiver_uuid"), q.Limit, q.Offset())
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Messages retrieved successfully", NewPageResponse(result, q))
}

// Delete removes one of the caller's own messages
// @Summary Delete a message
// @Description Soft-delete a message. Only the sender may delete it.
// @Tags messages
// @Produce json
// @Param message_uuid path string true "Message UUID"
// @Success 200 {object} respond.Envelope
// @Failure 403 {object} respond.Envelope "Not the sender"
// @Failure 404 {object} respond.Envelope "Message not found"
// @Security BearerAuth
// @Router /direct-messages/message/{message_uuid} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	if err := h.service.Delete(c.Request.Context(), c.Param("message_uuid"), userID); err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Message deleted successfully", nil)
}

// RegisterRoutes registers message routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Send)
	rg.GET("/:receiver_uuid", h.List)
	rg.DELETE("/message/:message_uuid", h.Delete)
}
