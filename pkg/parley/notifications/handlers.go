package notifications

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/auth"
	"github.com/parleychat/parley/pkg/parley/respond"
	"github.com/parleychat/parley/pkg/parley/validation"
)

// Handler exposes push token management
type Handler struct {
	dispatcher *Dispatcher
}

// NewHandler creates a new notifications handler
func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// TokenRequest carries a device push token
type TokenRequest struct {
	FCMToken string `json:"fcm_token" binding:"required,notblank"`
}

// TestRequest is a notification to send to the caller's own device
type TestRequest struct {
	Title string `json:"title" binding:"required,notblank"`
	Body  string `json:"body" binding:"required"`
}

// TestResponse reports whether the test notification was handed off
type TestResponse struct {
	Sent bool `json:"sent"`
}

// RegisterToken stores the caller's device token
// @Summary Register push token
// @Description Store the Firebase Cloud Messaging token for the authenticated user
// @Tags notifications
// @Accept json
// @Produce json
// @Param request body TokenRequest true "Device token"
// @Success 200 {object} respond.Envelope
// @Failure 400 {object} respond.Envelope "Validation error"
// @Security BearerAuth
// @Router /notifications/token [post]
func (h *Handler) RegisterToken(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req TokenRequest
	if err := validation.BindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	if err := h.dispatcher.RegisterToken(c.Request.Context(), userID, req.FCMToken); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "Push token registered", nil)
}

// ClearToken removes the caller's device token
// @Summary Remove push token
// @Tags notifications
// @Produce json
// @Success 200 {object} respond.Envelope
// @Security BearerAuth
// @Router /notifications/token [delete]
func (h *Handler) ClearToken(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	if err := h.dispatcher.ClearToken(c.Request.Context(), userID); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "Push token removed", nil)
}

// Test sends a notification to the caller synchronously
// @Summary Send a test notification
// @Description Push a notification to the authenticated user's own device
// @Tags notifications
// @Accept json
// @Produce json
// @Param request body TestRequest true "Notification"
// @Success 200 {object} respond.Envelope{data=TestResponse}
// @Security BearerAuth
// @Router /notifications/test [post]
func (h *Handler) Test(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req TestRequest
	if err := validation.BindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	sent := h.dispatcher.Send(c.Request.Context(), userID, Notification{
		Title: req.Title,
		Body:  req.Body,
		Data:  map[string]string{"type": "test"},
	})

	message := "Notification sent"
	if !sent {
		message = "Notification not sent"
	}
	respond.OK(c, http.StatusOK, message, TestResponse{Sent: sent})
}

// RegisterRoutes registers notification routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/token", h.RegisterToken)
	rg.DELETE("/token", h.ClearToken)
	rg.POST("/test", h.Test)
}
