package uploads

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/auth"
	"github.com/parleychat/parley/pkg/parley/messages"
	"github.com/parleychat/parley/pkg/parley/models"
	"github.com/parleychat/parley/pkg/parley/respond"
	"github.com/parleychat/parley/pkg/parley/validation"
	"github.com/sirupsen/logrus"
)

// Handler accepts uploads and turns them into file messages
type Handler struct {
	store    *Store
	messages *messages.Service
}

// NewHandler creates a new uploads handler
func NewHandler(store *Store, messageService *messages.Service) *Handler {
	return &Handler{store: store, messages: messageService}
}

// UploadRequest is the body of POST /upload
type UploadRequest struct {
	Data         string `json:"data" binding:"required"`
	Type         string `json:"type"`
	FileName     string `json:"fileName" binding:"required,notblank,max=255"`
	ReceiverUUID string `json:"receiver_uuid" binding:"required_without=GroupUUID,excluded_with=GroupUUID"`
	GroupUUID    string `json:"group_uuid" binding:"required_without=ReceiverUUID,excluded_with=ReceiverUUID"`
}

// Upload stores a file and sends it as a message
// @Summary Upload a file
// @Description Store a base64-encoded file and send it to a user or group as an image or file message
// @Tags uploads
// @Accept json
// @Produce json
// @Param request body UploadRequest true "File"
// @Success 201 {object} respond.Envelope{data=messages.MessageView}
// @Failure 400 {object} respond.Envelope "Validation error"
// @Failure 404 {object} respond.Envelope "Receiver or group not found"
// @Security BearerAuth
// @Router /upload [post]
func (h *Handler) Upload(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req UploadRequest
	if err := validation.BindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	stored, err := h.store.Save(req.Data, req.Type, req.FileName)
	if err != nil {
		respond.Error(c, err)
		return
	}

	kind := models.MessageTypeFile
	if strings.HasPrefix(stored.MimeType, "image/") {
		kind = models.MessageTypeImage
	}

	msg, err := h.messages.Send(c.Request.Context(), messages.SendInput{
		SenderID:     userID,
		ReceiverUUID: req.ReceiverUUID,
		GroupUUID:    req.GroupUUID,
		Content:      stored.FileName,
		MessageType:  kind,
		File: &models.FileDescriptor{
			FileName: stored.FileName,
			MimeType: stored.MimeType,
			Path:     stored.URLPath,
		},
	})
	if err != nil {
		if rmErr := h.store.Remove(stored); rmErr != nil {
			logrus.WithError(rmErr).WithField("path", stored.DiskPath).Warn("Failed to remove orphaned upload")
		}
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusCreated, "File uploaded successfully", msg)
}

// RegisterRoutes registers the upload route
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/upload", h.Upload)
}
