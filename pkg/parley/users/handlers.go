package users

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/auth"
	"github.com/parleychat/parley/pkg/parley/models"
	"github.com/parleychat/parley/pkg/parley/respond"
)

// Handler serves the user directory
type Handler struct {
	directory *Directory
}

// NewHandler creates a new users handler
func NewHandler(directory *Directory) *Handler {
	return &Handler{directory: directory}
}

// List returns every user except the caller
// @Summary List users
// @Description Get all users other than the authenticated caller
// @Tags users
// @Produce json
// @Success 200 {object} respond.Envelope{data=[]models.UserSummary}
// @Failure 401 {object} respond.Envelope "Authentication required"
// @Security BearerAuth
// @Router /users [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	list, err := h.directory.ListExcept(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	summaries := make([]models.UserSummary, len(list))
	for i, u := range list {
		summaries[i] = u.Summary()
	}

	respond.OK(c, http.StatusOK, "Users retrieved successfully", summaries)
}

// RegisterRoutes registers user routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
}
