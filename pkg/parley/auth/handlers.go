package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/apperr"
	"github.com/parleychat/parley/pkg/parley/respond"
	"github.com/parleychat/parley/pkg/parley/validation"
)

// Handler exposes account routes
type Handler struct {
	accounts *Accounts
}

// NewHandler creates a handler over accounts
func NewHandler(accounts *Accounts) *Handler {
	return &Handler{accounts: accounts}
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,notblank,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account
// @Summary Register
// @Description Create an account and receive a JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} respond.Envelope{data=Session}
// @Failure 400 {object} respond.Envelope "Validation error"
// @Failure 409 {object} respond.Envelope "Email already registered"
// @Router /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := validation.BindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	session, err := h.accounts.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusCreated, "User registered successfully", session)
}

// Login exchanges credentials for a JWT
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} respond.Envelope{data=Session}
// @Failure 400 {object} respond.Envelope "Validation error"
// @Failure 401 {object} respond.Envelope "Wrong password"
// @Failure 404 {object} respond.Envelope "Unknown email"
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := validation.BindJSON(c, &req); err != nil {
		respond.Error(c, err)
		return
	}

	session, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "Login successful", session)
}

// Me returns the caller's profile
// @Summary Current user
// @Tags auth
// @Produce json
// @Success 200 {object} respond.Envelope{data=models.UserSummary}
// @Failure 401 {object} respond.Envelope "Authentication required"
// @Security BearerAuth
// @Router /auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	userID, ok := GetUserID(c)
	if !ok {
		respond.Error(c, apperr.Unauthenticated("Authentication required"))
		return
	}

	profile, err := h.accounts.Profile(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, "User retrieved successfully", profile)
}

// Logout is a no-op; tokens are discarded client-side
// @Summary Log out
// @Tags auth
// @Produce json
// @Success 200 {object} respond.Envelope
// @Router /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	respond.OK(c, http.StatusOK, "Logged out successfully", nil)
}

// RegisterRoutes mounts the account routes on rg
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.Login)
	rg.POST("/logout", h.Logout)
	rg.GET("/me", AuthMiddleware(), h.Me)
}
