package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/auth"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/config"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/services"
)

// UserHandler handles REST requests related to accounts.
type UserHandler struct {
	userService services.IUserService
	cfg         *config.Config
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService services.IUserService, cfg *config.Config) *UserHandler {
	return &UserHandler{userService: userService, cfg: cfg}
}

// PublicUser is the externally visible slice of an account.
type PublicUser struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	DateJoined string `json:"date_joined"`
}

type registerUserRequest struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required"`
	Role         string `json:"role" binding:"required"`
	ReferralCode string `json:"referral_code"`
}

// Register handles POST /v1/users. A referral code binds the new account
// into the referrer's chain at registration time.
func (h *UserHandler) Register(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	role := models.Role(req.Role)
	if role != models.RoleBuyer && role != models.RoleDealer {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be buyer or dealer"})
		return
	}

	user, err := h.userService.Create(c.Request.Context(), req.Name, req.Email, role, req.ReferralCode)
	if err != nil && user == nil {
		respondError(c, err)
		return
	}

	token, terr := auth.GenerateJWT(user.ID, user.Role, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if terr != nil {
		respondError(c, terr)
		return
	}
	resp := gin.H{"user": toPublicUser(user), "token": token}
	if err != nil {
		// Account created but the referral code failed to bind.
		resp["referral_error"] = err.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

// GetUserByID handles GET /v1/users/:id
func (h *UserHandler) GetUserByID(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPublicUser(user))
}

// FindByEmail handles GET /v1/admin/users?email=...
func (h *UserHandler) FindByEmail(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email query parameter required"})
		return
	}
	user, err := h.userService.FindByEmail(c.Request.Context(), email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Suspend handles POST /v1/admin/users/:id/suspend
func (h *UserHandler) Suspend(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.userService.Suspend(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suspended": true})
}

func toPublicUser(user *models.User) PublicUser {
	return PublicUser{
		ID:         user.ID.String(),
		Name:       user.Name,
		Role:       string(user.Role),
		DateJoined: user.CreatedAt.Format("2006-01-02"),
	}
}
