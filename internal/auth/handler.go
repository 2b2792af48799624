package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pedidos360/backend/pkg/database"
	"github.com/pedidos360/backend/pkg/middleware"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

type AuthResponse struct {
	AccessToken string        `json:"access_token"`
	ExpiresIn   int64         `json:"expires_in"`
	User        database.User `json:"user"`
	Role        string        `json:"role"`
}

// Login authenticates by username or email and issues an access token
// carrying the user's role.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user database.User
	if err := h.db.Where("username = ? OR email = ?", req.UsernameOrEmail, req.UsernameOrEmail).
		First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Credenciales inválidas"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Credenciales inválidas"})
		return
	}

	role := h.roleOf(&user)
	token, err := middleware.SignToken(user.ID.String(), user.Username, role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo generar el token"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		AccessToken: token,
		ExpiresIn:   int64(middleware.TokenTTL.Seconds()),
		User:        user,
		Role:        role,
	})
}

// GetMe returns the authenticated user.
func (h *Handler) GetMe(c *gin.Context) {
	var user database.User
	if err := h.db.First(&user, "id = ?", c.GetString("user_id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Usuario no encontrado"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": user, "role": h.roleOf(&user)})
}

func (h *Handler) roleOf(user *database.User) string {
	var userRole database.UserRole
	if err := h.db.Preload("Role").Where("user_id = ?", user.ID).First(&userRole).Error; err != nil {
		return ""
	}
	if userRole.Role == nil {
		return ""
	}
	return userRole.Role.Name
}
