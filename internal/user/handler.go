package user

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pedidos360/backend/pkg/activitylog"
	"github.com/pedidos360/backend/pkg/apperrors"
	"github.com/pedidos360/backend/pkg/database"
	"github.com/pedidos360/backend/pkg/pagination"
	"github.com/pedidos360/backend/pkg/validation"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	db     *gorm.DB
	logger *activitylog.Logger
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{
		db:     db,
		logger: activitylog.NewLogger(db),
	}
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,email,max=256"`
	FullName string `json:"full_name" binding:"required,max=100"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required,oneof=Admin Ventas Operaciones"`
}

type UpdateUserRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,email,max=256"`
	FullName string `json:"full_name" binding:"required,max=100"`
	Role     string `json:"role" binding:"required,oneof=Admin Ventas Operaciones"`
	Version  int    `json:"version" binding:"required,min=1"`
}

// UserResponse pairs a user with its single role name.
type UserResponse struct {
	database.User
	Role string `json:"role"`
}

// List returns users ordered by username. The text filter matches
// username, email or full name; the role filter goes through the join.
func (h *Handler) List(c *gin.Context) {
	params := pagination.FromQuery(c)

	query := h.db.Model(&database.User{})
	if text := c.Query("text"); text != "" {
		like := "%" + text + "%"
		query = query.Where("username LIKE ? OR email LIKE ? OR full_name LIKE ?", like, like, like)
	}
	if role := c.Query("role"); role != "" {
		query = query.Where(
			"id IN (SELECT user_id FROM user_roles WHERE role_id IN (SELECT id FROM roles WHERE name = ?))",
			role,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener los usuarios"})
		return
	}

	var users []database.User
	if err := query.Order("username ASC").Scopes(params.Scope()).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener los usuarios"})
		return
	}

	items := make([]UserResponse, 0, len(users))
	for _, u := range users {
		items = append(items, UserResponse{User: u, Role: h.roleOf(u.ID)})
	}

	c.JSON(http.StatusOK, gin.H{"data": pagination.NewResult(items, total, params)})
}

// Get returns a single user with its role.
func (h *Handler) Get(c *gin.Context) {
	var user database.User
	if err := h.db.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Usuario no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": UserResponse{User: user, Role: h.roleOf(user.ID)}})
}

// Create adds a staff account with its role assignment.
func (h *Handler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	errs, err := h.checkUniqueness(req.Username, req.Email, uuid.Nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo validar el usuario"})
		return
	}
	if errs.Any() {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "errors": errs, "code": apperrors.ErrConflict.Code})
		return
	}

	role, err := h.findRole(req.Role)
	if err != nil {
		errs := validation.Errors{}
		errs.Add("role", "Rol inválido")
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": errs})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo crear el usuario"})
		return
	}

	user := database.User{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: string(hash),
	}
	if err := h.db.Create(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo crear el usuario"})
		return
	}
	if err := h.db.Create(&database.UserRole{UserID: user.ID, RoleID: role.ID}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo asignar el rol"})
		return
	}

	h.logger.LogCreate(c, "user", user.ID, map[string]interface{}{
		"username": user.Username,
		"role":     req.Role,
	})

	c.JSON(http.StatusCreated, gin.H{"data": UserResponse{User: user, Role: req.Role}})
}

// Update modifies a user. Username/email uniqueness excludes the row
// being edited by identity; the role change, if any, is applied as a
// remove followed by an add.
func (h *Handler) Update(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Usuario no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	var user database.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Usuario no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	errs, err := h.checkUniqueness(req.Username, req.Email, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo validar el usuario"})
		return
	}
	if errs.Any() {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "errors": errs, "code": apperrors.ErrConflict.Code})
		return
	}

	role, err := h.findRole(req.Role)
	if err != nil {
		errs := validation.Errors{}
		errs.Add("role", "Rol inválido")
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": errs})
		return
	}

	err = database.UpdateWithVersion(h.db, &database.User{}, userID, req.Version, map[string]interface{}{
		"username":  req.Username,
		"email":     req.Email,
		"full_name": req.FullName,
	})
	if err != nil {
		respondUpdateError(c, err)
		return
	}

	oldRole := h.roleOf(userID)
	if oldRole != req.Role {
		if err := h.changeRole(userID, role); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo actualizar el rol"})
			return
		}
		h.logger.LogRoleChange(c, userID, oldRole, req.Role)
	}

	h.db.First(&user, "id = ?", userID)
	c.JSON(http.StatusOK, gin.H{"data": UserResponse{User: user, Role: req.Role}})
}

// Delete removes a user. Callers cannot delete themselves, and users
// who own orders cannot be deleted.
func (h *Handler) Delete(c *gin.Context) {
	var user database.User
	if err := h.db.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Usuario no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	if c.GetString("user_id") == user.ID.String() {
		c.JSON(http.StatusConflict, gin.H{
			"error": "No puedes eliminar tu propio usuario",
			"code":  apperrors.ErrSelfDelete.Code,
		})
		return
	}

	var orderCount int64
	h.db.Model(&database.Order{}).Where("user_id = ?", user.ID).Count(&orderCount)
	if orderCount > 0 {
		c.JSON(http.StatusConflict, gin.H{
			"error": "No se puede eliminar: el usuario tiene pedidos asociados",
			"code":  apperrors.ErrConflict.Code,
		})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&database.UserRole{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo eliminar el usuario"})
		return
	}

	h.logger.LogDelete(c, "user", user.ID, map[string]interface{}{
		"username": user.Username,
	})

	c.JSON(http.StatusOK, gin.H{"message": "Usuario eliminado correctamente"})
}

// changeRole removes the user's current role rows and then adds the new
// one. Deliberately two writes, not one transaction: a failure between
// them leaves the user role-less until retried, never double-roled.
func (h *Handler) changeRole(userID uuid.UUID, newRole *database.Role) error {
	if err := h.db.Where("user_id = ?", userID).Delete(&database.UserRole{}).Error; err != nil {
		return err
	}
	return h.db.Create(&database.UserRole{UserID: userID, RoleID: newRole.ID}).Error
}

func (h *Handler) findRole(name string) (*database.Role, error) {
	var role database.Role
	if err := h.db.Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// roleOf returns the user's single role name, or "" when role-less.
func (h *Handler) roleOf(userID uuid.UUID) string {
	var userRole database.UserRole
	if err := h.db.Preload("Role").Where("user_id = ?", userID).First(&userRole).Error; err != nil {
		return ""
	}
	if userRole.Role == nil {
		return ""
	}
	return userRole.Role.Name
}

func (h *Handler) checkUniqueness(username, email string, excludeID uuid.UUID) (validation.Errors, error) {
	errs := validation.Errors{}
	checks := []struct {
		field   string
		column  string
		value   string
		message string
	}{
		{"username", "username", username, "Ese nombre de usuario ya existe"},
		{"email", "email", email, "Ese correo ya existe"},
	}
	for _, check := range checks {
		var n int64
		query := h.db.Model(&database.User{}).Where(check.column+" = ?", check.value)
		if excludeID != uuid.Nil {
			query = query.Where("id <> ?", excludeID)
		}
		if err := query.Count(&n).Error; err != nil {
			return nil, err
		}
		if n > 0 {
			errs.Add(check.field, check.message)
		}
	}
	return errs, nil
}

func respondUpdateError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.ErrNotFound.Code:
			c.JSON(http.StatusNotFound, gin.H{"error": "Usuario no encontrado", "code": appErr.Code})
			return
		case apperrors.ErrConcurrencyConflict.Code:
			c.JSON(http.StatusConflict, gin.H{"error": "El usuario fue modificado por otro usuario, recargue e intente de nuevo", "code": appErr.Code})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo actualizar el usuario"})
}
