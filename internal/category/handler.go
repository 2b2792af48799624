package category

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

type CategoryRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

type UpdateCategoryRequest struct {
	CategoryRequest
	Version int `json:"version" binding:"required,min=1"`
}

// List returns categories ordered by name, filtered by name substring.
func (h *Handler) List(c *gin.Context) {
	params := pagination.FromQuery(c)

	query := h.db.Model(&database.Category{})
	if name := c.Query("name"); name != "" {
		query = query.Where("name LIKE ?", "%"+name+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener las categorías"})
		return
	}

	var categories []database.Category
	if err := query.Order("name ASC").Scopes(params.Scope()).Find(&categories).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener las categorías"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pagination.NewResult(categories, total, params)})
}

// Get returns a single category.
func (h *Handler) Get(c *gin.Context) {
	var category database.Category
	if err := h.db.First(&category, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Categoría no encontrada", "code": apperrors.ErrNotFound.Code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": category})
}

// Create adds a category. Name uniqueness is by convention only, so no
// duplicate check here.
func (h *Handler) Create(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	category := database.Category{Name: req.Name}
	if err := h.db.Create(&category).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo guardar la categoría"})
		return
	}

	h.logger.LogCreate(c, "category", category.ID, map[string]interface{}{"name": category.Name})
	c.JSON(http.StatusCreated, gin.H{"data": category})
}

// Update renames a category, version-checked.
func (h *Handler) Update(c *gin.Context) {
	categoryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Categoría no encontrada", "code": apperrors.ErrNotFound.Code})
		return
	}

	var category database.Category
	if err := h.db.First(&category, "id = ?", categoryID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Categoría no encontrada", "code": apperrors.ErrNotFound.Code})
		return
	}

	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	oldName := category.Name
	err = database.UpdateWithVersion(h.db, &database.Category{}, categoryID, req.Version, map[string]interface{}{
		"name": req.Name,
	})
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			switch appErr.Code {
			case apperrors.ErrNotFound.Code:
				c.JSON(http.StatusNotFound, gin.H{"error": "Categoría no encontrada", "code": appErr.Code})
				return
			case apperrors.ErrConcurrencyConflict.Code:
				c.JSON(http.StatusConflict, gin.H{"error": "La categoría fue modificada por otro usuario, recargue e intente de nuevo", "code": appErr.Code})
				return
			}
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo actualizar la categoría"})
		return
	}

	h.logger.LogUpdate(c, "category", categoryID, map[string]interface{}{"name": oldName},
		map[string]interface{}{"name": req.Name})

	h.db.First(&category, "id = ?", categoryID)
	c.JSON(http.StatusOK, gin.H{"data": category})
}

// Delete removes a category. Categories with products cannot be deleted.
func (h *Handler) Delete(c *gin.Context) {
	var category database.Category
	if err := h.db.First(&category, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Categoría no encontrada", "code": apperrors.ErrNotFound.Code})
		return
	}

	var productCount int64
	h.db.Model(&database.Product{}).Where("category_id = ?", category.ID).Count(&productCount)
	if productCount > 0 {
		c.JSON(http.StatusConflict, gin.H{
			"error": "No se puede eliminar: la categoría tiene productos asociados",
			"code":  apperrors.ErrConflict.Code,
		})
		return
	}

	if err := h.db.Delete(&category).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo eliminar la categoría"})
		return
	}

	h.logger.LogDelete(c, "category", category.ID, map[string]interface{}{"name": category.Name})
	c.JSON(http.StatusOK, gin.H{"message": "Categoría eliminada correctamente"})
}
