package activity

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pedidos360/backend/pkg/database"
	"github.com/pedidos360/backend/pkg/pagination"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// List returns the audit trail, newest first. Filters: user_id, action,
// entity_type.
func (h *Handler) List(c *gin.Context) {
	params := pagination.FromQuery(c)

	query := h.db.Model(&database.ActivityLog{})
	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if entityType := c.Query("entity_type"); entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo obtener la bitácora"})
		return
	}

	var logs []database.ActivityLog
	if err := query.Preload("User").Order("created_at DESC").Scopes(params.Scope()).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo obtener la bitácora"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pagination.NewResult(logs, total, params)})
}
