package client

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

type ClientRequest struct {
	Name       string `json:"name" binding:"required,max=200"`
	NationalID string `json:"national_id" binding:"required,max=20"`
	Email      string `json:"email" binding:"required,email,max=100"`
	Phone      string `json:"phone" binding:"required,min=7,max=20"`
}

type UpdateClientRequest struct {
	ClientRequest
	Version int `json:"version" binding:"required,min=1"`
}

type AddressRequest struct {
	Province  string `json:"province" binding:"required,max=100"`
	Canton    string `json:"canton" binding:"required,max=100"`
	District  string `json:"district" binding:"required,max=100"`
	IsPrimary bool   `json:"is_primary"`
}

// List returns clients ordered by name. Filters: name, national_id
// (substring match).
func (h *Handler) List(c *gin.Context) {
	params := pagination.FromQuery(c)

	query := h.db.Model(&database.Client{})
	if name := c.Query("name"); name != "" {
		query = query.Where("name LIKE ?", "%"+name+"%")
	}
	if nationalID := c.Query("national_id"); nationalID != "" {
		query = query.Where("national_id LIKE ?", "%"+nationalID+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener los clientes"})
		return
	}

	var clients []database.Client
	if err := query.Order("name ASC").Scopes(params.Scope()).Find(&clients).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener los clientes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pagination.NewResult(clients, total, params)})
}

// Get returns a single client with its addresses.
func (h *Handler) Get(c *gin.Context) {
	var client database.Client
	if err := h.db.First(&client, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cliente no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	var addresses []database.ClientAddress
	if err := h.db.Where("client_id = ?", client.ID).
		Order("is_primary DESC, created_at ASC").Find(&addresses).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener las direcciones"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": client, "addresses": addresses})
}

// Create adds a new client. All field violations are collected and
// returned together; duplicates are reported per offending field.
func (h *Handler) Create(c *gin.Context) {
	var req ClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	errs, err := h.checkUniqueness(req, uuid.Nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo validar el cliente"})
		return
	}
	if errs.Any() {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "errors": errs, "code": apperrors.ErrConflict.Code})
		return
	}

	client := database.Client{
		Name:       req.Name,
		NationalID: req.NationalID,
		Email:      req.Email,
		Phone:      req.Phone,
	}
	if err := h.db.Create(&client).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo guardar el cliente"})
		return
	}

	h.logger.LogCreate(c, "client", client.ID, map[string]interface{}{
		"name":        client.Name,
		"national_id": client.NationalID,
	})

	c.JSON(http.StatusCreated, gin.H{"data": client})
}

// Update modifies a client. Uniqueness checks exclude the row being
// edited by identity; the write is version-checked.
func (h *Handler) Update(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cliente no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	var client database.Client
	if err := h.db.First(&client, "id = ?", clientID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cliente no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	var req UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	errs, err := h.checkUniqueness(req.ClientRequest, clientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo validar el cliente"})
		return
	}
	if errs.Any() {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "errors": errs, "code": apperrors.ErrConflict.Code})
		return
	}

	oldValues := map[string]interface{}{
		"name": client.Name, "national_id": client.NationalID,
		"email": client.Email, "phone": client.Phone,
	}

	err = database.UpdateWithVersion(h.db, &database.Client{}, clientID, req.Version, map[string]interface{}{
		"name":        req.Name,
		"national_id": req.NationalID,
		"email":       req.Email,
		"phone":       req.Phone,
	})
	if err != nil {
		respondUpdateError(c, err)
		return
	}

	h.logger.LogUpdate(c, "client", clientID, oldValues, map[string]interface{}{
		"name": req.Name, "national_id": req.NationalID,
		"email": req.Email, "phone": req.Phone,
	})

	h.db.First(&client, "id = ?", clientID)
	c.JSON(http.StatusOK, gin.H{"data": client})
}

// Delete removes a client and cascades its addresses. Clients with
// orders cannot be deleted.
func (h *Handler) Delete(c *gin.Context) {
	var client database.Client
	if err := h.db.First(&client, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cliente no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	var orderCount int64
	h.db.Model(&database.Order{}).Where("client_id = ?", client.ID).Count(&orderCount)
	if orderCount > 0 {
		c.JSON(http.StatusConflict, gin.H{
			"error": "No se puede eliminar: el cliente tiene pedidos asociados",
			"code":  apperrors.ErrConflict.Code,
		})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_id = ?", client.ID).Delete(&database.ClientAddress{}).Error; err != nil {
			return err
		}
		return tx.Delete(&client).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo eliminar el cliente"})
		return
	}

	h.logger.LogDelete(c, "client", client.ID, map[string]interface{}{
		"name":        client.Name,
		"national_id": client.NationalID,
	})

	c.JSON(http.StatusOK, gin.H{"message": "Cliente eliminado correctamente"})
}

// ListAddresses returns the client's addresses, primary first.
func (h *Handler) ListAddresses(c *gin.Context) {
	var client database.Client
	if err := h.db.First(&client, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cliente no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	var addresses []database.ClientAddress
	if err := h.db.Where("client_id = ?", client.ID).
		Order("is_primary DESC, created_at ASC").Find(&addresses).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener las direcciones"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": addresses})
}

// CreateAddress adds an address; marking it primary clears the flag on
// the client's other addresses.
func (h *Handler) CreateAddress(c *gin.Context) {
	var client database.Client
	if err := h.db.First(&client, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cliente no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	var req AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	address := database.ClientAddress{
		ClientID:  client.ID,
		Province:  req.Province,
		Canton:    req.Canton,
		District:  req.District,
		IsPrimary: req.IsPrimary,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if req.IsPrimary {
			if err := tx.Model(&database.ClientAddress{}).
				Where("client_id = ?", client.ID).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(&address).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo guardar la dirección"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": address})
}

// UpdateAddress modifies an address of the client.
func (h *Handler) UpdateAddress(c *gin.Context) {
	var address database.ClientAddress
	if err := h.db.First(&address, "id = ? AND client_id = ?", c.Param("addressID"), c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dirección no encontrada", "code": apperrors.ErrNotFound.Code})
		return
	}

	var req AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if req.IsPrimary && !address.IsPrimary {
			if err := tx.Model(&database.ClientAddress{}).
				Where("client_id = ?", address.ClientID).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		address.Province = req.Province
		address.Canton = req.Canton
		address.District = req.District
		address.IsPrimary = req.IsPrimary
		return tx.Save(&address).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo actualizar la dirección"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": address})
}

// MakePrimaryAddress flags the address as the client's only primary one.
func (h *Handler) MakePrimaryAddress(c *gin.Context) {
	var address database.ClientAddress
	if err := h.db.First(&address, "id = ? AND client_id = ?", c.Param("addressID"), c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dirección no encontrada", "code": apperrors.ErrNotFound.Code})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&database.ClientAddress{}).
			Where("client_id = ?", address.ClientID).
			Update("is_primary", false).Error; err != nil {
			return err
		}
		return tx.Model(&address).Update("is_primary", true).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo actualizar la dirección"})
		return
	}

	address.IsPrimary = true
	c.JSON(http.StatusOK, gin.H{"data": address})
}

// DeleteAddress removes one address.
func (h *Handler) DeleteAddress(c *gin.Context) {
	res := h.db.Where("id = ? AND client_id = ?", c.Param("addressID"), c.Param("id")).
		Delete(&database.ClientAddress{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo eliminar la dirección"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dirección no encontrada", "code": apperrors.ErrNotFound.Code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Dirección eliminada correctamente"})
}

// checkUniqueness runs the four duplicate checks, each reported on its
// own field. excludeID skips the row being edited, by identity.
func (h *Handler) checkUniqueness(req ClientRequest, excludeID uuid.UUID) (validation.Errors, error) {
	errs := validation.Errors{}
	checks := []struct {
		field   string
		column  string
		value   string
		message string
	}{
		{"national_id", "national_id", req.NationalID, "Ya existe otro cliente con esa cédula"},
		{"email", "email", req.Email, "Ya existe otro cliente con ese correo"},
		{"phone", "phone", req.Phone, "Ya existe otro cliente con ese número de teléfono"},
		{"name", "name", req.Name, "Ya existe otro cliente con ese nombre"},
	}
	for _, check := range checks {
		var n int64
		query := h.db.Model(&database.Client{}).Where(check.column+" = ?", check.value)
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
			c.JSON(http.StatusNotFound, gin.H{"error": "Cliente no encontrado", "code": appErr.Code})
			return
		case apperrors.ErrConcurrencyConflict.Code:
			c.JSON(http.StatusConflict, gin.H{"error": "El cliente fue modificado por otro usuario, recargue e intente de nuevo", "code": appErr.Code})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo actualizar el cliente"})
}
