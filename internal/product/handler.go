package product

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pedidos360/backend/pkg/activitylog"
	"github.com/pedidos360/backend/pkg/apperrors"
	"github.com/pedidos360/backend/pkg/database"
	"github.com/pedidos360/backend/pkg/pagination"
	"github.com/pedidos360/backend/pkg/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Image uploads above this size are rejected.
const maxImageBytes = 5 << 20

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

type ProductRequest struct {
	Name       string          `json:"name" binding:"required,max=200"`
	Price      decimal.Decimal `json:"price" binding:"required"`
	TaxPercent decimal.Decimal `json:"tax_percent"`
	Stock      int             `json:"stock" binding:"min=0"`
	IsActive   *bool           `json:"is_active"`
	CategoryID uuid.UUID       `json:"category_id" binding:"required"`
}

type UpdateProductRequest struct {
	ProductRequest
	Version int `json:"version" binding:"required,min=1"`
}

type StockRequest struct {
	Adjustment int    `json:"adjustment" binding:"required"`
	Reason     string `json:"reason"`
}

// List returns products ordered by name. Filters: name (substring),
// category_id.
func (h *Handler) List(c *gin.Context) {
	params := pagination.FromQuery(c)

	query := h.db.Model(&database.Product{})
	if name := c.Query("name"); name != "" {
		query = query.Where("name LIKE ?", "%"+name+"%")
	}
	if categoryID := c.Query("category_id"); categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener los productos"})
		return
	}

	var products []database.Product
	if err := query.Preload("Category").Order("name ASC").
		Scopes(params.Scope()).Find(&products).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener los productos"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pagination.NewResult(products, total, params)})
}

// Get returns a single product.
func (h *Handler) Get(c *gin.Context) {
	var product database.Product
	if err := h.db.Preload("Category").First(&product, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Producto no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": product})
}

// Create adds a new product after validating bounds and name uniqueness.
func (h *Handler) Create(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	if errs := validateBounds(req); errs.Any() {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": errs})
		return
	}

	var category database.Category
	if err := h.db.First(&category, "id = ?", req.CategoryID).Error; err != nil {
		errs := validation.Errors{}
		errs.Add("category_id", "la categoría no existe")
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": errs})
		return
	}

	errs, err := h.checkUniqueness(req.Name, uuid.Nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo validar el producto"})
		return
	}
	if errs.Any() {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "errors": errs, "code": apperrors.ErrConflict.Code})
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	product := database.Product{
		Name:       req.Name,
		Price:      req.Price,
		TaxPercent: req.TaxPercent,
		Stock:      req.Stock,
		IsActive:   isActive,
		CategoryID: req.CategoryID,
	}
	if err := h.db.Create(&product).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo guardar el producto"})
		return
	}

	h.logger.LogCreate(c, "product", product.ID, map[string]interface{}{
		"name":  product.Name,
		"price": product.Price,
	})

	c.JSON(http.StatusCreated, gin.H{"data": product})
}

// Update modifies a product. Name uniqueness excludes the row itself;
// the write is version-checked.
func (h *Handler) Update(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Producto no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	var product database.Product
	if err := h.db.First(&product, "id = ?", productID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Producto no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	var req UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	if errs := validateBounds(req.ProductRequest); errs.Any() {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": errs})
		return
	}

	errs, err := h.checkUniqueness(req.Name, productID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo validar el producto"})
		return
	}
	if errs.Any() {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "errors": errs, "code": apperrors.ErrConflict.Code})
		return
	}

	oldValues := map[string]interface{}{
		"name": product.Name, "price": product.Price, "stock": product.Stock,
	}

	updates := map[string]interface{}{
		"name":        req.Name,
		"price":       req.Price,
		"tax_percent": req.TaxPercent,
		"stock":       req.Stock,
		"category_id": req.CategoryID,
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	err = database.UpdateWithVersion(h.db, &database.Product{}, productID, req.Version, updates)
	if err != nil {
		respondUpdateError(c, err)
		return
	}

	h.logger.LogUpdate(c, "product", productID, oldValues, map[string]interface{}{
		"name": req.Name, "price": req.Price, "stock": req.Stock,
	})

	h.db.Preload("Category").First(&product, "id = ?", productID)
	c.JSON(http.StatusOK, gin.H{"data": product})
}

// UpdateStock applies a signed stock adjustment, refusing to go below
// zero.
func (h *Handler) UpdateStock(c *gin.Context) {
	var req StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	var product database.Product
	if err := h.db.First(&product, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Producto no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	res := h.db.Model(&database.Product{}).
		Where("id = ? AND stock + ? >= 0", product.ID, req.Adjustment).
		Update("stock", gorm.Expr("stock + ?", req.Adjustment))
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo ajustar el stock"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{
			"error": "El ajuste dejaría el stock negativo",
			"code":  apperrors.ErrInsufficientStock.Code,
		})
		return
	}

	h.logger.LogActivity(c, "stock_adjust", "product", &product.ID, map[string]interface{}{
		"adjustment": req.Adjustment,
		"reason":     req.Reason,
	})

	h.db.First(&product, "id = ?", product.ID)
	c.JSON(http.StatusOK, gin.H{"data": product})
}

// UploadImage stores the uploaded file as the product's opaque image
// reference (base64, as the storage collaborator expects).
func (h *Handler) UploadImage(c *gin.Context) {
	var product database.Product
	if err := h.db.First(&product, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Producto no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No se recibió ninguna imagen"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo leer la imagen"})
		return
	}
	if len(data) > maxImageBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La imagen excede el tamaño máximo de 5MB"})
		return
	}

	if err := h.db.Model(&product).Update("image_url", base64.StdEncoding.EncodeToString(data)).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo guardar la imagen"})
		return
	}

	h.logger.LogActivity(c, "image_upload", "product", &product.ID, map[string]interface{}{
		"bytes": len(data),
	})

	c.JSON(http.StatusOK, gin.H{"message": "Imagen actualizada correctamente"})
}

// ToggleActive flips a product's is_active status, version-guarded like
// every other product write.
func (h *Handler) ToggleActive(c *gin.Context) {
	var product database.Product
	if err := h.db.First(&product, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Producto no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	newState := !product.IsActive
	err := database.UpdateWithVersion(h.db, &database.Product{}, product.ID, product.Version, map[string]interface{}{
		"is_active": newState,
	})
	if err != nil {
		respondUpdateError(c, err)
		return
	}

	h.logger.LogToggle(c, "product", product.ID, newState)

	h.db.First(&product, "id = ?", product.ID)
	c.JSON(http.StatusOK, gin.H{"data": product})
}

// Delete removes a product. Products referenced by order lines cannot
// be deleted.
func (h *Handler) Delete(c *gin.Context) {
	var product database.Product
	if err := h.db.First(&product, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Producto no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	var lineCount int64
	h.db.Model(&database.OrderLine{}).Where("product_id = ?", product.ID).Count(&lineCount)
	if lineCount > 0 {
		c.JSON(http.StatusConflict, gin.H{
			"error": "No se puede eliminar: el producto tiene pedidos asociados",
			"code":  apperrors.ErrConflict.Code,
		})
		return
	}

	if err := h.db.Delete(&product).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo eliminar el producto"})
		return
	}

	h.logger.LogDelete(c, "product", product.ID, map[string]interface{}{
		"name": product.Name,
	})

	c.JSON(http.StatusOK, gin.H{"message": "Producto eliminado correctamente"})
}

// validateBounds covers the numeric rules the binding tags cannot
// express on decimal fields.
func validateBounds(req ProductRequest) validation.Errors {
	errs := validation.Errors{}
	if !req.Price.IsPositive() {
		errs.Add("price", "el precio debe ser mayor a 0")
	}
	if req.TaxPercent.IsNegative() || req.TaxPercent.GreaterThan(decimal.NewFromInt(100)) {
		errs.Add("tax_percent", "el impuesto debe estar entre 0 y 100%")
	}
	return errs
}

func (h *Handler) checkUniqueness(name string, excludeID uuid.UUID) (validation.Errors, error) {
	errs := validation.Errors{}
	var n int64
	query := h.db.Model(&database.Product{}).Where("name = ?", name)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		errs.Add("name", "Ya existe otro producto con ese nombre")
	}
	return errs, nil
}

func respondUpdateError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.ErrNotFound.Code:
			c.JSON(http.StatusNotFound, gin.H{"error": "Producto no encontrado", "code": appErr.Code})
			return
		case apperrors.ErrConcurrencyConflict.Code:
			c.JSON(http.StatusConflict, gin.H{"error": "El producto fue modificado por otro usuario, recargue e intente de nuevo", "code": appErr.Code})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo actualizar el producto"})
}
