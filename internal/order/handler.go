package order

import (
	"errors"
	"net/http"
	"time"

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

type LineRequest struct {
	ProductID uuid.UUID       `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	Discount  decimal.Decimal `json:"discount"`
}

type CreateOrderRequest struct {
	ClientID uuid.UUID     `json:"client_id" binding:"required"`
	Lines    []LineRequest `json:"lines" binding:"required,min=1,dive"`
}

type UpdateLineRequest struct {
	Quantity int             `json:"quantity" binding:"required,min=1"`
	Discount decimal.Decimal `json:"discount"`
}

type UpdateStatusRequest struct {
	Status  string `json:"status" binding:"required,max=50"`
	Version int    `json:"version" binding:"required,min=1"`
}

// List returns orders ordered by date, newest first. Filters: client_id,
// status.
func (h *Handler) List(c *gin.Context) {
	params := pagination.FromQuery(c)

	query := h.db.Model(&database.Order{})
	if clientID := c.Query("client_id"); clientID != "" {
		query = query.Where("client_id = ?", clientID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener los pedidos"})
		return
	}

	var orders []database.Order
	if err := query.Preload("Client").Order("date DESC").
		Scopes(params.Scope()).Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener los pedidos"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pagination.NewResult(orders, total, params)})
}

// Get returns a single order with its lines.
func (h *Handler) Get(c *gin.Context) {
	var order database.Order
	if err := h.db.Preload("Lines").Preload("Lines.Product").Preload("Client").
		First(&order, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pedido no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

// Create builds an order from its lines in one transaction: unit price and
// tax percent are snapshotted from each product, stock is decremented, and
// the totals are derived before anything commits.
func (h *Handler) Create(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	userID, _ := uuid.Parse(c.GetString("user_id"))

	var order database.Order
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var client database.Client
		if err := tx.First(&client, "id = ?", req.ClientID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New("VALIDATION", "el cliente no existe")
			}
			return err
		}

		lines := make([]database.OrderLine, 0, len(req.Lines))
		for _, lr := range req.Lines {
			line, err := buildLine(tx, lr.ProductID, lr.Quantity, lr.Discount)
			if err != nil {
				return err
			}
			lines = append(lines, *line)
		}

		totals := ComputeTotals(lines)
		order = database.Order{
			Date:     time.Now(),
			Subtotal: totals.Subtotal,
			Taxes:    totals.Taxes,
			Total:    totals.Total,
			Status:   database.OrderStatusPending,
			ClientID: req.ClientID,
			UserID:   userID,
			Lines:    lines,
		}
		return tx.Create(&order).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.LogCreate(c, "order", order.ID, map[string]interface{}{
		"client_id": order.ClientID,
		"total":     order.Total,
		"lines":     len(order.Lines),
	})

	h.db.Preload("Lines").Preload("Lines.Product").Preload("Client").First(&order, order.ID)
	c.JSON(http.StatusCreated, gin.H{"data": order})
}

// AddLine appends a line to an order and recomputes the totals atomically
// with the insert.
func (h *Handler) AddLine(c *gin.Context) {
	var req LineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	orderID := c.Param("id")
	var order database.Order
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Lines").First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}

		line, err := buildLine(tx, req.ProductID, req.Quantity, req.Discount)
		if err != nil {
			return err
		}
		line.OrderID = order.ID
		if err := tx.Create(line).Error; err != nil {
			return err
		}

		order.Lines = append(order.Lines, *line)
		return applyTotals(tx, &order)
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.LogUpdate(c, "order", order.ID, nil, map[string]interface{}{"line_added": req.ProductID})
	h.db.Preload("Lines").Preload("Lines.Product").First(&order, order.ID)
	c.JSON(http.StatusCreated, gin.H{"data": order})
}

// UpdateLine changes a line's quantity or discount, adjusting product
// stock by the quantity delta and recomputing totals in one transaction.
func (h *Handler) UpdateLine(c *gin.Context) {
	var req UpdateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	orderID := c.Param("id")
	lineID := c.Param("lineID")
	var order database.Order
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var line database.OrderLine
		if err := tx.First(&line, "id = ? AND order_id = ?", lineID, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}

		if req.Discount.IsNegative() {
			return apperrors.New("VALIDATION", "el descuento no puede ser negativo")
		}
		gross := line.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
		if req.Discount.GreaterThan(gross) {
			return apperrors.New("VALIDATION", "el descuento no puede exceder el monto de la línea")
		}

		delta := req.Quantity - line.Quantity
		if delta != 0 {
			if err := adjustStock(tx, line.ProductID, -delta); err != nil {
				return err
			}
		}

		line.Quantity = req.Quantity
		line.Discount = req.Discount
		line.LineTotal = LineAmount(req.Quantity, line.UnitPrice, req.Discount)
		if err := tx.Save(&line).Error; err != nil {
			return err
		}

		if err := tx.Preload("Lines").First(&order, "id = ?", orderID).Error; err != nil {
			return err
		}
		return applyTotals(tx, &order)
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.LogUpdate(c, "order", order.ID, nil, map[string]interface{}{"line_updated": lineID})
	h.db.Preload("Lines").Preload("Lines.Product").First(&order, order.ID)
	c.JSON(http.StatusOK, gin.H{"data": order})
}

// RemoveLine deletes a line, restores its stock, and recomputes totals.
func (h *Handler) RemoveLine(c *gin.Context) {
	orderID := c.Param("id")
	lineID := c.Param("lineID")
	var order database.Order
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var line database.OrderLine
		if err := tx.First(&line, "id = ? AND order_id = ?", lineID, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}

		if err := adjustStock(tx, line.ProductID, line.Quantity); err != nil {
			return err
		}
		if err := tx.Delete(&line).Error; err != nil {
			return err
		}

		if err := tx.Preload("Lines").First(&order, "id = ?", orderID).Error; err != nil {
			return err
		}
		return applyTotals(tx, &order)
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.LogUpdate(c, "order", order.ID, nil, map[string]interface{}{"line_removed": lineID})
	c.JSON(http.StatusOK, gin.H{"data": order})
}

// UpdateStatus sets the order's free-text status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": validation.FromBinding(err)})
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pedido no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}

	var order database.Order
	if err := h.db.First(&order, "id = ?", orderID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pedido no encontrado", "code": apperrors.ErrNotFound.Code})
		return
	}
	oldStatus := order.Status

	err = database.UpdateWithVersion(h.db, &database.Order{}, orderID, req.Version, map[string]interface{}{
		"status": req.Status,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.LogActivity(c, "status", "order", &orderID, map[string]interface{}{
		"old": oldStatus,
		"new": req.Status,
	})
	h.db.First(&order, "id = ?", orderID)
	c.JSON(http.StatusOK, gin.H{"data": order})
}

// Delete removes an order, cascading its lines and restoring stock.
func (h *Handler) Delete(c *gin.Context) {
	orderID := c.Param("id")
	var order database.Order
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Lines").First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}

		for _, line := range order.Lines {
			if err := adjustStock(tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		if err := tx.Where("order_id = ?", order.ID).Delete(&database.OrderLine{}).Error; err != nil {
			return err
		}
		return tx.Delete(&order).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.LogDelete(c, "order", order.ID, map[string]interface{}{
		"client_id": order.ClientID,
		"total":     order.Total,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Pedido eliminado correctamente"})
}

// buildLine validates a requested line against its product, snapshots
// price and tax, and decrements stock.
func buildLine(tx *gorm.DB, productID uuid.UUID, quantity int, discount decimal.Decimal) (*database.OrderLine, error) {
	var product database.Product
	if err := tx.First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New("VALIDATION", "el producto no existe")
		}
		return nil, err
	}
	if !product.IsActive {
		return nil, apperrors.New("VALIDATION", "el producto no está activo")
	}
	if discount.IsNegative() {
		return nil, apperrors.New("VALIDATION", "el descuento no puede ser negativo")
	}
	gross := product.Price.Mul(decimal.NewFromInt(int64(quantity)))
	if discount.GreaterThan(gross) {
		return nil, apperrors.New("VALIDATION", "el descuento no puede exceder el monto de la línea")
	}

	if err := adjustStock(tx, product.ID, -quantity); err != nil {
		return nil, err
	}

	return &database.OrderLine{
		ProductID:  product.ID,
		Quantity:   quantity,
		UnitPrice:  product.Price,
		Discount:   discount,
		TaxPercent: product.TaxPercent,
		LineTotal:  LineAmount(quantity, product.Price, discount),
	}, nil
}

// adjustStock applies a signed stock delta, refusing to go below zero.
func adjustStock(tx *gorm.DB, productID uuid.UUID, delta int) error {
	res := tx.Model(&database.Product{}).
		Where("id = ? AND stock + ? >= 0", productID, delta).
		Update("stock", gorm.Expr("stock + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrInsufficientStock
	}
	return nil
}

// applyTotals recomputes and persists the order's derived money fields
// inside the caller's transaction, version-checked so a concurrent edit
// of the same order fails instead of being overwritten.
func applyTotals(tx *gorm.DB, order *database.Order) error {
	totals := ComputeTotals(order.Lines)
	err := database.UpdateWithVersion(tx, &database.Order{}, order.ID, order.Version, map[string]interface{}{
		"subtotal": totals.Subtotal,
		"taxes":    totals.Taxes,
		"total":    totals.Total,
	})
	if err != nil {
		return err
	}
	order.Subtotal = totals.Subtotal
	order.Taxes = totals.Taxes
	order.Total = totals.Total
	order.Version++
	return nil
}

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.ErrNotFound.Code:
			c.JSON(http.StatusNotFound, gin.H{"error": "Pedido no encontrado", "code": appErr.Code})
		case apperrors.ErrConcurrencyConflict.Code:
			c.JSON(http.StatusConflict, gin.H{"error": "El pedido fue modificado por otro usuario, recargue e intente de nuevo", "code": appErr.Code})
		case apperrors.ErrInsufficientStock.Code:
			c.JSON(http.StatusConflict, gin.H{"error": "Stock insuficiente para el producto solicitado", "code": appErr.Code})
		case "VALIDATION":
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": appErr.Message, "code": appErr.Code})
		default:
			c.JSON(http.StatusConflict, gin.H{"error": appErr.Message, "code": appErr.Code})
		}
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo procesar el pedido"})
}
