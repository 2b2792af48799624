package reports

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pedidos360/backend/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

type salesSummary struct {
	OrderCount int64           `json:"order_count"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Taxes      decimal.Decimal `json:"taxes"`
	Total      decimal.Decimal `json:"total"`
}

type statusBreakdown struct {
	Status     string          `json:"status"`
	OrderCount int64           `json:"order_count"`
	Total      decimal.Decimal `json:"total"`
}

type dayBreakdown struct {
	Day        string          `json:"day"`
	OrderCount int64           `json:"order_count"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Taxes      decimal.Decimal `json:"taxes"`
	Total      decimal.Decimal `json:"total"`
}

// GetSalesReport aggregates orders within a date range, overall and by
// status. Range defaults to the last 30 days.
func (h *Handler) GetSalesReport(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Formato de fecha inválido, use YYYY-MM-DD"})
		return
	}

	var summary salesSummary
	if err := h.db.Model(&database.Order{}).
		Select("COUNT(*) as order_count, COALESCE(SUM(subtotal), 0) as subtotal, COALESCE(SUM(taxes), 0) as taxes, COALESCE(SUM(total), 0) as total").
		Where("date >= ? AND date < ?", from, to).
		Scan(&summary).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo generar el reporte"})
		return
	}

	var byStatus []statusBreakdown
	if err := h.db.Model(&database.Order{}).
		Select("status, COUNT(*) as order_count, COALESCE(SUM(total), 0) as total").
		Where("date >= ? AND date < ?", from, to).
		Group("status").
		Order("status ASC").
		Scan(&byStatus).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo generar el reporte"})
		return
	}

	byDay, err := h.dailyBreakdown(from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo generar el reporte"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"from":      from.Format("2006-01-02"),
		"to":        to.AddDate(0, 0, -1).Format("2006-01-02"),
		"summary":   summary,
		"by_status": byStatus,
		"by_day":    byDay,
	}})
}

// dailyBreakdown buckets orders by calendar day in the application, since
// date truncation in SQL is dialect-specific and the tests run on sqlite.
func (h *Handler) dailyBreakdown(from, to time.Time) ([]dayBreakdown, error) {
	var orders []database.Order
	if err := h.db.Select("date", "subtotal", "taxes", "total").
		Where("date >= ? AND date < ?", from, to).
		Order("date ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}

	byDay := make([]dayBreakdown, 0)
	for _, order := range orders {
		day := order.Date.Format("2006-01-02")
		if n := len(byDay); n > 0 && byDay[n-1].Day == day {
			byDay[n-1].OrderCount++
			byDay[n-1].Subtotal = byDay[n-1].Subtotal.Add(order.Subtotal)
			byDay[n-1].Taxes = byDay[n-1].Taxes.Add(order.Taxes)
			byDay[n-1].Total = byDay[n-1].Total.Add(order.Total)
			continue
		}
		byDay = append(byDay, dayBreakdown{
			Day:        day,
			OrderCount: 1,
			Subtotal:   order.Subtotal,
			Taxes:      order.Taxes,
			Total:      order.Total,
		})
	}
	return byDay, nil
}

// ExportOrders streams the orders in the range as an xlsx workbook.
func (h *Handler) ExportOrders(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Formato de fecha inválido, use YYYY-MM-DD"})
		return
	}

	var orders []database.Order
	if err := h.db.Preload("Client").Preload("User").
		Where("date >= ? AND date < ?", from, to).
		Order("date ASC").
		Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudieron obtener los pedidos"})
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	headers := []string{"Fecha", "Cliente", "Cédula", "Vendedor", "Estado", "Subtotal", "Impuestos", "Total"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue("Sheet1", cell, header)
	}

	for rowIdx, order := range orders {
		clientName, nationalID, username := "", "", ""
		if order.Client != nil {
			clientName = order.Client.Name
			nationalID = order.Client.NationalID
		}
		if order.User != nil {
			username = order.User.Username
		}
		row := []interface{}{
			order.Date.Format("2006-01-02 15:04"),
			clientName,
			nationalID,
			username,
			order.Status,
			order.Subtotal.InexactFloat64(),
			order.Taxes.InexactFloat64(),
			order.Total.InexactFloat64(),
		}
		for colIdx, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue("Sheet1", cell, value)
		}
	}

	f.SetColWidth("Sheet1", "A", "B", 22)
	f.SetColWidth("Sheet1", "C", "E", 15)
	f.SetColWidth("Sheet1", "F", "H", 12)

	filename := fmt.Sprintf("pedidos_%s_%s.xlsx", from.Format("20060102"), to.AddDate(0, 0, -1).Format("20060102"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename="+filename)

	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No se pudo generar el archivo"})
		return
	}
}

// dateRange parses from/to query params as inclusive dates and returns
// a half-open [from, to+1d) window.
func dateRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	if s := c.Query("from"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if s := c.Query("to"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location()).AddDate(0, 0, 1)
	return from, to, nil
}
