package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pedidos360/backend/pkg/database"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

type fixtures struct {
	user    database.User
	client  database.Client
	product database.Product
}

func seedFixtures(t *testing.T, db *gorm.DB) fixtures {
	t.Helper()
	user := database.User{Username: "vendedor", Email: "v@pedidos360.local", FullName: "Vendedor", PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)

	client := database.Client{Name: "Cliente Uno", NationalID: "101110111", Email: "c1@test.local", Phone: "88880000"}
	require.NoError(t, db.Create(&client).Error)

	category := database.Category{Name: "Bebidas"}
	require.NoError(t, db.Create(&category).Error)

	product := database.Product{
		Name: "Refresco", Price: dec("10.00"), TaxPercent: dec("13"),
		Stock: 10, IsActive: true, CategoryID: category.ID,
	}
	require.NoError(t, db.Create(&product).Error)

	return fixtures{user: user, client: client, product: product}
}

func setupRouter(db *gorm.DB, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("role", database.RoleVentas)
	})
	h := NewHandler(db)
	r.GET("/orders", h.List)
	r.POST("/orders", h.Create)
	r.GET("/orders/:id", h.Get)
	r.POST("/orders/:id/lines", h.AddLine)
	r.PUT("/orders/:id/lines/:lineID", h.UpdateLine)
	r.DELETE("/orders/:id/lines/:lineID", h.RemoveLine)
	r.PUT("/orders/:id/status", h.UpdateStatus)
	r.DELETE("/orders/:id", h.Delete)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func currentStock(t *testing.T, db *gorm.DB, productID interface{}) int {
	t.Helper()
	var product database.Product
	require.NoError(t, db.First(&product, "id = ?", productID).Error)
	return product.Stock
}

func TestCreateOrderSnapshotsAndDecrementsStock(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixtures(t, db)
	r := setupRouter(db, fx.user.ID.String())

	w := doJSON(t, r, http.MethodPost, "/orders", gin.H{
		"client_id": fx.client.ID,
		"lines": []gin.H{
			{"product_id": fx.product.ID, "quantity": 2},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data database.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	order := resp.Data

	require.Equal(t, database.OrderStatusPending, order.Status)
	require.Len(t, order.Lines, 1)
	require.True(t, dec("10.00").Equal(order.Lines[0].UnitPrice))
	require.True(t, dec("13").Equal(order.Lines[0].TaxPercent))
	require.True(t, dec("20.00").Equal(order.Subtotal), "subtotal: %s", order.Subtotal)
	require.True(t, dec("2.60").Equal(order.Taxes), "taxes: %s", order.Taxes)
	require.True(t, dec("22.60").Equal(order.Total), "total: %s", order.Total)

	require.Equal(t, 8, currentStock(t, db, fx.product.ID))
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixtures(t, db)
	r := setupRouter(db, fx.user.ID.String())

	w := doJSON(t, r, http.MethodPost, "/orders", gin.H{
		"client_id": fx.client.ID,
		"lines": []gin.H{
			{"product_id": fx.product.ID, "quantity": 11},
		},
	})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "INSUFFICIENT_STOCK")

	// The whole transaction rolled back: nothing was written, stock intact.
	var orderCount int64
	db.Model(&database.Order{}).Count(&orderCount)
	require.Zero(t, orderCount)
	require.Equal(t, 10, currentStock(t, db, fx.product.ID))
}

func TestCreateOrderInactiveProduct(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixtures(t, db)
	require.NoError(t, db.Model(&fx.product).Update("is_active", false).Error)
	r := setupRouter(db, fx.user.ID.String())

	w := doJSON(t, r, http.MethodPost, "/orders", gin.H{
		"client_id": fx.client.ID,
		"lines": []gin.H{
			{"product_id": fx.product.ID, "quantity": 1},
		},
	})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestAddLineRecomputesTotals(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixtures(t, db)
	r := setupRouter(db, fx.user.ID.String())

	w := doJSON(t, r, http.MethodPost, "/orders", gin.H{
		"client_id": fx.client.ID,
		"lines":     []gin.H{{"product_id": fx.product.ID, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data database.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/orders/%s/lines", created.Data.ID), gin.H{
		"product_id": fx.product.ID,
		"quantity":   1,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var updated struct {
		Data database.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	require.Len(t, updated.Data.Lines, 2)
	require.True(t, dec("20.00").Equal(updated.Data.Subtotal), "subtotal: %s", updated.Data.Subtotal)
	require.True(t, dec("22.60").Equal(updated.Data.Total), "total: %s", updated.Data.Total)
	require.Equal(t, 8, currentStock(t, db, fx.product.ID))
}

func TestUpdateLineAdjustsStockByDelta(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixtures(t, db)
	r := setupRouter(db, fx.user.ID.String())

	w := doJSON(t, r, http.MethodPost, "/orders", gin.H{
		"client_id": fx.client.ID,
		"lines":     []gin.H{{"product_id": fx.product.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data database.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	lineID := created.Data.Lines[0].ID

	w = doJSON(t, r, http.MethodPut,
		fmt.Sprintf("/orders/%s/lines/%s", created.Data.ID, lineID),
		gin.H{"quantity": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 5, currentStock(t, db, fx.product.ID))

	var updated struct {
		Data database.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	require.True(t, dec("50.00").Equal(updated.Data.Subtotal), "subtotal: %s", updated.Data.Subtotal)
	require.True(t, dec("56.50").Equal(updated.Data.Total), "total: %s", updated.Data.Total)
}

func TestRemoveLineRestoresStock(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixtures(t, db)
	r := setupRouter(db, fx.user.ID.String())

	w := doJSON(t, r, http.MethodPost, "/orders", gin.H{
		"client_id": fx.client.ID,
		"lines":     []gin.H{{"product_id": fx.product.ID, "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data database.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, 7, currentStock(t, db, fx.product.ID))

	w = doJSON(t, r, http.MethodDelete,
		fmt.Sprintf("/orders/%s/lines/%s", created.Data.ID, created.Data.Lines[0].ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 10, currentStock(t, db, fx.product.ID))

	var order database.Order
	require.NoError(t, db.First(&order, "id = ?", created.Data.ID).Error)
	require.True(t, order.Subtotal.IsZero())
	require.True(t, order.Total.IsZero())
}

func TestUpdateStatusStaleVersion(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixtures(t, db)
	r := setupRouter(db, fx.user.ID.String())

	w := doJSON(t, r, http.MethodPost, "/orders", gin.H{
		"client_id": fx.client.ID,
		"lines":     []gin.H{{"product_id": fx.product.ID, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data database.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/orders/%s/status", created.Data.ID),
		gin.H{"status": "confirmed", "version": created.Data.Version})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Replaying the same version must fail as a concurrency conflict.
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/orders/%s/status", created.Data.ID),
		gin.H{"status": "shipped", "version": created.Data.Version})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "CONCURRENCY_CONFLICT")

	var order database.Order
	require.NoError(t, db.First(&order, "id = ?", created.Data.ID).Error)
	require.Equal(t, "confirmed", order.Status)
}

func TestDeleteOrderRestoresStockAndCascadesLines(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixtures(t, db)
	r := setupRouter(db, fx.user.ID.String())

	w := doJSON(t, r, http.MethodPost, "/orders", gin.H{
		"client_id": fx.client.ID,
		"lines":     []gin.H{{"product_id": fx.product.ID, "quantity": 4}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data database.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, 6, currentStock(t, db, fx.product.ID))

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/orders/%s", created.Data.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Equal(t, 10, currentStock(t, db, fx.product.ID))
	var lineCount int64
	db.Model(&database.OrderLine{}).Where("order_id = ?", created.Data.ID).Count(&lineCount)
	require.Zero(t, lineCount)
}

func TestGetOrderNotFound(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixtures(t, db)
	r := setupRouter(db, fx.user.ID.String())

	w := doJSON(t, r, http.MethodGet, "/orders/00000000-0000-0000-0000-000000000001", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
