package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pedidos360/backend/pkg/database"
	"github.com/pedidos360/backend/pkg/middleware"
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
	require.NoError(t, database.EnsureSeed(db))
	return db
}

func setupRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(db)
	r.POST("/auth/login", h.Login)

	protected := r.Group("")
	protected.Use(middleware.AuthRequired())
	protected.GET("/auth/me", h.GetMe)

	admin := r.Group("")
	admin.Use(middleware.AuthRequired(), middleware.RequireRoles(database.RoleAdmin))
	admin.GET("/admin-only", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func login(t *testing.T, r *gin.Engine, usernameOrEmail, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(gin.H{"username_or_email": usernameOrEmail, "password": password})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginByUsernameAndEmail(t *testing.T) {
	db := setupTestDB(t)
	r := setupRouter(db)

	for _, id := range []string{"admin", "admin@pedidos360.local"} {
		w := login(t, r, id, "Admin123$")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.AccessToken)
		require.Equal(t, database.RoleAdmin, resp.Role)
		require.Equal(t, "admin", resp.User.Username)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	db := setupTestDB(t)
	r := setupRouter(db)

	w := login(t, r, "admin", "nope")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	// The response never says which of the two factors failed.
	require.NotContains(t, w.Body.String(), "password")
}

func TestLoginUnknownUser(t *testing.T) {
	db := setupTestDB(t)
	r := setupRouter(db)

	w := login(t, r, "nadie", "Admin123$")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetMeWithToken(t *testing.T) {
	db := setupTestDB(t)
	r := setupRouter(db)

	w := login(t, r, "admin", "Admin123$")
	require.Equal(t, http.StatusOK, w.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "admin@pedidos360.local")
}

func TestProtectedRouteWithoutToken(t *testing.T) {
	db := setupTestDB(t)
	r := setupRouter(db)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleGateRejectsNonAdmin(t *testing.T) {
	db := setupTestDB(t)
	r := setupRouter(db)

	token, err := middleware.SignToken("00000000-0000-0000-0000-000000000001", "vendedor", database.RoleVentas)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "FORBIDDEN")
}

func TestRoleGateAllowsAdmin(t *testing.T) {
	db := setupTestDB(t)
	r := setupRouter(db)

	w := login(t, r, "admin", "Admin123$")
	require.Equal(t, http.StatusOK, w.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	require.Equal(t, http.StatusOK, w2.Code)
}
