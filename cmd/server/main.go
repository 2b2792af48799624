package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pedidos360/backend/internal/activity"
	"github.com/pedidos360/backend/internal/auth"
	"github.com/pedidos360/backend/internal/category"
	"github.com/pedidos360/backend/internal/client"
	"github.com/pedidos360/backend/internal/order"
	"github.com/pedidos360/backend/internal/product"
	"github.com/pedidos360/backend/internal/reports"
	"github.com/pedidos360/backend/internal/user"
	"github.com/pedidos360/backend/pkg/database"
	"github.com/pedidos360/backend/pkg/middleware"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// No .env file; system environment applies.
	}

	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := database.Connect()
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := database.Migrate(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	if err := database.EnsureSeed(db); err != nil {
		logger.Fatal("failed to seed roles and admin", zap.Error(err))
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(logger))
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		// Auth routes (public)
		authHandler := auth.NewHandler(db)
		v1.POST("/auth/login", authHandler.Login)

		// Protected routes: any authenticated role
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/auth/me", authHandler.GetMe)

			// Order routes
			orderHandler := order.NewHandler(db)
			protected.GET("/orders", orderHandler.List)
			protected.POST("/orders", orderHandler.Create)
			protected.GET("/orders/:id", orderHandler.Get)
			protected.POST("/orders/:id/lines", orderHandler.AddLine)
			protected.PUT("/orders/:id/lines/:lineID", orderHandler.UpdateLine)
			protected.DELETE("/orders/:id/lines/:lineID", orderHandler.RemoveLine)
			protected.PUT("/orders/:id/status", orderHandler.UpdateStatus)
			protected.DELETE("/orders/:id", orderHandler.Delete)

			// Reports routes
			reportsHandler := reports.NewHandler(db)
			protected.GET("/reports/sales", reportsHandler.GetSalesReport)
			protected.GET("/reports/orders/export", reportsHandler.ExportOrders)
		}

		// Admin-only management routes
		admin := v1.Group("")
		admin.Use(middleware.AuthRequired(), middleware.RequireRoles(database.RoleAdmin))
		{
			categoryHandler := category.NewHandler(db)
			admin.GET("/categories", categoryHandler.List)
			admin.POST("/categories", categoryHandler.Create)
			admin.GET("/categories/:id", categoryHandler.Get)
			admin.PUT("/categories/:id", categoryHandler.Update)
			admin.DELETE("/categories/:id", categoryHandler.Delete)

			productHandler := product.NewHandler(db)
			admin.GET("/products", productHandler.List)
			admin.POST("/products", productHandler.Create)
			admin.GET("/products/:id", productHandler.Get)
			admin.PUT("/products/:id", productHandler.Update)
			admin.PUT("/products/:id/stock", productHandler.UpdateStock)
			admin.POST("/products/:id/image", productHandler.UploadImage)
			admin.PATCH("/products/:id/toggle", productHandler.ToggleActive)
			admin.DELETE("/products/:id", productHandler.Delete)

			clientHandler := client.NewHandler(db)
			admin.GET("/clients", clientHandler.List)
			admin.POST("/clients", clientHandler.Create)
			admin.GET("/clients/:id", clientHandler.Get)
			admin.PUT("/clients/:id", clientHandler.Update)
			admin.DELETE("/clients/:id", clientHandler.Delete)
			admin.GET("/clients/:id/addresses", clientHandler.ListAddresses)
			admin.POST("/clients/:id/addresses", clientHandler.CreateAddress)
			admin.PUT("/clients/:id/addresses/:addressID", clientHandler.UpdateAddress)
			admin.PUT("/clients/:id/addresses/:addressID/primary", clientHandler.MakePrimaryAddress)
			admin.DELETE("/clients/:id/addresses/:addressID", clientHandler.DeleteAddress)

			userHandler := user.NewHandler(db)
			admin.GET("/users", userHandler.List)
			admin.POST("/users", userHandler.Create)
			admin.GET("/users/:id", userHandler.Get)
			admin.PUT("/users/:id", userHandler.Update)
			admin.DELETE("/users/:id", userHandler.Delete)

			activityHandler := activity.NewHandler(db)
			admin.GET("/activity-logs", activityHandler.List)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info("server starting", zap.String("port", port))
	if err := r.Run(":" + port); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("GIN_MODE") == "release" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
