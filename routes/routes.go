package routes

import (
	"net/http"

	"noircafe-backend/firebase"
	"noircafe-backend/handlers"
	"noircafe-backend/ledger"
	"noircafe-backend/metrics"
	"noircafe-backend/middleware"
	"noircafe-backend/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies are the shared services handed to every handler. Verifier and
// Storage may be nil when Firebase is not configured.
type Dependencies struct {
	DB       *gorm.DB
	Ledger   *ledger.Service
	Verifier firebase.IdentityVerifier
	Storage  firebase.StorageClient
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// SetupRoutes registers the API on r. The returned func stops the rate
// limiters' cleanup goroutines.
func SetupRoutes(r *gin.Engine, deps Dependencies) func() {
	utils.RegisterValidation()

	authLimiter := middleware.AuthRateLimiter()
	pointsLimiter := middleware.PointsRateLimiter()
	globalLimiter := middleware.GlobalRateLimiter()

	authHandler := &handlers.AuthHandler{DB: deps.DB, Verifier: deps.Verifier, Logger: deps.Logger}
	userHandler := &handlers.UserHandler{DB: deps.DB, Logger: deps.Logger}
	pointsHandler := &handlers.PointsHandler{Ledger: deps.Ledger, Logger: deps.Logger}
	productHandler := &handlers.ProductHandler{DB: deps.DB, Storage: deps.Storage, Logger: deps.Logger}
	orderHandler := &handlers.OrderHandler{DB: deps.DB, Ledger: deps.Ledger, Logger: deps.Logger}

	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := deps.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			utils.Error(c, http.StatusServiceUnavailable, "Database unavailable", nil)
			return
		}
		utils.Success(c, http.StatusOK, "OK", gin.H{"service": "noircafe-backend"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := r.Group("/api")
	api.Use(globalLimiter.Middleware())

	auth := api.Group("/auth")
	{
		auth.POST("/firebase", authLimiter.Middleware(), authHandler.FirebaseLogin)
		auth.POST("/register", authLimiter.Middleware(), authHandler.Register)
		auth.POST("/login", authLimiter.Middleware(), authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.GET("/verify", authHandler.Verify)
		auth.POST("/logout", middleware.AuthMiddleware(), authHandler.Logout)
	}

	// Public catalog and leaderboard
	api.GET("/products", productHandler.GetProducts)
	api.GET("/products/featured", productHandler.GetFeatured)
	api.GET("/products/bestsellers", productHandler.GetBestsellers)
	api.GET("/products/category/:category", productHandler.GetByCategory)
	api.GET("/products/:id", productHandler.GetProduct)
	api.GET("/users/leaderboard", userHandler.GetLeaderboard)
	api.GET("/points/packages", pointsHandler.GetPackages)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware())
	{
		protected.GET("/users/profile/:uid", userHandler.GetProfile)
		protected.PUT("/users/profile/:uid", userHandler.UpdateProfile)
		protected.GET("/users/:uid", userHandler.GetUser)

		protected.GET("/points/balance/:id", pointsHandler.GetBalance)
		protected.GET("/points/transactions/:id", pointsHandler.GetTransactions)
		protected.POST("/points/purchase", pointsLimiter.Middleware(), pointsHandler.Purchase)
		protected.POST("/points/redeem", pointsLimiter.Middleware(), pointsHandler.Redeem)
		protected.POST("/points/add", pointsLimiter.Middleware(), pointsHandler.AddPoints)

		protected.POST("/products/:id/rating", productHandler.RateProduct)

		protected.POST("/orders", orderHandler.CreateOrder)
		protected.GET("/orders/user/:uid", orderHandler.GetUserOrders)
		protected.GET("/orders/:orderNumber", orderHandler.GetOrder)
		protected.POST("/orders/:orderNumber/feedback", orderHandler.AddFeedback)
		protected.DELETE("/orders/:orderNumber", orderHandler.CancelOrder)
	}

	staff := api.Group("")
	staff.Use(middleware.AuthMiddleware(), middleware.StaffMiddleware())
	{
		staff.POST("/products", productHandler.CreateProduct)
		staff.PUT("/products/:id", productHandler.UpdateProduct)
		staff.DELETE("/products/:id", productHandler.DeleteProduct)
		staff.POST("/products/:id/image", productHandler.UploadImage)
		staff.POST("/products/:id/sale", productHandler.RecordSale)

		staff.GET("/orders/today", orderHandler.GetTodayOrders)
		staff.PUT("/orders/:orderNumber/status", orderHandler.UpdateOrderStatus)
	}

	admin := api.Group("")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		admin.GET("/users", userHandler.ListUsers)
		admin.PATCH("/users/:uid", userHandler.UpdateUser)
		admin.DELETE("/users/:uid", userHandler.DeleteUser)

		admin.POST("/points/deduct", pointsLimiter.Middleware(), pointsHandler.DeductPoints)
		admin.GET("/points/stats", pointsHandler.GetStats)
		admin.POST("/admin/points/transactions/:id/reverse", pointsHandler.ReverseTransaction)
		admin.POST("/admin/points/transactions/:id/retry", pointsHandler.RetryTransaction)
		admin.POST("/admin/points/transactions/:id/fail", pointsHandler.FailTransaction)
		admin.POST("/admin/points/transactions/:id/flag", pointsHandler.FlagTransaction)
		admin.POST("/admin/points/transactions/:id/review", pointsHandler.ReviewTransaction)
		admin.GET("/admin/points/flagged", pointsHandler.GetFlaggedTransactions)

		admin.GET("/orders", orderHandler.ListOrders)
		admin.GET("/orders/stats", orderHandler.GetOrderStats)
	}

	return func() {
		authLimiter.Stop()
		pointsLimiter.Stop()
		globalLimiter.Stop()
	}
}
