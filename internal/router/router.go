package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"tally/internal/config"
	"tally/internal/handlers"
	"tally/internal/middleware"
	"tally/internal/services"

	_ "tally/internal/docs" // swagger docs
)

// New wires services and handlers on top of db and returns the HTTP engine.
func New(db *gorm.DB, cfg *config.Config) *gin.Engine {
	// Services
	auditService := services.NewAuditService(db)
	userService := services.NewUserService(db)
	accountService := services.NewAccountService(db)
	categoryService := services.NewCategoryService(db)
	transactionService := services.NewTransactionService(db, accountService, userService)
	bucketService := services.NewBucketService(db, auditService)
	paycheckService := services.NewPaycheckService(db, auditService)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, categoryService, auditService)
	accountHandler := handlers.NewAccountHandler(accountService, auditService)
	categoryHandler := handlers.NewCategoryHandler(categoryService, auditService)
	transactionHandler := handlers.NewTransactionHandler(transactionService, auditService)
	bucketHandler := handlers.NewBucketHandler(bucketService, auditService)
	paycheckHandler := handlers.NewPaycheckHandler(paycheckService, auditService)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.CORS(cfg.CORSOrigin))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/token/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)
	protected.PUT("/profile", authHandler.UpdateProfile)

	accounts := protected.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.GetUserAccounts)
	accounts.GET("/:id", accountHandler.GetAccountByID)
	accounts.PUT("/:id", accountHandler.UpdateAccount)
	accounts.DELETE("/:id", accountHandler.DeleteAccount)
	accounts.POST("/:id/adjust_balance", accountHandler.AdjustBalance)
	accounts.GET("/:id/transactions", transactionHandler.GetAccountTransactions)

	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.GetUserCategories)
	categories.GET("/by_type", categoryHandler.GetCategoriesByType)
	categories.GET("/:id", categoryHandler.GetCategoryByID)
	categories.PUT("/:id", categoryHandler.UpdateCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)

	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.GetUserTransactions)
	transactions.GET("/summary", transactionHandler.GetSummary)
	transactions.GET("/analytics", transactionHandler.GetAnalytics)
	transactions.POST("/bulk_create", transactionHandler.BulkCreate)
	transactions.GET("/:id", transactionHandler.GetTransactionByID)
	transactions.PUT("/:id", transactionHandler.UpdateTransaction)
	transactions.DELETE("/:id", transactionHandler.DeleteTransaction)

	buckets := protected.Group("/buckets")
	buckets.POST("", bucketHandler.CreateBucket)
	buckets.GET("", bucketHandler.GetUserBuckets)
	buckets.GET("/summary", bucketHandler.GetSummary)
	buckets.GET("/income_transactions", bucketHandler.GetIncomeTransactions)
	buckets.GET("/:id", bucketHandler.GetBucketByID)
	buckets.PUT("/:id", bucketHandler.UpdateBucket)
	buckets.DELETE("/:id", bucketHandler.DeleteBucket)
	buckets.POST("/:id/allocate_money", bucketHandler.AllocateMoney)

	paychecks := protected.Group("/paychecks")
	paychecks.POST("", paycheckHandler.CreatePaycheck)
	paychecks.GET("", paycheckHandler.GetUserPaychecks)
	paychecks.GET("/:id", paycheckHandler.GetPaycheckByID)
	paychecks.PUT("/:id", paycheckHandler.UpdatePaycheck)
	paychecks.DELETE("/:id", paycheckHandler.DeletePaycheck)
	paychecks.POST("/:id/allocate", paycheckHandler.Allocate)

	return router
}
