package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/invoyq/invoyq-api/internal/middleware"
	"github.com/invoyq/invoyq-api/internal/repository"
	"github.com/invoyq/invoyq-api/internal/service"
	"github.com/invoyq/invoyq-api/pkg/config"
)

// Dependencies carries everything the router needs to mount the API surface.
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	Redis   *redis.Client
	Signer  *service.TokenSigner
	Users   *repository.UserRepository
	Metrics *service.MetricsService

	Auth       *AuthHandler
	User       *UserHandler
	Client     *ClientHandler
	Product    *ProductHandler
	Invoice    *InvoiceHandler
	Expense    *ExpenseHandler
	Extraction *ExtractionHandler
}

// RegisterRoutes mounts the versioned API under the configured prefix.
func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	api := r.Group(deps.Config.APIPrefix)

	requireAuth := middleware.Auth(deps.Signer, deps.Users)
	optionalAuth := middleware.OptionalAuth(deps.Signer, deps.Users)
	loginLimit := middleware.RateLimit(deps.Redis, "login", deps.Config.RateLimit.LoginPerMinute, deps.Logger)
	extractLimit := middleware.RateLimit(deps.Redis, "extract", deps.Config.RateLimit.ExtractionPerMinute, deps.Logger)

	auth := api.Group("/auth")
	{
		auth.POST("/register", deps.Auth.Register)
		auth.POST("/login", loginLimit, deps.Auth.Login)
		auth.POST("/refresh", deps.Auth.Refresh)
		auth.POST("/logout", deps.Auth.Logout)
		auth.GET("/verify-email", deps.Auth.VerifyEmail)
		auth.POST("/resend-verification", deps.Auth.ResendVerification)
		auth.GET("/google/login", deps.Auth.GoogleLogin)
		auth.GET("/google/callback", deps.Auth.GoogleCallback)

		auth.GET("/me", requireAuth, deps.Auth.Me)
		auth.POST("/change-password", requireAuth, deps.Auth.ChangePassword)
		auth.POST("/set-password", requireAuth, deps.Auth.SetPassword)
	}

	users := api.Group("/users", requireAuth)
	{
		users.GET("/me", deps.User.GetProfile)
		users.PATCH("/me", deps.User.UpdateProfile)
		users.DELETE("/me", deps.User.DeleteAccount)
		users.POST("/me/avatar", deps.User.UploadAvatar)
		users.POST("/me/logo", deps.User.UploadLogo)
	}

	clients := api.Group("/clients", requireAuth)
	{
		clients.GET("", deps.Client.List)
		clients.POST("", deps.Client.Create)
		clients.GET("/stats", deps.Client.Stats)
		clients.GET("/:id", deps.Client.Get)
		clients.PUT("/:id", deps.Client.Update)
		clients.DELETE("/:id", deps.Client.Delete)
	}

	products := api.Group("/products", requireAuth)
	{
		products.GET("", deps.Product.List)
		products.POST("", deps.Product.Create)
		products.GET("/:id", deps.Product.Get)
		products.PUT("/:id", deps.Product.Update)
		products.DELETE("/:id", deps.Product.Delete)
	}

	invoices := api.Group("/invoices", requireAuth)
	{
		invoices.GET("", deps.Invoice.List)
		invoices.POST("", deps.Invoice.Create)
		invoices.GET("/summary", deps.Invoice.Summary)
		invoices.GET("/:id", deps.Invoice.Get)
		invoices.PUT("/:id", deps.Invoice.Update)
		invoices.DELETE("/:id", deps.Invoice.Delete)
		invoices.POST("/:id/status", deps.Invoice.UpdateStatus)
		invoices.POST("/:id/pdf", deps.Invoice.GeneratePDF)
		invoices.POST("/:id/reminder", deps.Invoice.SendReminder)
	}

	expenses := api.Group("/expenses", requireAuth)
	{
		expenses.GET("", deps.Expense.List)
		expenses.POST("", deps.Expense.Create)
		expenses.GET("/summary", deps.Expense.Summary)
		expenses.GET("/:id", deps.Expense.Get)
		expenses.PUT("/:id", deps.Expense.Update)
		expenses.DELETE("/:id", deps.Expense.Delete)
	}

	extract := api.Group("/extract")
	{
		extract.POST("/text", extractLimit, optionalAuth, deps.Extraction.ExtractText)
		extract.POST("/document", extractLimit, optionalAuth, deps.Extraction.ExtractDocument)
		extract.GET("/history", requireAuth, deps.Extraction.History)
	}
}
