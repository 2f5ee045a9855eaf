package main

import (
	"mahfaza/internal/handler"
	"mahfaza/internal/middleware"
	"mahfaza/pkg/config"
	"mahfaza/pkg/database"
	"mahfaza/pkg/logger"
	"mahfaza/pkg/ratelimit"
	"mahfaza/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting platform service...", zap.String("environment", cfg.Server.Env))

	// Initialize the main store and tenant store cache
	if err := database.Init(&cfg.Data); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database initialized", zap.String("data_dir", cfg.Data.Dir))

	// One limiter instance shared by every login flow
	limiter := ratelimit.New(ratelimit.Config{
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Window:      cfg.RateLimit.Window,
		Lockout:     cfg.RateLimit.Lockout,
		CacheSize:   cfg.RateLimit.CacheSize,
	})

	authHandler := handler.NewAuthHandler(cfg, limiter)
	resetHandler := handler.NewResetHandler(cfg, limiter)
	adminHandler := handler.NewAdminHandler(cfg, limiter)
	registerHandler := handler.NewRegisterHandler(cfg)
	tenantHandler := handler.NewTenantHandler(cfg)
	cleanupHandler := handler.NewCleanupHandler(cfg)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())
	e.Use(middleware.Gate(cfg))

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(prometheus.GetPrometheusHandler()))

	// Authentication routes
	e.GET("/api/csrf", authHandler.IssueCSRF)
	e.GET("/api/tenant/session/:tenantId", authHandler.CheckSession)
	auth := e.Group("/api/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/logout", authHandler.Logout)
	auth.POST("/regenerate-session", authHandler.RegenerateSession)
	auth.POST("/forgot-password", resetHandler.ForgotPassword)
	auth.POST("/verify-reset-code", resetHandler.VerifyResetCode)
	auth.POST("/reset-password", resetHandler.ResetPassword)

	// Company self-registration
	e.POST("/api/register", registerHandler.Register)

	// Admin console API
	admin := e.Group("/api/admin")
	admin.POST("/signin", adminHandler.SignIn)
	admin.POST("/signout", adminHandler.SignOut)
	admin.GET("/companies", adminHandler.ListCompanies)
	admin.POST("/companies", adminHandler.CreateCompany)
	admin.POST("/companies/:id/toggle", adminHandler.ToggleCompany)
	admin.PATCH("/users/role", adminHandler.UpdateUserRole)

	// Tenant application API, scoped by tenant id in the path
	tenant := e.Group("/api/c/:tenantId")
	tenant.GET("/branches", tenantHandler.ListBranches)
	tenant.POST("/branches", tenantHandler.CreateBranch)
	tenant.PATCH("/branches/:branchId", tenantHandler.UpdateBranch)
	tenant.DELETE("/branches/:branchId", tenantHandler.DeleteBranch)
	tenant.GET("/wallet", tenantHandler.GetWallet)
	tenant.POST("/wallet/transactions", tenantHandler.CreateTransaction)

	// Scheduled maintenance, gated by a shared bearer secret
	e.POST("/api/cron/cleanup-sessions", cleanupHandler.Sweep)

	// Get server port from configuration
	port := cfg.Server.Port

	// Start server
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
