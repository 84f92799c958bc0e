package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/invoyq/invoyq-api/api/swagger"
	"github.com/invoyq/invoyq-api/internal/handler"
	"github.com/invoyq/invoyq-api/internal/middleware"
	"github.com/invoyq/invoyq-api/internal/repository"
	"github.com/invoyq/invoyq-api/internal/service"
	"github.com/invoyq/invoyq-api/pkg/cache"
	"github.com/invoyq/invoyq-api/pkg/config"
	"github.com/invoyq/invoyq-api/pkg/database"
	"github.com/invoyq/invoyq-api/pkg/export"
	"github.com/invoyq/invoyq-api/pkg/logger"
	corsmiddleware "github.com/invoyq/invoyq-api/pkg/middleware/cors"
	reqidmiddleware "github.com/invoyq/invoyq-api/pkg/middleware/requestid"
	"github.com/invoyq/invoyq-api/pkg/storage"
)

// @title InvoYQ API
// @version 1.0.0
// @description Invoicing and expense tracking backend for small businesses
// @BasePath /v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Storage.LocalDir)
	if err != nil {
		logr.Fatal("failed to init storage", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	clientRepo := repository.NewClientRepository(db)
	productRepo := repository.NewProductRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	expenseRepo := repository.NewExpenseRepository(db)
	extractionRepo := repository.NewExtractionRepository(db)

	signer := service.NewTokenSigner(cfg.JWT.Secret, cfg.JWT.Issuer)
	mailer := service.NewEmailService(cfg.SMTP, cfg.FrontendURL, logr)
	metrics := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, tokenRepo, signer, mailer, nil, logr, service.AuthConfig{
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})
	oauthSvc := service.NewOAuthService(userRepo, tokenRepo, signer, logr, service.OAuthConfig{
		ClientID:           cfg.Google.ClientID,
		ClientSecret:       cfg.Google.ClientSecret,
		RedirectURI:        cfg.Google.RedirectURI,
		FrontendURL:        cfg.FrontendURL,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})
	userSvc := service.NewUserService(userRepo, store, nil, logr, cfg.AppBaseURL)
	clientSvc := service.NewClientService(clientRepo, nil, logr)
	productSvc := service.NewProductService(productRepo, nil, logr)
	invoiceSvc := service.NewInvoiceService(invoiceRepo, clientRepo, productRepo, userRepo,
		export.NewInvoicePDF(), store, mailer, nil, logr, cfg.AppBaseURL)
	expenseSvc := service.NewExpenseService(expenseRepo, nil, logr)

	var generator *service.GeminiClient
	if cfg.Extraction.APIKey != "" {
		generator, err = service.NewGeminiClient(ctx, cfg.Extraction.APIKey, cfg.Extraction.Model)
		if err != nil {
			logr.Warn("gemini unavailable, extraction disabled", zap.Error(err))
		}
	}
	var extractionSvc *service.ExtractionService
	if generator != nil {
		extractionSvc = service.NewExtractionService(extractionRepo, generator, logr)
	} else {
		extractionSvc = service.NewExtractionService(extractionRepo, nil, logr)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.Static("/static", store.BaseDir())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, handler.Dependencies{
		Config:     cfg,
		Logger:     logr,
		Redis:      redisClient,
		Signer:     signer,
		Users:      userRepo,
		Metrics:    metrics,
		Auth:       handler.NewAuthHandler(authSvc, oauthSvc, metrics),
		User:       handler.NewUserHandler(userSvc),
		Client:     handler.NewClientHandler(clientSvc),
		Product:    handler.NewProductHandler(productSvc),
		Invoice:    handler.NewInvoiceHandler(invoiceSvc),
		Expense:    handler.NewExpenseHandler(expenseSvc),
		Extraction: handler.NewExtractionHandler(extractionSvc, metrics),
	})

	go sweepExpiredTokens(ctx, tokenRepo, cfg.JWT.SweepInterval, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// sweepExpiredTokens periodically deletes refresh tokens past their expiry.
// Revocation state is load-bearing until then, so only truly dead rows go.
func sweepExpiredTokens(ctx context.Context, repo *repository.RefreshTokenRepository, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.DeleteExpired(ctx)
			if err != nil {
				logr.Warn("token sweep failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				logr.Info("swept expired refresh tokens", zap.Int64("deleted", deleted))
			}
		}
	}
}
