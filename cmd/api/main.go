package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/sentra-platform/incident-api/api/swagger"
	"github.com/sentra-platform/incident-api/internal/handler"
	"github.com/sentra-platform/incident-api/internal/middleware"
	"github.com/sentra-platform/incident-api/internal/models"
	"github.com/sentra-platform/incident-api/internal/repository"
	"github.com/sentra-platform/incident-api/internal/service"
	"github.com/sentra-platform/incident-api/pkg/cache"
	"github.com/sentra-platform/incident-api/pkg/config"
	"github.com/sentra-platform/incident-api/pkg/database"
	"github.com/sentra-platform/incident-api/pkg/logger"
	corsmiddleware "github.com/sentra-platform/incident-api/pkg/middleware/cors"
	reqidmiddleware "github.com/sentra-platform/incident-api/pkg/middleware/requestid"
	"github.com/sentra-platform/incident-api/pkg/storage"
)

// @title Sentra Incident API
// @version 1.0.0
// @description Incident reporting and triage service
// @BasePath /api
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var cacheService *service.CacheService
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metrics, cfg.Stats.CacheTTL, logr, true)
	} else {
		cacheService = service.NewCacheService(nil, metrics, cfg.Stats.CacheTTL, logr, false)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	incidentRepo := repository.NewIncidentRepository(db)

	authz := service.NewAuthorizationPolicy()
	visibility := service.NewVisibilityPolicy()

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	userService := service.NewUserService(userRepo, validate, logr)
	incidentService := service.NewIncidentService(incidentRepo, userRepo, authz, visibility, cacheService, validate, logr)
	statsService := service.NewStatsService(incidentRepo, authz, cacheService, cfg.Stats.CacheTTL, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var exportService *service.ExportService
	if cfg.Exports.Enabled {
		exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportService = service.NewExportService(incidentRepo, exportStorage, signer, authz, metrics, service.ExportServiceConfig{
			WorkerConcurrency: cfg.Exports.WorkerConcurrency,
			WorkerRetries:     cfg.Exports.WorkerRetries,
		}, logr)
		exportService.Start(ctx)
		defer exportService.Stop()
	}

	router := buildRouter(cfg, logr, metrics, authService, userService, incidentService, statsService, exportService)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func buildRouter(
	cfg *config.Config,
	logr *zap.Logger,
	metrics *service.MetricsService,
	authService *service.AuthService,
	userService *service.UserService,
	incidentService *service.IncidentService,
	statsService *service.StatsService,
	exportService *service.ExportService,
) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authService)
	incidentHandler := handler.NewIncidentHandler(incidentService)
	userHandler := handler.NewUserHandler(userService)
	statsHandler := handler.NewStatsHandler(statsService)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	incidents := api.Group("/incidents", middleware.JWT(authService))
	{
		incidents.POST("", incidentHandler.Create)
		incidents.GET("/my", incidentHandler.ListMine)
		incidents.GET("", middleware.RequireRoles(models.RoleAdmin), incidentHandler.ListAll)
		incidents.GET("/assigned", middleware.RequireRoles(models.RoleStaff), incidentHandler.ListAssigned)
		incidents.GET("/:id", incidentHandler.Get)
		incidents.GET("/:id/history", incidentHandler.History)
		incidents.PATCH("/:id", incidentHandler.Edit)
		incidents.PATCH("/:id/status", middleware.RequireRoles(models.RoleStaff, models.RoleAdmin), incidentHandler.UpdateStatus)
		incidents.PATCH("/:id/assign", middleware.RequireRoles(models.RoleAdmin), incidentHandler.Assign)
		incidents.POST("/:id/attachments", incidentHandler.AddAttachment)
		incidents.DELETE("/:id/attachments/:attachmentId", incidentHandler.RemoveAttachment)
	}

	users := api.Group("/users", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id", userHandler.Update)
		users.DELETE("/:id", userHandler.Delete)
	}

	stats := api.Group("/stats", middleware.JWT(authService))
	{
		stats.GET("/incidents", statsHandler.Overview)
	}

	if exportService != nil {
		exportHandler := handler.NewExportHandler(exportService)
		exports := api.Group("/exports")
		{
			exports.GET("/download/:token", exportHandler.Download)
			exports.POST("", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), exportHandler.Create)
			exports.GET("/:id", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), exportHandler.Status)
		}
	}

	return r
}
