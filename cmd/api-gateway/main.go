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
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/batch-intake-api/api/swagger"
	"github.com/noah-isme/batch-intake-api/internal/handler"
	"github.com/noah-isme/batch-intake-api/internal/middleware"
	"github.com/noah-isme/batch-intake-api/internal/models"
	"github.com/noah-isme/batch-intake-api/internal/repository"
	"github.com/noah-isme/batch-intake-api/internal/service"
	"github.com/noah-isme/batch-intake-api/pkg/cache"
	"github.com/noah-isme/batch-intake-api/pkg/config"
	"github.com/noah-isme/batch-intake-api/pkg/database"
	"github.com/noah-isme/batch-intake-api/pkg/export"
	"github.com/noah-isme/batch-intake-api/pkg/jobs"
	"github.com/noah-isme/batch-intake-api/pkg/logger"
	"github.com/noah-isme/batch-intake-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/batch-intake-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/batch-intake-api/pkg/middleware/requestid"
	"github.com/noah-isme/batch-intake-api/pkg/storage"
)

// @title Batch Intake API
// @version 1.0.0
// @description Roster upload, validation and enrollment for student batch intakes
// @BasePath /api/v1
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Dashboard.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	fileStore, err := storage.NewLocalStorage(cfg.Intake.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare intake storage", zap.Error(err))
	}
	signerSecret := cfg.Intake.SignedURLSecret
	if signerSecret == "" {
		signerSecret = cfg.JWT.Secret
	}
	signer := storage.NewSignedURLSigner(signerSecret, cfg.Intake.SignedURLTTL)

	batchRepo := repository.NewBatchIntakeRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	admissionRepo := repository.NewAdmissionRepository(db)
	messageRepo := repository.NewBatchMessageRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)
	txRunner := repository.NewTxRunner(db)

	metricsSvc := service.NewMetricsService()
	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metricsSvc, cfg.Dashboard.CacheTTL, logr, true)
	}

	sender, err := mailer.New(cfg.Notifications, logr)
	if err != nil {
		logr.Fatal("failed to configure notification sender", zap.Error(err))
	}
	recipients, err := mailer.ParseRecipients(cfg.Notifications.Recipients)
	if err != nil {
		logr.Fatal("invalid notification recipients", zap.Error(err))
	}
	notificationSvc := service.NewNotificationService(messageRepo, sender, metricsSvc, logr, service.NotificationConfig{
		EmailEnabled: cfg.Notifications.Enabled,
		Recipients:   recipients,
	})
	notificationQueue := jobs.NewQueue("notifications", notificationSvc.Deliver, jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		MaxRetries: cfg.Notifications.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	notificationSvc.AttachQueue(notificationQueue)
	notificationQueue.Start(ctx)
	defer notificationQueue.Stop()

	validate := validator.New()
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)
	reconciler := service.NewIntakeReconciler(studentRepo, txRunner, cfg.Intake.DefaultGender, logr)
	batchSvc := service.NewBatchIntakeService(service.BatchIntakeDependencies{
		Repo:       batchRepo,
		Students:   studentRepo,
		Courses:    courseRepo,
		Sequences:  sequenceRepo,
		Storage:    fileStore,
		Signer:     signer,
		Reconciler: reconciler,
		Renderer:   export.NewCSVExporter(),
		Notifier:   notificationSvc,
		Cache:      cacheSvc,
		Metrics:    metricsSvc,
	}, validate, logr, service.BatchIntakeServiceConfig{
		MaxFileSize:          cfg.Intake.MaxFileSizeBytes,
		ValidationErrorLimit: cfg.Intake.ValidationErrorLimit,
		ProcessErrorLimit:    cfg.Intake.ProcessErrorLimit,
		APIPrefix:            cfg.APIPrefix,
		StatsTTL:             cfg.Dashboard.CacheTTL,
	})
	admissionSvc := service.NewAdmissionService(batchRepo, studentRepo, admissionRepo, courseRepo, sequenceRepo, notificationSvc, logr)

	batchHandler := handler.NewBatchIntakeHandler(batchSvc, cfg.Intake.MaxFileSizeBytes)
	admissionHandler := handler.NewAdmissionHandler(admissionSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/health", "/ready", "/metrics"))
	r.MaxMultipartMemory = cfg.Intake.MaxFileSizeBytes

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/summary", metricsHandler.Snapshot)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	// The signed token in the query authorises the download on its own.
	api.GET("/batch-intakes/:id/file/download", middleware.OptionalJWT(tokenSvc), batchHandler.DownloadFile)

	batches := api.Group("/batch-intakes", middleware.JWT(tokenSvc))
	batches.GET("", batchHandler.List)
	batches.POST("", batchHandler.Create)
	if cfg.Dashboard.Enabled {
		batches.GET("/stats", batchHandler.Stats)
	}
	batches.GET("/template", batchHandler.Template)
	batches.GET("/:id", batchHandler.Get)
	batches.PUT("/:id", batchHandler.Update)
	batches.POST("/:id/upload", batchHandler.Upload)
	batches.POST("/:id/validate", batchHandler.Validate)
	batches.POST("/:id/process", batchHandler.Process)
	batches.POST("/:id/open", batchHandler.Open)
	batches.POST("/:id/close", batchHandler.Close)
	batches.POST("/:id/cancel", batchHandler.Cancel)
	batches.POST("/:id/reopen", batchHandler.Reopen)
	batches.POST("/:id/reset", batchHandler.Reset)
	batches.GET("/:id/students", batchHandler.Students)
	batches.GET("/:id/messages", batchHandler.Messages)
	batches.POST("/:id/messages", batchHandler.Comment)
	batches.GET("/:id/file", batchHandler.FileLink)
	batches.GET("/:id/admissions", admissionHandler.List)
	batches.POST("/:id/admissions", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), admissionHandler.CreateFromBatch)

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

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
