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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/mauriciomholiveira/cobranca-api/api/swagger"
	"github.com/mauriciomholiveira/cobranca-api/internal/handler"
	"github.com/mauriciomholiveira/cobranca-api/internal/middleware"
	"github.com/mauriciomholiveira/cobranca-api/internal/repository"
	"github.com/mauriciomholiveira/cobranca-api/internal/service"
	"github.com/mauriciomholiveira/cobranca-api/pkg/cache"
	"github.com/mauriciomholiveira/cobranca-api/pkg/config"
	"github.com/mauriciomholiveira/cobranca-api/pkg/database"
	"github.com/mauriciomholiveira/cobranca-api/pkg/jobs"
	"github.com/mauriciomholiveira/cobranca-api/pkg/logger"
	corsmiddleware "github.com/mauriciomholiveira/cobranca-api/pkg/middleware/cors"
	reqidmiddleware "github.com/mauriciomholiveira/cobranca-api/pkg/middleware/requestid"
	"github.com/mauriciomholiveira/cobranca-api/pkg/storage"
)

const (
	jobReconcile     = "reconcile"
	jobBackupCleanup = "backup_cleanup"

	backupRetention = 30 * 24 * time.Hour
)

// @title Cobranca API
// @version 1.0.0
// @description Billing and enrollment management for music lesson providers
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db.DB, cfg.Database.MigrationsPath, logr)
	if err != nil {
		logr.Fatal("failed to init migrator", zap.Error(err))
	}
	if err := migrator.Up(); err != nil {
		logr.Fatal("failed to apply migrations", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	backupStore, err := storage.NewLocalStorage(cfg.Backups.StorageDir)
	if err != nil {
		logr.Fatal("failed to init backup storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Backups.SignedURLSecret, cfg.Backups.SignedURLTTL)

	validate := validator.New()

	// Repositories.
	professorRepo := repository.NewProfessorRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	clientRepo := repository.NewClientRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	backupRepo := repository.NewBackupRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Billing.SummaryCacheTTL, logr, cfg.Billing.CacheEnabled && redisClient != nil)
	authSvc := service.NewAuthService(professorRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	professorSvc := service.NewProfessorService(professorRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	clientSvc := service.NewClientService(clientRepo, enrollmentRepo, paymentRepo, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, clientRepo, courseRepo, professorRepo, paymentRepo, cacheSvc, validate, logr)
	billingSvc := service.NewBillingService(paymentRepo, enrollmentRepo, cacheSvc, metricsSvc, validate, logr, service.BillingOptions{
		DefaultDueDay: cfg.Billing.DefaultDueDay,
		SummaryTTL:    cfg.Billing.SummaryCacheTTL,
	})
	messageSvc := service.NewMessageService(paymentRepo, metricsSvc, logr, service.MessagingOptions{
		CountryCode:   cfg.Messaging.CountryCode,
		LinkBaseURL:   cfg.Messaging.LinkBaseURL,
		InstituteName: cfg.Messaging.InstituteName,
	})
	exportSvc := service.NewExportService(paymentRepo, billingSvc, logr)
	reconcileSvc := service.NewReconcileService(paymentRepo, billingSvc, cacheSvc, metricsSvc, logr)
	backupSvc := service.NewBackupService(backupRepo, backupStore, signer, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	professorHandler := handler.NewProfessorHandler(professorSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	clientHandler := handler.NewClientHandler(clientSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	paymentHandler := handler.NewPaymentHandler(billingSvc, messageSvc, exportSvc)
	adminHandler := handler.NewAdminHandler(reconcileSvc, backupSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background maintenance queue: periodic reconciliation and backup
	// file cleanup share the same worker pool.
	maintenance := jobs.NewQueue("maintenance", func(ctx context.Context, job jobs.Job) error {
		switch job.Type {
		case jobReconcile:
			_, err := reconcileSvc.Run(ctx)
			return err
		case jobBackupCleanup:
			_, err := backupSvc.Cleanup(backupRetention)
			return err
		default:
			return fmt.Errorf("unknown job type %q", job.Type)
		}
	}, jobs.QueueConfig{
		Workers:    cfg.Reconcile.Workers,
		MaxRetries: cfg.Reconcile.MaxRetries,
		Logger:     logr,
	})
	maintenance.Start(rootCtx)
	defer maintenance.Stop()

	if cfg.Reconcile.Enabled {
		go scheduleMaintenance(rootCtx, maintenance, cfg.Reconcile.Interval, logr)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.GET("/backups/download", adminHandler.DownloadBackup)

	authed := api.Group("", middleware.JWT(authSvc))
	{
		authed.POST("/auth/logout", authHandler.Logout)
		authed.GET("/auth/me", authHandler.Me)
		authed.PUT("/auth/password", authHandler.ChangePassword)

		authed.GET("/professors", professorHandler.List)
		authed.GET("/professors/:id", professorHandler.Get)

		authed.GET("/courses", courseHandler.List)
		authed.GET("/courses/:id", courseHandler.Get)

		authed.GET("/clients", clientHandler.List)
		authed.GET("/clients/:id", clientHandler.Get)
		authed.POST("/clients", clientHandler.Create)
		authed.PUT("/clients/:id", clientHandler.Update)
		authed.DELETE("/clients/:id", clientHandler.Delete)

		authed.GET("/enrollments", enrollmentHandler.List)
		authed.GET("/enrollments/:id", enrollmentHandler.Get)
		authed.POST("/enrollments", enrollmentHandler.Create)
		authed.PUT("/enrollments/:id", enrollmentHandler.Update)
		authed.DELETE("/enrollments/:id", enrollmentHandler.Delete)

		authed.GET("/payments", paymentHandler.List)
		authed.GET("/payments/summary", paymentHandler.Summary)
		authed.GET("/payments/export", paymentHandler.Export)
		authed.GET("/payments/:id", paymentHandler.Get)
		authed.PATCH("/payments/:id", paymentHandler.Patch)
		authed.POST("/payments/:id/pay", paymentHandler.Pay)
		authed.POST("/payments/:id/revert", paymentHandler.Revert)
		authed.GET("/payments/:id/message", middleware.RequireCanMessage(), paymentHandler.Message)
		authed.POST("/payments/:id/message/:kind/sent", middleware.RequireCanMessage(), paymentHandler.MarkMessageSent)
	}

	admin := authed.Group("", middleware.RequireAdmin())
	{
		admin.POST("/professors", professorHandler.Create)
		admin.PUT("/professors/:id", professorHandler.Update)
		admin.DELETE("/professors/:id", professorHandler.Delete)

		admin.POST("/courses", courseHandler.Create)
		admin.PUT("/courses/:id", courseHandler.Update)
		admin.DELETE("/courses/:id", courseHandler.Delete)

		admin.DELETE("/clients/:id/purge", clientHandler.Purge)
		admin.DELETE("/enrollments/:id/purge", enrollmentHandler.Purge)

		admin.POST("/admin/reconcile", adminHandler.Reconcile)
		admin.POST("/admin/backups", adminHandler.CreateBackup)
	}

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

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Warn("failed to close redis", zap.Error(err))
	}
}

// scheduleMaintenance enqueues a reconciliation run on every tick and a
// backup cleanup once a day. The first reconciliation fires immediately so
// a restarted instance catches up without waiting a full interval.
func scheduleMaintenance(ctx context.Context, queue *jobs.Queue, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}

	enqueue := func(jobType string) {
		if err := queue.Enqueue(jobs.Job{Type: jobType}); err != nil {
			logr.Sugar().Warnw("failed to enqueue job", "type", jobType, "error", err)
		}
	}

	enqueue(jobReconcile)

	reconcileTicker := time.NewTicker(interval)
	defer reconcileTicker.Stop()
	cleanupTicker := time.NewTicker(24 * time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcileTicker.C:
			enqueue(jobReconcile)
		case <-cleanupTicker.C:
			enqueue(jobBackupCleanup)
		}
	}
}
