package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-attendance-api/api/swagger"
	"github.com/noah-isme/campus-attendance-api/internal/handler"
	"github.com/noah-isme/campus-attendance-api/internal/middleware"
	"github.com/noah-isme/campus-attendance-api/internal/repository"
	"github.com/noah-isme/campus-attendance-api/internal/routes"
	"github.com/noah-isme/campus-attendance-api/internal/service"
	"github.com/noah-isme/campus-attendance-api/pkg/cache"
	"github.com/noah-isme/campus-attendance-api/pkg/config"
	"github.com/noah-isme/campus-attendance-api/pkg/database"
	"github.com/noah-isme/campus-attendance-api/pkg/export"
	"github.com/noah-isme/campus-attendance-api/pkg/jobs"
	"github.com/noah-isme/campus-attendance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-attendance-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-attendance-api/pkg/storage"
)

// @title Campus Attendance API
// @version 1.0.0
// @description Geofenced, code-based class attendance for teachers and students.
// @BasePath /api
// @schemes http https
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
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	reportRepo := repository.NewReportRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Reports.CacheTTL, logr, cacheRepo.Enabled())

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exportSvc := service.NewExportService(attendanceRepo, files, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr, export.NewCSVExporter(export.WithQuotedFields()), export.NewPDFExporter("Campus Attendance"))

	sessionSvc := service.NewSessionService(sessionRepo, attendanceRepo, enrollmentRepo, exportSvc, cacheSvc, metricsSvc, validate, logr, service.SessionConfig{
		DefaultDuration: cfg.Sessions.DefaultDuration,
		DefaultRadius:   cfg.Sessions.DefaultRadius,
		CodeAttempts:    cfg.Sessions.CodeAttempts,
	})
	attendanceSvc := service.NewAttendanceService(sessionRepo, attendanceRepo, enrollmentRepo, sessionSvc, metricsSvc, validate, logr)
	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	adminSvc := service.NewAdminService(userRepo, teacherRepo, enrollmentRepo, validate, logr)
	settingsSvc := service.NewSettingsService(settingsRepo, validate, logr)

	worker := service.NewReportWorker(reportRepo, exportSvc, logr)
	reportQueue := jobs.NewQueue("report-jobs", worker.Handle, jobs.QueueConfig{
		Workers:     cfg.Reports.WorkerConcurrency,
		MaxRetries:  cfg.Reports.WorkerRetries,
		RetryDelay:  2 * time.Second,
		Logger:      logr,
		OnExhausted: worker.Exhausted,
	})
	reportSvc := service.NewReportService(reportRepo, sessionRepo, cacheSvc, reportQueue, exportSvc, validate, logr, service.ReportServiceConfig{
		StatsTTL:        cfg.Reports.CacheTTL,
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})

	reportQueue.Start(ctx)
	reportSvc.RecoverPendingJobs(ctx)
	reportSvc.StartCleanup(ctx)
	sweeperDone := service.NewExpirySweeper(sessionSvc, cfg.Sessions.SweepInterval, logr).Start(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	health := handler.NewHealthHandler(metricsSvc, readinessChecks(db.PingContext, redisClient))
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/metrics", health.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	routes.Register(r.Group(cfg.APIPrefix), routes.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Session:    handler.NewSessionHandler(sessionSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Report:     handler.NewReportHandler(reportSvc),
		Admin:      handler.NewAdminHandler(adminSvc),
		Settings:   handler.NewSettingsHandler(settingsSvc),
	}, routes.Deps{
		Tokens:      authSvc,
		Audit:       auditRepo,
		MarkLimiter: cache.NewLimiter(redisClient, "ratelimit:mark:", cfg.RateLimit.MarkLimit, cfg.RateLimit.MarkWindow),
		Logger:      logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	reportQueue.Stop()
	<-sweeperDone
}

func readinessChecks(pingDB handler.ReadinessCheck, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{"postgres": pingDB}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}
