package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/mysociety/ceuk-marking-sub000/internal/handler"
	"github.com/mysociety/ceuk-marking-sub000/internal/middleware"
	"github.com/mysociety/ceuk-marking-sub000/internal/repository"
	"github.com/mysociety/ceuk-marking-sub000/internal/service"
	"github.com/mysociety/ceuk-marking-sub000/pkg/cache"
	"github.com/mysociety/ceuk-marking-sub000/pkg/config"
	"github.com/mysociety/ceuk-marking-sub000/pkg/database"
	"github.com/mysociety/ceuk-marking-sub000/pkg/export"
	"github.com/mysociety/ceuk-marking-sub000/pkg/jobs"
	"github.com/mysociety/ceuk-marking-sub000/pkg/logger"
	corsmiddleware "github.com/mysociety/ceuk-marking-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/mysociety/ceuk-marking-sub000/pkg/middleware/requestid"
	"github.com/mysociety/ceuk-marking-sub000/pkg/storage"
)

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
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, result caching disabled", "error", err)
		redisClient = nil
	}

	// Repositories.
	sessionRepo := repository.NewSessionRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	authorityRepo := repository.NewAuthorityRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	configRepo := repository.NewSessionConfigRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)

	// Services.
	metricsSvc := service.NewMetricsService()
	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Scoring.CacheTTL, logr, cfg.Scoring.CacheEnabled)
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Scoring.CacheTTL, logr, false)
	}

	configSvc := service.NewConfigService(configRepo, responseRepo, logr)
	maximumSvc := service.NewMaximumService(logr)
	exceptionSvc := service.NewExceptionService(logr)
	scorer := service.NewResponseScorer(logr)
	scoringSvc := service.NewScoringService(
		sessionRepo, sectionRepo, questionRepo, authorityRepo, responseRepo,
		configSvc, maximumSvc, exceptionSvc, scorer, metricsSvc, logr, cfg.Scoring.Workers)
	duplicateSvc := service.NewDuplicateService(sessionRepo, responseRepo, logr)

	// Export pipeline.
	store, err := storage.NewExportStore(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(export.NewCSVExporter(), export.NewPDFExporter(), logr)
	exportWorker := service.NewExportWorker(exportJobRepo, scoringSvc, exportSvc, store, signer, cfg.Exports.WorkerRetries, logr)
	queue := jobs.NewQueue("exports", exportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	exportJobSvc := service.NewExportJobService(exportJobRepo, queue, store, signer, logr, service.ExportJobServiceConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
		MaxRetries:      cfg.Exports.WorkerRetries,
	})
	if cfg.Exports.Enabled {
		queue.Start(ctx)
		defer queue.Stop()
		exportJobSvc.RecoverPendingJobs(ctx)
		exportJobSvc.StartCleanup(ctx)
	}

	// Handlers.
	scoringHandler := handler.NewScoringHandler(scoringSvc, duplicateSvc, configSvc, cacheSvc, cfg.Scoring.CacheTTL, logr)
	exportHandler := handler.NewExportHandler(exportJobSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	{
		sessions := api.Group("/sessions/:session")
		sessions.GET("/scores", scoringHandler.GetScores)
		sessions.GET("/maxes", scoringHandler.GetMaxes)
		sessions.GET("/duplicates", scoringHandler.GetDuplicates)
		sessions.POST("/cache/clear", scoringHandler.ClearCache)
		if cfg.Exports.Enabled {
			sessions.POST("/exports", exportHandler.CreateExport)
			api.GET("/exports/:id", exportHandler.GetExportStatus)
			api.GET("/export/:token", exportHandler.Download)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
