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

	_ "github.com/classforge/mastery-engine/api/swagger"
	"github.com/classforge/mastery-engine/internal/handler"
	"github.com/classforge/mastery-engine/internal/middleware"
	"github.com/classforge/mastery-engine/internal/repository"
	"github.com/classforge/mastery-engine/internal/service"
	"github.com/classforge/mastery-engine/pkg/cache"
	"github.com/classforge/mastery-engine/pkg/config"
	"github.com/classforge/mastery-engine/pkg/database"
	"github.com/classforge/mastery-engine/pkg/export"
	"github.com/classforge/mastery-engine/pkg/jobs"
	"github.com/classforge/mastery-engine/pkg/logger"
	corsmiddleware "github.com/classforge/mastery-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/classforge/mastery-engine/pkg/middleware/requestid"
)

// @title Mastery Engine
// @version 0.1.0
// @description Adaptive mastery and assessment engine
// @BasePath /
// @schemes http

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

	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheService *service.CacheService
	if cfg.Pools.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metrics, cfg.Pools.TTL, logr, true)
	}

	sessionRepo := repository.NewPracticeSessionRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	masteryRepo := repository.NewTopicMasteryRepository(db)
	questionRepo := repository.NewQuestionBankRepository(db)
	weeklyTestRepo := repository.NewWeeklyTestRepository(db)
	weeklyResultRepo := repository.NewWeeklyResultRepository(db)
	lessonEvalRepo := repository.NewLessonEvaluationRepository(db)
	lessonResultRepo := repository.NewLessonResultRepository(db)
	recommendationRepo := repository.NewRecommendationRepository(db)
	curriculumRepo := repository.NewCurriculumRepository(db)

	pdfExporter := export.NewPaperPDFExporter()
	csvExporter := export.NewCSVExporter()

	strengthService := service.NewStrengthService(attemptRepo, cacheService, metrics, validate, logr)
	practiceService := service.NewPracticeService(sessionRepo, attemptRepo, masteryRepo, questionRepo, strengthService, validate, logr, metrics,
		cfg.Practice.DefaultMaxQuestions, cfg.Practice.DefaultTimeLimitMinutes)
	weeklyService := service.NewWeeklyTestService(weeklyTestRepo, weeklyResultRepo, strengthService, questionRepo, masteryRepo, pdfExporter, csvExporter, validate, logr, metrics,
		cfg.Weekly.DefaultQuestionCount, cfg.Weekly.DefaultTotalMarks, cfg.Weekly.DefaultDurationMinutes)
	recommendationService := service.NewRecommendationService(recommendationRepo, curriculumRepo, masteryRepo, logr, metrics)
	lessonService := service.NewLessonEvaluationService(lessonEvalRepo, lessonResultRepo, curriculumRepo, weeklyResultRepo, masteryRepo, questionRepo, recommendationService, pdfExporter, validate, logr, metrics,
		cfg.Lesson.DefaultQuestionCount, cfg.Lesson.DefaultTotalMarks, cfg.Lesson.DefaultDurationMinutes)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	refreshQueue := jobs.NewQueue("pool-refresh", strengthService.HandleRefreshJob, jobs.QueueConfig{
		Workers: 2,
		Logger:  logr,
	})
	refreshQueue.Start(ctx)
	defer refreshQueue.Stop()
	strengthService.UseQueue(refreshQueue)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/metrics/snapshot", func(c *gin.Context) {
		c.JSON(http.StatusOK, metrics.Snapshot())
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group("/api/v1", middleware.Tenant())
	handler.NewPracticeHandler(practiceService).Routes(api.Group("/practice"))
	handler.NewWeeklyTestHandler(weeklyService).Routes(api.Group("/weekly-tests"))
	handler.NewLessonEvaluationHandler(lessonService).Routes(api.Group("/lesson-evaluations"))
	handler.NewRecommendationHandler(recommendationService).Routes(api.Group("/recommendations"))
	handler.NewStrengthHandler(strengthService).Routes(api.Group("/strength"))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
