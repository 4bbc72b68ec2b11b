package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"gradehouse/internal/config"
	"gradehouse/internal/db"
	"gradehouse/internal/handlers"
	"gradehouse/internal/logging"
	"gradehouse/internal/middleware"
	"gradehouse/internal/pipeline"
	"gradehouse/internal/repository"
	"gradehouse/internal/sandbox"
	"gradehouse/internal/template"
)

func main() {
	_ = godotenv.Load()
	logging.Init()
	defer logging.Sync()

	cfg := config.Load()
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.NewDatabase(db.ConfigFromEnv())
	if err != nil {
		logging.L().Fatal("database init failed", zap.Error(err))
	}
	defer database.Close()

	redisClient, err := db.NewRedisClient(context.Background(), nil)
	if err != nil {
		logging.L().Warn("redis unavailable, using in-process status cache", zap.Error(err))
		redisClient = nil
	}
	statusCache := repository.NewStatusCache(redisClient, cfg.StatusCacheTTL)

	submissions := repository.NewSubmissionRepository(database.DB)
	rubrics := repository.NewRubricRepository(database.DB)
	results := repository.NewResultRepository(database.DB)

	managerCfg := sandbox.DefaultManagerConfig()
	runtime, err := sandbox.NewDockerRuntime(managerCfg.DockerHost, managerCfg.GVisorRuntime)
	if err != nil {
		logging.L().Fatal("docker runtime init failed", zap.Error(err))
	}
	defer runtime.Close()

	startCtx, startCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	manager, err := sandbox.NewManager(startCtx, managerCfg, runtime)
	startCancel()
	if err != nil {
		logging.L().Fatal("sandbox manager init failed", zap.Error(err))
	}

	registry := template.DefaultRegistry()

	preflight, err := config.LoadPreflight(cfg.PreflightFile)
	if err != nil {
		logging.L().Fatal("preflight config invalid", zap.Error(err))
	}

	exporter := &repository.ResultExporter{
		Results:     results,
		Submissions: submissions,
		Cache:       statusCache,
	}
	service := pipeline.NewService(registry, manager, preflight, exporter)

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.RateLimit(middleware.NewIPRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)),
	)

	h := &handlers.Handler{
		Service:        service,
		Registry:       registry,
		Database:       database,
		Submissions:    submissions,
		Rubrics:        rubrics,
		Results:        results,
		Cache:          statusCache,
		Exporter:       exporter,
		GradingTimeout: cfg.GradingTimeout,
	}
	h.Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logging.L().Info("server listening", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Fatal("server failed", zap.Error(err))
		}
	}()

	// Block until asked to stop, then drain in order: HTTP first so no
	// new gradings start, then the container pools.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logging.L().Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.L().Warn("http shutdown incomplete", zap.Error(err))
	}
	manager.Shutdown(shutdownCtx)
	registry.StopAll()

	if redisClient != nil {
		_ = redisClient.Close()
	}
	logging.L().Info("shutdown complete")
}
