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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-enrollment-sync/api/swagger"
	"github.com/noah-isme/sma-enrollment-sync/internal/cluster"
	"github.com/noah-isme/sma-enrollment-sync/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-enrollment-sync/internal/middleware"
	"github.com/noah-isme/sma-enrollment-sync/internal/replication"
	"github.com/noah-isme/sma-enrollment-sync/internal/repository"
	"github.com/noah-isme/sma-enrollment-sync/internal/service"
	"github.com/noah-isme/sma-enrollment-sync/pkg/cache"
	"github.com/noah-isme/sma-enrollment-sync/pkg/config"
	"github.com/noah-isme/sma-enrollment-sync/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-enrollment-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-enrollment-sync/pkg/middleware/requestid"
)

// @title Enrollment Sync API
// @version 1.0.0
// @description Course enrollment replicated across multi-leader PostgreSQL databases
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	leaders, err := cluster.New(cfg.Cluster, cfg.Replication,
		cluster.WithLogger(logger.Component(logr, "cluster")),
		cluster.WithObserver(metrics),
	)
	if err != nil {
		logr.Fatal("failed to configure cluster", zap.Error(err))
	}
	defer leaders.Close() //nolint:errcheck

	validate := validator.New()
	cacheSvc := newCacheService(ctx, cfg, metrics, logr)

	reader := replication.NewReader(leaders, logger.Component(logr, "reader"))
	propagator := replication.NewPropagator(leaders, metrics, logger.Component(logr, "propagator"))
	healer := replication.NewHealer(leaders, metrics, logger.Component(logr, "healer"))

	enrollmentSvc := service.NewEnrollmentService(leaders, reader, propagator, validate, logr)
	courseSvc := service.NewCourseService(leaders, cacheSvc, cfg.Catalog.CacheTTL, validate, logr)
	leaderSvc := service.NewLeaderService(leaders, logr)
	reportSvc := service.NewReportService(leaders, logr)
	authSvc := service.NewAuthService(validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
	})
	healSvc := service.NewHealService(healer, metrics, service.HealConfig{
		OnStartup:  cfg.Replication.HealOnStartup,
		Interval:   cfg.Replication.HealInterval,
		Workers:    cfg.Replication.HealWorkers,
		MaxRetries: cfg.Replication.HealRetries,
		RetryDelay: 2 * time.Second,
	}, logger.Component(logr, "heal"))
	healSvc.Start(ctx)
	defer healSvc.Stop()

	metricsHandler := handler.NewMetricsHandler(metrics)
	routes := handler.Routes{
		Courses:     handler.NewCourseHandler(courseSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Leaders:     handler.NewLeaderHandler(leaderSvc, enrollmentSvc),
		Reports:     handler.NewReportHandler(reportSvc),
		Heal:        handler.NewHealHandler(healSvc),
		Metrics:     metricsHandler,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	routes.Register(r.Group(cfg.APIPrefix), internalmiddleware.JWT(authSvc))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "leaders", leaders.IDs(), "local", leaders.Local())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown", zap.Error(err))
	}
}

// newCacheService returns nil when the catalog cache is off or Redis is down.
func newCacheService(ctx context.Context, cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger) *service.CacheService {
	if !cfg.Redis.Enabled || !cfg.Catalog.CacheEnabled {
		return nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis, 5*time.Second)
	if err != nil {
		logr.Warn("catalog cache disabled", zap.Error(err))
		return nil
	}
	repo := repository.NewCacheRepository(client, "enrollment-sync", logger.Component(logr, "cache"))
	return service.NewCacheService(repo, metrics, cfg.Catalog.CacheTTL, logr, true)
}
