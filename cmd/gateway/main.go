package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"querygate/internal/config"
	"querygate/internal/database"
	"querygate/internal/database/metadata"
	"querygate/internal/logger"
	"querygate/internal/model"
	"querygate/internal/repository"
	"querygate/internal/security"
	"querygate/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	if err := logger.Setup(cfg.Logging); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Persisted tenant registry, read-only from here.
	registryDB, err := config.InitRegistryDatabase(cfg)
	if err != nil {
		log.Fatal("Failed to connect to tenant registry:", err)
	}
	registry := repository.NewTenantRegistry(registryDB)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drivers := database.NewDriverRegistry()
	manager := database.NewConnectionManager(registry, drivers, cfg.Pool)
	defer manager.CloseAll()
	go manager.StartSweeper(ctx)

	healthChecker := database.NewHealthChecker(manager)
	go healthChecker.StartPeriodic(ctx, cfg.Pool.HealthInterval)

	gate := security.NewGate(cfg.Security, security.NewMemoryPermissionStore())
	gate.Limiter().Start(ctx)

	schemas := metadata.NewSchemaCache(cfg.Schema.CacheTTL, cfg.Schema.CleanupInterval)
	go schemas.Start(ctx)
	extractor := metadata.NewMetadataExtractor(manager)

	metrics := service.NewMetricsCollector()
	metrics.StartPoolStatsLoop(ctx, manager, 0)

	orchestrator := service.NewOrchestrator(cfg, registry, manager, gate, drivers, schemas, extractor, metrics)

	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/api/v1/query", func(c *gin.Context) {
		var req model.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.SourceAddress == "" {
			req.SourceAddress = c.ClientIP()
		}
		result := orchestrator.ExecuteQuery(c.Request.Context(), &req)
		c.JSON(statusCode(result), result)
	})

	router.GET("/health", func(c *gin.Context) {
		report := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if report.Overall == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Logger.Info("gateway listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("shutdown error", zap.Error(err))
	}
}

// statusCode maps the result status onto HTTP codes without leaking
// internals: blocked requests are forbidden, failures are a 500-class.
func statusCode(result *model.QueryResult) int {
	switch result.Status {
	case model.QueryStatusBlocked:
		return http.StatusForbidden
	case model.QueryStatusError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
