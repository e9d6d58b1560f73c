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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/langchou/stationgazer/internal/api/handlers"
	"github.com/langchou/stationgazer/internal/api/ich"
	"github.com/langchou/stationgazer/internal/cache"
	"github.com/langchou/stationgazer/internal/config"
	"github.com/langchou/stationgazer/internal/logging"
	"github.com/langchou/stationgazer/internal/repository"
	"github.com/langchou/stationgazer/internal/service"
	"github.com/langchou/stationgazer/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Stationgazer", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	stationRepo := repository.NewStationRepository(db)

	checks := map[string]handlers.HealthCheck{
		"database": db.Ping,
	}

	// 原始数据缓存：配置了 Redis 就用 Redis，否则进程内缓存
	var feedCache cache.Cache
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("Failed to connect redis", zap.Error(err))
		}
		feedCache = rc
		checks["redis"] = rc.Ping
	} else {
		feedCache = cache.NewLocalCache()
	}
	defer feedCache.Close()

	// 上游客户端
	feedClient := ich.NewClient(cfg.FeedOptions(), logger)

	// 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(registry)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run(ctx)

	// 创建同步服务
	stationService := service.NewStationService(
		service.Options{
			StationsInterval: cfg.SyncIntervalStations,
			StatusInterval:   cfg.SyncIntervalStatus,
			CacheTTL:         cfg.FeedCacheTTL,
			Lenient:          cfg.FeedLenient,
		},
		logger,
		feedClient,
		stationRepo,
		feedCache,
		wsHub,
		metrics,
	)

	// 新连接先收到当前同步状态
	wsHub.SetInitDataProvider(func() interface{} {
		return stationService.SyncState()
	})

	stationService.Start(ctx)

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(logger, stationService, wsHub, registry, checks)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止服务
	stationService.Stop()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	cancel()
	logger.Info("Server exited")
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
