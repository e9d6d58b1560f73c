package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/langchou/stationgazer/internal/models"
	"github.com/langchou/stationgazer/internal/repository"
	"github.com/langchou/stationgazer/internal/service"
	"github.com/langchou/stationgazer/internal/state"
	"github.com/langchou/stationgazer/pkg/ws"
)

// StationService 处理器依赖的服务能力
type StationService interface {
	ListStations(ctx context.Context, f repository.StationFilter) ([]*models.ChargingStation, error)
	CountStations(ctx context.Context, f repository.StationFilter) (int64, error)
	GetStation(ctx context.Context, evseID string) (*models.ChargingStation, error)
	SyncStations(ctx context.Context) (*service.StationSyncReport, error)
	SyncStatuses(ctx context.Context) (*service.StatusSyncReport, error)
	SyncState() state.SyncState
}

// HealthCheck 依赖健康检查
type HealthCheck func(ctx context.Context) error

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	stations StationService
	wsHub    *ws.Hub
	gatherer prometheus.Gatherer
	checks   map[string]HealthCheck
	upgrader websocket.Upgrader
}

// NewHandler 创建处理器；checks 中任一失败时 /health 返回 503
func NewHandler(
	logger *zap.Logger,
	stations StationService,
	wsHub *ws.Hub,
	gatherer prometheus.Gatherer,
	checks map[string]HealthCheck,
) *Handler {
	return &Handler{
		logger:   logger,
		stations: stations,
		wsHub:    wsHub,
		gatherer: gatherer,
		checks:   checks,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// 充电站查询
		api.GET("/stations", h.ListStations)
		api.GET("/stations/count", h.CountStations)
		api.GET("/stations/:evse_id", h.GetStation)

		// 手动同步
		api.POST("/sync/stations", h.SyncStations)
		api.POST("/sync/statuses", h.SyncStatuses)
		api.GET("/sync/state", h.GetSyncState)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查和指标
	r.GET("/health", h.HealthCheck)
	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	if h.wsHub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "WebSocket disabled"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)

	// 先启动写协程，避免初始数据阻塞
	go client.WritePump()
	client.Register()
	go client.ReadPump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := gin.H{
		"status":       "ok",
		"dependencies": deps,
		"sync_state":   h.stations.SyncState().CurrentState,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if h.wsHub != nil {
		body["ws_clients"] = h.wsHub.ClientCount()
	}
	c.JSON(status, body)
}
