package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/stationgazer/internal/feed"
	"github.com/langchou/stationgazer/internal/service"
)

// SyncStations 手动触发静态数据同步
// POST /api/sync/stations
func (h *Handler) SyncStations(c *gin.Context) {
	report, err := h.stations.SyncStations(c.Request.Context())
	if err != nil {
		h.syncError(c, "stations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// SyncStatuses 手动触发状态同步
// POST /api/sync/statuses
func (h *Handler) SyncStatuses(c *gin.Context) {
	report, err := h.stations.SyncStatuses(c.Request.Context())
	if err != nil {
		h.syncError(c, "statuses", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// GetSyncState 获取同步状态
func (h *Handler) GetSyncState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.stations.SyncState()})
}

// syncError 上游故障 502，数据无法解码 422，并发同步 409
func (h *Handler) syncError(c *gin.Context, kind string, err error) {
	var (
		fault  *feed.UpstreamFaultError
		record *feed.RecordError
	)
	switch {
	case errors.Is(err, service.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &fault):
		h.logger.Error("Sync failed upstream", zap.String("kind", kind), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.As(err, &record), errors.Is(err, feed.ErrMalformedEnvelope):
		h.logger.Error("Sync failed decoding", zap.String("kind", kind), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Sync failed", zap.String("kind", kind), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
