package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/stationgazer/internal/repository"
)

// filterFromQuery 读取过滤条件，不含分页
func filterFromQuery(c *gin.Context) repository.StationFilter {
	return repository.StationFilter{
		City:       strings.TrimSpace(c.Query("city")),
		PostalCode: strings.TrimSpace(c.Query("postal_code")),
		Plug:       strings.TrimSpace(c.Query("plug")),
		Operator:   strings.TrimSpace(c.Query("operator")),
		Country:    strings.TrimSpace(c.Query("country")),
	}
}

// ListStations 按城市、邮编、插头、运营商、国家查询充电站
// GET /api/stations?city=Bern&page=1&per_page=20
func (h *Handler) ListStations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	filter := filterFromQuery(c)
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage

	stations, err := h.stations.ListStations(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list stations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list stations"})
		return
	}

	total, _ := h.stations.CountStations(c.Request.Context(), filter)

	c.JSON(http.StatusOK, gin.H{
		"data": stations,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// CountStations 统计满足条件的充电站
func (h *Handler) CountStations(c *gin.Context) {
	total, err := h.stations.CountStations(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		h.logger.Error("Failed to count stations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count stations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"total": total}})
}

// GetStation 按 EVSE 编号获取充电站
func (h *Handler) GetStation(c *gin.Context) {
	evseID := c.Param("evse_id")

	st, err := h.stations.GetStation(c.Request.Context(), evseID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Station not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get station", zap.Error(err), zap.String("evse_id", evseID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get station"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": st})
}
