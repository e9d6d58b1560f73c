package service

import (
	"context"
	"errors"
	"time"

	"github.com/langchou/stationgazer/internal/feed"
	"github.com/langchou/stationgazer/internal/models"
	"github.com/langchou/stationgazer/internal/repository"
)

// StationStore 状态合并所需的存储能力
type StationStore interface {
	// FindByEvseID 不存在时返回 repository.ErrNotFound
	FindByEvseID(ctx context.Context, evseID string) (*models.ChargingStation, error)
	Upsert(ctx context.Context, st *models.ChargingStation) error
}

// MergeResult 一次合并的统计
type MergeResult struct {
	Matched   int                   `json:"matched"`
	Unmatched int                   `json:"unmatched"`
	Changes   []models.StatusChange `json:"changes"`
}

// MergeStatuses 把状态数据逐条写入已缓存的充电站。
// 找不到对应 EVSE 的记录直接跳过；存储层的其他错误会中止合并并以 *feed.UpstreamFaultError 返回，
// 此时已写入的记录保持不变，重跑是幂等的。
func MergeStatuses(ctx context.Context, store StationStore, statuses []models.OperatorStatus) (MergeResult, error) {
	result := MergeResult{Changes: []models.StatusChange{}}

	for _, op := range statuses {
		operatorID := op.OperatorID
		for _, rec := range op.Records {
			st, err := store.FindByEvseID(ctx, rec.EvseID)
			if errors.Is(err, repository.ErrNotFound) {
				result.Unmatched++
				continue
			}
			if err != nil {
				return result, &feed.UpstreamFaultError{Op: "lookup " + rec.EvseID, Err: err}
			}

			prev := st.Status
			status := rec.Status
			now := time.Now().UTC()
			st.Status = &status
			st.OperatorID = &operatorID
			st.StatusUpdatedAt = &now

			if err := store.Upsert(ctx, st); err != nil {
				return result, &feed.UpstreamFaultError{Op: "update " + rec.EvseID, Err: err}
			}
			result.Matched++

			if prev == nil || !prev.Equal(status) {
				result.Changes = append(result.Changes, models.StatusChange{
					EvseID:            st.EvseID,
					ChargingStationID: st.ChargingStationID,
					OperatorID:        operatorID,
					From:              prev,
					To:                status,
				})
			}
		}
	}
	return result, nil
}
