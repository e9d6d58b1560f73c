package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/langchou/stationgazer/internal/cache"
	"github.com/langchou/stationgazer/internal/feed"
	"github.com/langchou/stationgazer/internal/models"
	"github.com/langchou/stationgazer/internal/repository"
	"github.com/langchou/stationgazer/internal/state"
	"github.com/langchou/stationgazer/pkg/ws"
)

// ErrSyncInProgress 已有同步在执行
var ErrSyncInProgress = state.ErrSyncInProgress

// 同步类型，用于日志和指标标签
const (
	kindStations = "stations"
	kindStatuses = "statuses"
)

// Fetcher 上游原始数据来源
type Fetcher interface {
	FetchStations(ctx context.Context) ([]byte, error)
	FetchStatuses(ctx context.Context) ([]byte, error)
}

// Store 充电站存储
type Store interface {
	StationStore
	UpsertAll(ctx context.Context, stations []models.ChargingStation) (int, error)
	Find(ctx context.Context, f repository.StationFilter) ([]*models.ChargingStation, error)
	Count(ctx context.Context, f repository.StationFilter) (int64, error)
}

// Broadcaster 状态变化推送
type Broadcaster interface {
	BroadcastMessage(msgType string, data interface{})
}

// Options 同步配置
type Options struct {
	StationsInterval time.Duration // 静态数据同步间隔
	StatusInterval   time.Duration // 状态同步间隔
	CacheTTL         time.Duration // 原始数据缓存时间，0 表示不缓存
	Lenient          bool          // 跳过解码失败的记录而不是整体失败
}

// StationSyncReport 静态数据同步结果
type StationSyncReport struct {
	RunID    string        `json:"run_id"`
	Decoded  int           `json:"decoded"`
	Unique   int           `json:"unique"`
	Stored   int           `json:"stored"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// StatusSyncReport 状态同步结果
type StatusSyncReport struct {
	RunID     string `json:"run_id"`
	Operators int    `json:"operators"`
	MergeResult
	Duration time.Duration `json:"duration"`
}

// StationService 充电站同步和查询服务
type StationService struct {
	opts    Options
	logger  *zap.Logger
	fetcher Fetcher
	store   Store
	cache   cache.Cache
	hub     Broadcaster
	metrics *Metrics
	machine *state.Machine

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewStationService 创建服务；hub 可以为 nil
func NewStationService(
	opts Options,
	logger *zap.Logger,
	fetcher Fetcher,
	store Store,
	c cache.Cache,
	hub Broadcaster,
	metrics *Metrics,
) *StationService {
	if c == nil {
		c = cache.NewLocalCache()
	}
	svc := &StationService{
		opts:    opts,
		logger:  logger,
		fetcher: fetcher,
		store:   store,
		cache:   c,
		hub:     hub,
		metrics: metrics,
		stopCh:  make(chan struct{}),
	}
	svc.machine = state.NewMachine(svc.onStateChange)
	return svc
}

// Start 启动轮询
func (s *StationService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Station service already running, skipping start")
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.pollLoop(ctx)

	s.logger.Info("Station service started",
		zap.Duration("stations_interval", s.opts.StationsInterval),
		zap.Duration("status_interval", s.opts.StatusInterval),
	)
}

// Stop 停止轮询并等待当前同步结束
func (s *StationService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping station service")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Station service stopped")
}

func (s *StationService) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	// 启动时先同步一次
	s.runStations(ctx)
	s.runStatuses(ctx)

	stationsTicker := time.NewTicker(positive(s.opts.StationsInterval, 24*time.Hour))
	defer stationsTicker.Stop()
	statusTicker := time.NewTicker(positive(s.opts.StatusInterval, time.Minute))
	defer statusTicker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-stationsTicker.C:
			s.runStations(ctx)
		case <-statusTicker.C:
			s.runStatuses(ctx)
		}
	}
}

func (s *StationService) runStations(ctx context.Context) {
	if _, err := s.SyncStations(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		s.logger.Error("Station sync failed", zap.Error(err))
	}
}

func (s *StationService) runStatuses(ctx context.Context) {
	if _, err := s.SyncStatuses(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		s.logger.Error("Status sync failed", zap.Error(err))
	}
}

// SyncStations 拉取、解码、去重并写入静态数据
func (s *StationService) SyncStations(ctx context.Context) (*StationSyncReport, error) {
	report := &StationSyncReport{RunID: uuid.NewString()}
	if err := s.machine.Begin(state.EventStartStations, report.RunID); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := s.logger.With(zap.String("run_id", report.RunID), zap.String("kind", kindStations))

	err := s.syncStations(ctx, logger, report)
	report.Duration = time.Since(start)
	s.observe(kindStations, report.Duration, err)

	if err != nil {
		if ferr := s.machine.Fail(err); ferr != nil {
			logger.Warn("Failed to record sync failure", zap.Error(ferr))
		}
		return nil, err
	}

	now := time.Now()
	if ferr := s.machine.Finish(func(st *state.SyncState) {
		st.LastStationsSync = &now
		st.StationCount = report.Stored
		st.SkippedRecords = report.Skipped
	}); ferr != nil {
		logger.Warn("Failed to record sync result", zap.Error(ferr))
	}

	logger.Info("Station sync finished",
		zap.Int("decoded", report.Decoded),
		zap.Int("unique", report.Unique),
		zap.Int("stored", report.Stored),
		zap.Int("skipped", report.Skipped),
		zap.Duration("took", report.Duration),
	)
	return report, nil
}

func (s *StationService) syncStations(ctx context.Context, logger *zap.Logger, report *StationSyncReport) error {
	data, err := s.load(ctx, cache.KeyStationsFeed, s.fetcher.FetchStations)
	if err != nil {
		return &feed.UpstreamFaultError{Op: "fetch stations", Err: err}
	}

	var stations []models.ChargingStation
	if s.opts.Lenient {
		var failures []*feed.RecordError
		stations, failures, err = feed.DecodeFeedLenient(data)
		if err != nil {
			return fmt.Errorf("decode stations: %w", err)
		}
		for _, f := range failures {
			logger.Warn("Skipping station record",
				zap.String("charging_station_id", f.StationID),
				zap.Int("wrapper", f.Wrapper),
				zap.Int("index", f.Index),
				zap.Error(f.Err),
			)
		}
		report.Skipped = len(failures)
		if s.metrics != nil {
			s.metrics.RecordsSkipped.Add(float64(len(failures)))
		}
	} else {
		stations, err = feed.DecodeFeed(data)
		if err != nil {
			// 数据本身有问题，丢弃缓存避免下次重复失败
			s.invalidate(ctx, cache.KeyStationsFeed)
			return fmt.Errorf("decode stations: %w", err)
		}
	}
	report.Decoded = len(stations)

	unique := feed.Deduplicate(stations)
	report.Unique = len(unique)

	stored, err := s.store.UpsertAll(ctx, unique)
	report.Stored = stored
	if err != nil {
		return &feed.UpstreamFaultError{Op: "store stations", Err: err}
	}
	if s.metrics != nil {
		s.metrics.StationsCached.Set(float64(stored))
	}
	return nil
}

// SyncStatuses 拉取状态数据并合并到已缓存的充电站
func (s *StationService) SyncStatuses(ctx context.Context) (*StatusSyncReport, error) {
	report := &StatusSyncReport{RunID: uuid.NewString()}
	if err := s.machine.Begin(state.EventStartStatuses, report.RunID); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := s.logger.With(zap.String("run_id", report.RunID), zap.String("kind", kindStatuses))

	err := s.syncStatuses(ctx, report)
	report.Duration = time.Since(start)
	s.observe(kindStatuses, report.Duration, err)

	// 中途失败时已写入的部分变化照常推送
	s.publish(report.Changes)

	if err != nil {
		if ferr := s.machine.Fail(err); ferr != nil {
			logger.Warn("Failed to record sync failure", zap.Error(ferr))
		}
		return nil, err
	}

	now := time.Now()
	if ferr := s.machine.Finish(func(st *state.SyncState) {
		st.LastStatusSync = &now
		st.LastMatched = report.Matched
		st.LastUnmatched = report.Unmatched
		st.LastChanged = len(report.Changes)
	}); ferr != nil {
		logger.Warn("Failed to record sync result", zap.Error(ferr))
	}

	logger.Info("Status sync finished",
		zap.Int("operators", report.Operators),
		zap.Int("matched", report.Matched),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("changed", len(report.Changes)),
		zap.Duration("took", report.Duration),
	)
	return report, nil
}

func (s *StationService) syncStatuses(ctx context.Context, report *StatusSyncReport) error {
	data, err := s.load(ctx, cache.KeyStatusFeed, s.fetcher.FetchStatuses)
	if err != nil {
		return &feed.UpstreamFaultError{Op: "fetch statuses", Err: err}
	}

	statuses, err := feed.DecodeStatusFeed(data)
	if err != nil {
		s.invalidate(ctx, cache.KeyStatusFeed)
		return fmt.Errorf("decode statuses: %w", err)
	}
	report.Operators = len(statuses)

	result, err := MergeStatuses(ctx, s.store, statuses)
	report.MergeResult = result

	if s.metrics != nil {
		s.metrics.StatusMatched.Add(float64(result.Matched))
		s.metrics.StatusUnmatched.Add(float64(result.Unmatched))
		for _, c := range result.Changes {
			s.metrics.StatusChanges.WithLabelValues(string(c.To.Kind)).Inc()
		}
	}
	return err
}

// load 优先读缓存，未命中时拉取并写回
func (s *StationService) load(ctx context.Context, key string, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if s.opts.CacheTTL > 0 {
		data, err := s.cache.Get(ctx, key)
		if err == nil {
			s.logger.Debug("Feed cache hit", zap.String("key", key))
			return data, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Feed cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if s.opts.CacheTTL > 0 {
		if err := s.cache.Set(ctx, key, data, s.opts.CacheTTL); err != nil {
			s.logger.Warn("Feed cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return data, nil
}

func (s *StationService) invalidate(ctx context.Context, key string) {
	if s.opts.CacheTTL <= 0 {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("Feed cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *StationService) publish(changes []models.StatusChange) {
	if s.hub == nil || len(changes) == 0 {
		return
	}
	s.hub.BroadcastMessage(ws.MsgTypeStatusChange, changes)
}

func (s *StationService) observe(kind string, took time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	s.metrics.SyncRuns.WithLabelValues(kind, result).Inc()
	s.metrics.SyncDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// onStateChange 在状态机持锁时调用，不能回调 machine
func (s *StationService) onStateChange(from, to string) {
	s.logger.Debug("Sync state changed", zap.String("from", from), zap.String("to", to))
	if s.hub != nil {
		s.hub.BroadcastMessage(ws.MsgTypeSyncState, map[string]string{"from": from, "to": to})
	}
}

// SyncState 当前同步状态
func (s *StationService) SyncState() state.SyncState {
	return s.machine.GetState()
}

// ListStations 按条件查询充电站
func (s *StationService) ListStations(ctx context.Context, f repository.StationFilter) ([]*models.ChargingStation, error) {
	stations, err := s.store.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	if stations == nil {
		stations = []*models.ChargingStation{}
	}
	return stations, nil
}

// CountStations 统计充电站数量
func (s *StationService) CountStations(ctx context.Context, f repository.StationFilter) (int64, error) {
	n, err := s.store.Count(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("count stations: %w", err)
	}
	return n, nil
}

// GetStation 按 EVSE 编号获取，不存在时返回 repository.ErrNotFound
func (s *StationService) GetStation(ctx context.Context, evseID string) (*models.ChargingStation, error) {
	return s.store.FindByEvseID(ctx, evseID)
}

func positive(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
