package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// ErrSyncInProgress 已有同步在执行
var ErrSyncInProgress = errors.New("sync already in progress")

// 同步状态常量
const (
	StateIdle            = "idle"
	StateSyncingStations = "syncing_stations"
	StateSyncingStatuses = "syncing_statuses"
)

// 事件常量
const (
	EventStartStations = "start_stations"
	EventStartStatuses = "start_statuses"
	EventFinish        = "finish"
	EventFail          = "fail"
)

// SyncState 同步状态快照
type SyncState struct {
	CurrentState     string     `json:"state"`
	Since            time.Time  `json:"since"`
	RunID            string     `json:"run_id,omitempty"`
	LastStationsSync *time.Time `json:"last_stations_sync,omitempty"`
	LastStatusSync   *time.Time `json:"last_status_sync,omitempty"`
	StationCount     int        `json:"station_count"`
	SkippedRecords   int        `json:"skipped_records"`
	LastMatched      int        `json:"last_matched"`
	LastUnmatched    int        `json:"last_unmatched"`
	LastChanged      int        `json:"last_changed"`
	LastError        string     `json:"last_error,omitempty"`
}

// Machine 同步生命周期状态机，同一时间只允许一次同步
type Machine struct {
	mu            sync.RWMutex
	fsm           *fsm.FSM
	state         *SyncState
	onStateChange func(from, to string)
}

// NewMachine 创建状态机
func NewMachine(onStateChange func(from, to string)) *Machine {
	m := &Machine{
		onStateChange: onStateChange,
		state: &SyncState{
			CurrentState: StateIdle,
			Since:        time.Now(),
		},
	}

	m.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventStartStations, Src: []string{StateIdle}, Dst: StateSyncingStations},
			{Name: EventStartStatuses, Src: []string{StateIdle}, Dst: StateSyncingStatuses},
			{Name: EventFinish, Src: []string{StateSyncingStations, StateSyncingStatuses}, Dst: StateIdle},
			{Name: EventFail, Src: []string{StateSyncingStations, StateSyncingStatuses}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// GetState 返回状态副本
func (m *Machine) GetState() SyncState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stateCopy := *m.state
	stateCopy.CurrentState = m.fsm.Current()
	return stateCopy
}

// Begin 进入同步状态，已在同步时返回 ErrSyncInProgress
func (m *Machine) Begin(event, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fsm.Can(event) {
		if m.fsm.Current() != StateIdle {
			return ErrSyncInProgress
		}
		return fmt.Errorf("trigger event %s: not allowed in state %s", event, m.fsm.Current())
	}
	if err := m.trigger(event); err != nil {
		return err
	}
	m.state.RunID = runID
	return nil
}

// Finish 同步成功，update 在持锁时写入结果
func (m *Machine) Finish(update func(s *SyncState)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fsm.Can(EventFinish) {
		return fmt.Errorf("trigger event %s: not allowed in state %s", EventFinish, m.fsm.Current())
	}
	if update != nil {
		update(m.state)
	}
	m.state.LastError = ""
	return m.trigger(EventFinish)
}

// Fail 同步失败，记录错误后回到 idle
func (m *Machine) Fail(cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cause != nil {
		m.state.LastError = cause.Error()
	}
	return m.trigger(EventFail)
}

// trigger 调用方需持有写锁
func (m *Machine) trigger(event string) error {
	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	m.state.CurrentState = m.fsm.Current()
	m.state.Since = time.Now()
	return nil
}
