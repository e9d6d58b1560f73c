package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/stationgazer/internal/cache"
	"github.com/langchou/stationgazer/internal/feed"
	"github.com/langchou/stationgazer/internal/models"
	"github.com/langchou/stationgazer/internal/repository"
	"github.com/langchou/stationgazer/internal/state"
	"github.com/langchou/stationgazer/pkg/ws"
)

// memoryStore 以 evse_id 为键的内存存储
type memoryStore struct {
	mu       sync.Mutex
	stations map[string]models.ChargingStation
	findErr  error
	upserts  int
	failAt   int // 第 n 次 Upsert 失败，0 表示不失败
}

func newMemoryStore(stations ...models.ChargingStation) *memoryStore {
	s := &memoryStore{stations: make(map[string]models.ChargingStation)}
	for _, st := range stations {
		s.stations[st.EvseID] = st
	}
	return s
}

func (m *memoryStore) FindByEvseID(_ context.Context, evseID string) (*models.ChargingStation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	st, ok := m.stations[evseID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}

func (m *memoryStore) Upsert(_ context.Context, st *models.ChargingStation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.failAt > 0 && m.upserts == m.failAt {
		return errors.New("connection reset")
	}
	m.stations[st.EvseID] = *st
	return nil
}

func (m *memoryStore) UpsertAll(ctx context.Context, stations []models.ChargingStation) (int, error) {
	for i := range stations {
		if err := m.Upsert(ctx, &stations[i]); err != nil {
			return i, err
		}
	}
	return len(stations), nil
}

func (m *memoryStore) Find(_ context.Context, f repository.StationFilter) ([]*models.ChargingStation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ChargingStation
	for _, st := range m.stations {
		if f.City != "" && st.Address.City != f.City {
			continue
		}
		st := st
		out = append(out, &st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EvseID < out[j].EvseID })
	return out, nil
}

func (m *memoryStore) Count(ctx context.Context, f repository.StationFilter) (int64, error) {
	found, err := m.Find(ctx, f)
	return int64(len(found)), err
}

func (m *memoryStore) get(evseID string) models.ChargingStation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stations[evseID]
}

type fakeFetcher struct {
	stations      []byte
	statuses      []byte
	err           error
	stationsCalls int
	statusCalls   int
}

func (f *fakeFetcher) FetchStations(context.Context) ([]byte, error) {
	f.stationsCalls++
	return f.stations, f.err
}

func (f *fakeFetcher) FetchStatuses(context.Context) ([]byte, error) {
	f.statusCalls++
	return f.statuses, f.err
}

type recordingHub struct {
	mu       sync.Mutex
	messages []ws.Message
}

func (h *recordingHub) BroadcastMessage(msgType string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, ws.Message{Type: msgType, Data: data})
}

func (h *recordingHub) ofType(msgType string) []ws.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []ws.Message
	for _, m := range h.messages {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func cached(evseID, stationID string) models.ChargingStation {
	return models.ChargingStation{
		ChargingStationID: stationID,
		EvseID:            evseID,
		Address:           models.Address{Street: "Bahnhofplatz", City: "Bern", Country: "CHE"},
	}
}

const stationsFeed = `{"EVSEData": [
	{"EVSEDataRecord": [STATION_A]},
	{"EVSEDataRecord": [STATION_A_DUP, STATION_B]}
]}`

func stationJSON(id, evse string) string {
	return `{
		"ChargingStationId": "` + id + `",
		"EvseID": "` + evse + `",
		"Address": {"Street": "Bahnhofplatz", "City": "Bern", "Country": "CHE"},
		"GeoCoordinates": {"Google": "46.9490 7.4390"},
		"GeoChargingPointEntrance": {"Google": "46.9490 7.4390"},
		"ChargingFacilities": [{"power": "22"}],
		"AuthenticationModes": ["REMOTE"],
		"Plugs": ["Type 2 Outlet"],
		"IsOpen24Hours": "TRUE",
		"RenewableEnergy": true,
		"DynamicInfoAvailable": "auto",
		"lastUpdate": 1730000000000
	}`
}

func feedBytes() []byte {
	r := strings.Replace(stationsFeed, "STATION_A_DUP", stationJSON("A", "CH*ABC*E2"), 1)
	r = strings.Replace(r, "STATION_A", stationJSON("A", "CH*ABC*E1"), 1)
	r = strings.Replace(r, "STATION_B", stationJSON("B", "CH*ABC*E3"), 1)
	return []byte(r)
}

func newTestService(t *testing.T, fetcher Fetcher, store Store, opts Options) (*StationService, *recordingHub, *Metrics) {
	t.Helper()
	hub := &recordingHub{}
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewStationService(opts, zap.NewNop(), fetcher, store, cache.NewLocalCache(), hub, metrics)
	return svc, hub, metrics
}

func TestMergeStatuses_Scenario(t *testing.T) {
	store := newMemoryStore(cached("CH*ABC*E123", "S1"))
	statuses := []models.OperatorStatus{
		{
			OperatorID: "CH*ABC",
			Records: []models.StatusRecord{
				{EvseID: "CH*ABC*E123", Status: models.ParseEVSEStatus("Occupied")},
			},
		},
		{
			OperatorID: "CH*XYZ",
			Records: []models.StatusRecord{
				{EvseID: "CH*XYZ*E999", Status: models.ParseEVSEStatus("Available")},
			},
		},
	}

	result, err := MergeStatuses(context.Background(), store, statuses)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Unmatched)

	st := store.get("CH*ABC*E123")
	require.NotNil(t, st.Status)
	assert.Equal(t, models.StatusOccupied, st.Status.Kind)
	require.NotNil(t, st.OperatorID)
	assert.Equal(t, "CH*ABC", *st.OperatorID)
	assert.NotNil(t, st.StatusUpdatedAt)

	assert.Len(t, store.stations, 1, "unmatched status must not create a station")

	require.Len(t, result.Changes, 1)
	assert.Nil(t, result.Changes[0].From)
	assert.Equal(t, "S1", result.Changes[0].ChargingStationID)
}

func TestMergeStatuses_UnchangedStatusIsNotAChange(t *testing.T) {
	occupied := models.ParseEVSEStatus("Occupied")
	st := cached("CH*ABC*E123", "S1")
	st.Status = &occupied
	store := newMemoryStore(st)

	result, err := MergeStatuses(context.Background(), store, []models.OperatorStatus{{
		OperatorID: "CH*ABC",
		Records:    []models.StatusRecord{{EvseID: "CH*ABC*E123", Status: models.ParseEVSEStatus("OCCUPIED")}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Empty(t, result.Changes)
	assert.Equal(t, 1, store.upserts, "matched records are always persisted")
}

func TestMergeStatuses_StoreFaultAborts(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		store := newMemoryStore(cached("E1", "S1"))
		store.findErr = errors.New("pool closed")

		_, err := MergeStatuses(context.Background(), store, []models.OperatorStatus{{
			Records: []models.StatusRecord{{EvseID: "E1", Status: models.ParseEVSEStatus("Available")}},
		}})
		var fault *feed.UpstreamFaultError
		require.ErrorAs(t, err, &fault)
		assert.Equal(t, "lookup E1", fault.Op)
	})

	t.Run("update", func(t *testing.T) {
		store := newMemoryStore(cached("E1", "S1"), cached("E2", "S2"), cached("E3", "S3"))
		store.failAt = 2

		result, err := MergeStatuses(context.Background(), store, []models.OperatorStatus{{
			Records: []models.StatusRecord{
				{EvseID: "E1", Status: models.ParseEVSEStatus("Available")},
				{EvseID: "E2", Status: models.ParseEVSEStatus("Available")},
				{EvseID: "E3", Status: models.ParseEVSEStatus("Available")},
			},
		}})
		var fault *feed.UpstreamFaultError
		require.ErrorAs(t, err, &fault)
		assert.Equal(t, 1, result.Matched)
		assert.NotNil(t, store.get("E1").Status)
		assert.Nil(t, store.get("E3").Status, "merge stops at the first fault")
	})
}

func TestStationService_SyncStations(t *testing.T) {
	store := newMemoryStore()
	fetcher := &fakeFetcher{stations: feedBytes()}
	svc, _, metrics := newTestService(t, fetcher, store, Options{})

	report, err := svc.SyncStations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Decoded)
	assert.Equal(t, 2, report.Unique)
	assert.Equal(t, 2, report.Stored)
	assert.NotEmpty(t, report.RunID)

	// 去重保留第一次出现的 A
	_, err = store.FindByEvseID(context.Background(), "CH*ABC*E2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	a := store.get("CH*ABC*E1")
	assert.True(t, a.IsOpen24Hours)

	got := svc.SyncState()
	assert.Equal(t, state.StateIdle, got.CurrentState)
	assert.Equal(t, 2, got.StationCount)
	assert.NotNil(t, got.LastStationsSync)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SyncRuns.WithLabelValues(kindStations, "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.StationsCached))
}

func TestStationService_SyncStations_DecodeFailure(t *testing.T) {
	bad := []byte(strings.Replace(string(feedBytes()), `"AuthenticationModes": ["REMOTE"]`, `"AuthenticationModes": ["Mystery"]`, 1))

	t.Run("strict", func(t *testing.T) {
		store := newMemoryStore()
		svc, _, metrics := newTestService(t, &fakeFetcher{stations: bad}, store, Options{})

		_, err := svc.SyncStations(context.Background())
		var rec *feed.RecordError
		require.ErrorAs(t, err, &rec)
		assert.Equal(t, 0, rec.Wrapper)
		assert.Empty(t, store.stations)

		got := svc.SyncState()
		assert.Equal(t, state.StateIdle, got.CurrentState)
		assert.NotEmpty(t, got.LastError)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SyncRuns.WithLabelValues(kindStations, "failure")))
	})

	t.Run("lenient", func(t *testing.T) {
		store := newMemoryStore()
		svc, _, metrics := newTestService(t, &fakeFetcher{stations: bad}, store, Options{Lenient: true})

		report, err := svc.SyncStations(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Skipped)
		assert.Equal(t, 2, report.Stored)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecordsSkipped))
		// 第一条 A 失败，第二个 wrapper 中的 A 顶上
		assert.Equal(t, "A", store.get("CH*ABC*E2").ChargingStationID)
	})
}

func TestStationService_FetchFault(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeFetcher{err: errors.New("dial tcp: timeout")}, newMemoryStore(), Options{})

	_, err := svc.SyncStatuses(context.Background())
	var fault *feed.UpstreamFaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "fetch statuses", fault.Op)
}

func TestStationService_SyncStatuses(t *testing.T) {
	store := newMemoryStore(cached("CH*ABC*E123", "S1"))
	fetcher := &fakeFetcher{statuses: []byte(`{"EVSEStatuses": [
		{"OperatorID": "CH*ABC", "OperatorName": "ABC", "EVSEStatusRecord": [
			{"EvseID": "CH*ABC*E123", "EVSEStatus": "Occupied"}
		]},
		{"OperatorID": "CH*XYZ", "OperatorName": "XYZ", "EVSEStatusRecord": [
			{"EvseID": "CH*XYZ*E999", "EVSEStatus": "Available"}
		]}
	]}`)}
	svc, hub, metrics := newTestService(t, fetcher, store, Options{})

	report, err := svc.SyncStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Operators)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Unmatched)

	pushed := hub.ofType(ws.MsgTypeStatusChange)
	require.Len(t, pushed, 1)
	changes, ok := pushed[0].Data.([]models.StatusChange)
	require.True(t, ok)
	require.Len(t, changes, 1)
	assert.Equal(t, "CH*ABC*E123", changes[0].EvseID)

	assert.NotEmpty(t, hub.ofType(ws.MsgTypeSyncState))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StatusMatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StatusChanges.WithLabelValues("Occupied")))

	// 状态未变化时不再推送
	_, err = svc.SyncStatuses(context.Background())
	require.NoError(t, err)
	assert.Len(t, hub.ofType(ws.MsgTypeStatusChange), 1)
}

func TestStationService_CacheTTL(t *testing.T) {
	fetcher := &fakeFetcher{stations: feedBytes()}
	svc, _, _ := newTestService(t, fetcher, newMemoryStore(), Options{CacheTTL: time.Minute})

	_, err := svc.SyncStations(context.Background())
	require.NoError(t, err)
	_, err = svc.SyncStations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.stationsCalls)
}

func TestStationService_RejectsOverlappingSync(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeFetcher{}, newMemoryStore(), Options{})
	require.NoError(t, svc.machine.Begin(state.EventStartStations, "running"))

	_, err := svc.SyncStatuses(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	_, err = svc.SyncStations(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestStationService_Queries(t *testing.T) {
	zurich := cached("E2", "S2")
	zurich.Address.City = "Zürich"
	store := newMemoryStore(cached("E1", "S1"), zurich)
	svc, _, _ := newTestService(t, &fakeFetcher{}, store, Options{})

	list, err := svc.ListStations(context.Background(), repository.StationFilter{City: "Bern"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "E1", list[0].EvseID)

	n, err := svc.CountStations(context.Background(), repository.StationFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = svc.GetStation(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
