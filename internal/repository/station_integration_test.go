package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/langchou/stationgazer/internal/models"
)

// testDB 优先使用 TEST_DATABASE_URL，否则启动 postgres 容器；-short 时跳过
func testDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}

	ctx := context.Background()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		testcontainers.SkipIfProviderIsNotHealthy(t)

		container, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("stationgazer_test"),
			postgres.WithUsername("stationgazer"),
			postgres.WithPassword("stationgazer"),
			postgres.BasicWaitStrategies(),
		)
		t.Cleanup(func() {
			if container == nil {
				return
			}
			if err := container.Terminate(context.Background()); err != nil {
				t.Logf("terminate postgres container: %v", err)
			}
		})
		require.NoError(t, err)

		url, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	db, err := New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	_, err = NewStationRepository(db).DeleteAll(ctx)
	require.NoError(t, err)
	return db
}

func ptr[T any](v T) *T { return &v }

func fullStation(id, evseID string) models.ChargingStation {
	lastUpdate := time.Date(2025, 9, 30, 2, 15, 16, 965_000_000, time.UTC)
	return models.ChargingStation{
		ChargingStationID: id,
		EvseID:            evseID,
		HubOperatorID:     ptr("CH*ABC"),
		Address: models.Address{
			Street:          "Bahnhofplatz",
			City:            "Bern",
			Country:         "CHE",
			PostalCode:      ptr("3011"),
			ParkingFacility: ptr(true),
		},
		GeoCoordinates:           models.GeoCoordinates{Google: "46.9490 7.4390"},
		GeoChargingPointEntrance: models.GeoCoordinates{Google: "46.9491 7.4391"},
		ChargingFacilities:       models.Facilities{{Power: ptr(22.0), PowerType: ptr("AC_3_PHASE")}},
		AuthenticationModes:      []models.AuthenticationMode{models.AuthenticationMode("REMOTE")},
		Plugs:                    []string{"Type 2 Outlet"},
		PaymentOptions:           []models.PaymentOption{models.PaymentContract},
		IsOpen24Hours:            true,
		DynamicInfoAvailable:     models.DynamicInfoYes,
		LastUpdate:               &lastUpdate,
		MaxCapacity:              ptr(2),
		DeltaType:                ptr("update"),
		AdditionalInfo:           models.LocalizedTexts{{Lang: "de", Value: "Parkhaus"}},
		ChargingStationNames:     models.LocalizedTexts{{Lang: "de", Value: "Bern Hbf"}},
		OpeningTimes: models.OpeningTimes{
			{On: models.ParseDay("Daily"), Periods: []models.Period{{Begin: "00:00", End: "23:59"}}},
		},
	}
}

func TestStationRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewStationRepository(testDB(t))

	st := fullStation("S1", "CH*ABC*E1")
	require.NoError(t, repo.Upsert(ctx, &st))
	assert.NotZero(t, st.ID)

	got, err := repo.FindByEvseID(ctx, "CH*ABC*E1")
	require.NoError(t, err)

	assert.Equal(t, "S1", got.ChargingStationID)
	assert.Equal(t, st.HubOperatorID, got.HubOperatorID)
	assert.Equal(t, st.Address, got.Address)
	assert.Equal(t, st.GeoCoordinates, got.GeoCoordinates)
	assert.Equal(t, st.ChargingFacilities, got.ChargingFacilities)
	assert.Equal(t, st.AuthenticationModes, got.AuthenticationModes)
	assert.Equal(t, st.Plugs, got.Plugs)
	assert.Equal(t, st.PaymentOptions, got.PaymentOptions)
	assert.True(t, got.IsOpen24Hours)
	assert.Equal(t, models.DynamicInfoYes, got.DynamicInfoAvailable)
	require.NotNil(t, got.LastUpdate)
	assert.True(t, st.LastUpdate.Equal(*got.LastUpdate))
	assert.Equal(t, st.MaxCapacity, got.MaxCapacity)
	assert.Equal(t, st.DeltaType, got.DeltaType)
	assert.Equal(t, st.AdditionalInfo, got.AdditionalInfo)
	assert.Equal(t, st.ChargingStationNames, got.ChargingStationNames)
	require.Len(t, got.OpeningTimes, 1)
	assert.Equal(t, models.DayEveryday, got.OpeningTimes[0].On.Kind)
	assert.Equal(t, st.OpeningTimes[0].Periods, got.OpeningTimes[0].Periods)
	assert.Nil(t, got.Status)

	_, err = repo.FindByEvseID(ctx, "CH*ABC*E404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStationRepository_StaticSyncKeepsStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewStationRepository(testDB(t))

	st := fullStation("S1", "CH*ABC*E1")
	require.NoError(t, repo.Upsert(ctx, &st))

	// 状态合并写入
	merged, err := repo.FindByEvseID(ctx, "CH*ABC*E1")
	require.NoError(t, err)
	occupied := models.ParseEVSEStatus("Occupied")
	at := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)
	merged.Status = &occupied
	merged.OperatorID = ptr("CH*ABC")
	merged.StatusUpdatedAt = &at
	require.NoError(t, repo.Upsert(ctx, merged))

	// 再次静态同步：新记录不带状态
	fresh := fullStation("S1", "CH*ABC*E1")
	fresh.Plugs = []string{"Type 2 Outlet", "CCS Combo 2 Plug (Cable Attached)"}
	n, err := repo.UpsertAll(ctx, []models.ChargingStation{fresh})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.FindByEvseID(ctx, "CH*ABC*E1")
	require.NoError(t, err)
	assert.Len(t, got.Plugs, 2, "static fields are overwritten")
	require.NotNil(t, got.Status)
	assert.Equal(t, models.StatusOccupied, got.Status.Kind)
	assert.Equal(t, "CH*ABC", *got.OperatorID)
	require.NotNil(t, got.StatusUpdatedAt)
	assert.True(t, at.Equal(*got.StatusUpdatedAt))

	// 未知状态保留原始值
	reserved := models.ParseEVSEStatus("Reserved")
	got.Status = &reserved
	require.NoError(t, repo.Upsert(ctx, got))
	got, err = repo.FindByEvseID(ctx, "CH*ABC*E1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, got.Status.Kind)
	assert.Equal(t, "Reserved", got.Status.Raw)
}

func TestStationRepository_FindAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewStationRepository(testDB(t))

	bern := fullStation("S1", "CH*ABC*E1")
	zurich := fullStation("S2", "CH*ABC*E2")
	zurich.Address.City = "Zürich"
	zurich.Address.PostalCode = ptr("8001")
	zurich.Plugs = []string{"CCS Combo 2 Plug (Cable Attached)"}
	zurich.HubOperatorID = ptr("CH*XYZ")
	n, err := repo.UpsertAll(ctx, []models.ChargingStation{bern, zurich})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	tests := []struct {
		name   string
		filter StationFilter
		want   []string
	}{
		{"all", StationFilter{}, []string{"CH*ABC*E1", "CH*ABC*E2"}},
		{"city case insensitive", StationFilter{City: "bern"}, []string{"CH*ABC*E1"}},
		{"postal code", StationFilter{PostalCode: "8001"}, []string{"CH*ABC*E2"}},
		{"plug", StationFilter{Plug: "CCS Combo 2 Plug (Cable Attached)"}, []string{"CH*ABC*E2"}},
		{"operator", StationFilter{Operator: "CH*XYZ"}, []string{"CH*ABC*E2"}},
		{"country and page", StationFilter{Country: "CHE", Limit: 1, Offset: 1}, []string{"CH*ABC*E2"}},
		{"no match", StationFilter{City: "Basel"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := repo.Find(ctx, tt.filter)
			require.NoError(t, err)
			got := make([]string, 0, len(found))
			for _, st := range found {
				got = append(got, st.EvseID)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	count, err := repo.Count(ctx, StationFilter{Country: "CHE"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	require.NoError(t, repo.Delete(ctx, "CH*ABC*E1"))
	assert.ErrorIs(t, repo.Delete(ctx, "CH*ABC*E1"), ErrNotFound)

	deleted, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}
