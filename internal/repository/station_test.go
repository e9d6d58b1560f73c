package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/stationgazer/internal/models"
)

func TestStationFilter_Where(t *testing.T) {
	tests := []struct {
		name     string
		filter   StationFilter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "empty",
			filter:   StationFilter{Limit: 10},
			wantSQL:  "",
			wantArgs: nil,
		},
		{
			name:     "city only",
			filter:   StationFilter{City: "Bern"},
			wantSQL:  " WHERE LOWER(address->>'City') = LOWER($1)",
			wantArgs: []any{"Bern"},
		},
		{
			name:     "combined",
			filter:   StationFilter{PostalCode: "3011", Plug: "Type 2 Outlet", Operator: "CH*ABC"},
			wantSQL:  " WHERE address->>'PostalCode' = $1 AND $2 = ANY(plugs) AND (operator_id = $3 OR hub_operator_id = $3)",
			wantArgs: []any{"3011", "Type 2 Outlet", "CH*ABC"},
		},
		{
			name:     "country",
			filter:   StationFilter{Country: "CHE"},
			wantSQL:  " WHERE address->>'Country' = $1",
			wantArgs: []any{"CHE"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sql, args := tc.filter.where()
			assert.Equal(t, tc.wantSQL, sql)
			assert.Equal(t, tc.wantArgs, args)
		})
	}
}

func TestStationArgs(t *testing.T) {
	unknown := models.ParseEVSEStatus("EvseNotFound")
	st := &models.ChargingStation{
		ChargingStationID:    "A",
		EvseID:               "CH*ABC*E1",
		AuthenticationModes:  []models.AuthenticationMode{models.AuthRemote},
		DynamicInfoAvailable: models.DynamicInfoAuto,
		Status:               &unknown,
	}

	args := stationArgs(st)
	require.Len(t, args, 29)
	assert.Equal(t, []string{"REMOTE"}, args[9])
	assert.Equal(t, []string{}, args[10], "plugs is never NULL")
	assert.Nil(t, args[11])
	assert.Equal(t, "auto", args[14])

	status, ok := args[26].(*string)
	require.True(t, ok)
	require.NotNil(t, status)
	assert.Equal(t, "EvseNotFound", *status)

	st.Status = &models.EVSEStatus{Kind: models.StatusOccupied}
	status = stationArgs(st)[26].(*string)
	assert.Equal(t, "Occupied", *status)

	st.Status = nil
	assert.Nil(t, stationArgs(st)[26].(*string))
}
