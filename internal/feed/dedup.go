package feed

import "github.com/langchou/stationgazer/internal/models"

// Deduplicate 按 ChargingStationId 去重，保留第一次出现的记录并保持原有顺序
func Deduplicate(stations []models.ChargingStation) []models.ChargingStation {
	seen := make(map[string]struct{}, len(stations))
	out := make([]models.ChargingStation, 0, len(stations))
	for _, st := range stations {
		if _, ok := seen[st.ChargingStationID]; ok {
			continue
		}
		seen[st.ChargingStationID] = struct{}{}
		out = append(out, st)
	}
	return out
}
