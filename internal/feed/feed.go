package feed

import (
	"encoding/json"
	"fmt"

	"github.com/langchou/stationgazer/internal/models"
)

// 静态数据信封字段
const (
	keyRecords  = "EVSEData"
	keyStations = "EVSEDataRecord"
)

// decodeEnvelope 拆出 EVSEData[*].EVSEDataRecord[*]，保持原有顺序
func decodeEnvelope(data []byte) ([][]json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	rawRecords, ok := top[keyRecords]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedEnvelope, keyRecords)
	}

	var wrappers []map[string]json.RawMessage
	if err := json.Unmarshal(rawRecords, &wrappers); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, keyRecords, err)
	}

	out := make([][]json.RawMessage, 0, len(wrappers))
	for i, w := range wrappers {
		var stations []json.RawMessage
		if raw, ok := w[keyStations]; ok && !isNull(raw) {
			if err := json.Unmarshal(raw, &stations); err != nil {
				return nil, fmt.Errorf("%w: %s[%d].%s: %v", ErrMalformedEnvelope, keyRecords, i, keyStations, err)
			}
		}
		out = append(out, stations)
	}
	return out, nil
}

// DecodeFeed 解码完整的静态数据，按 wrapper→station 深度优先展开。
// 任意一条记录失败即整体失败，返回的 *RecordError 带有位置和字段信息。
func DecodeFeed(data []byte) ([]models.ChargingStation, error) {
	wrappers, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	var stations []models.ChargingStation
	for wi, records := range wrappers {
		for si, raw := range records {
			st, err := DecodeStation(raw)
			if err != nil {
				return nil, positioned(err, wi, si)
			}
			stations = append(stations, st)
		}
	}
	if stations == nil {
		stations = []models.ChargingStation{}
	}
	return stations, nil
}

// DecodeFeedLenient 与 DecodeFeed 相同，但跳过失败的记录并单独返回。
// 只有信封本身无法解析时才返回 error。
func DecodeFeedLenient(data []byte) ([]models.ChargingStation, []*RecordError, error) {
	wrappers, err := decodeEnvelope(data)
	if err != nil {
		return nil, nil, err
	}

	stations := []models.ChargingStation{}
	var failures []*RecordError
	for wi, records := range wrappers {
		for si, raw := range records {
			st, err := DecodeStation(raw)
			if err != nil {
				failures = append(failures, positioned(err, wi, si))
				continue
			}
			stations = append(stations, st)
		}
	}
	return stations, failures, nil
}

func positioned(err error, wrapper, index int) *RecordError {
	re, ok := err.(*RecordError)
	if !ok {
		re = &RecordError{StationID: unknownStationID, Err: err}
	}
	re.Wrapper = wrapper
	re.Index = index
	return re
}
