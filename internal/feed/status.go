package feed

import (
	"encoding/json"
	"fmt"

	"github.com/langchou/stationgazer/internal/models"
)

// 状态数据信封字段
const (
	keyStatuses     = "EVSEStatuses"
	keyOperatorID   = "OperatorID"
	keyOperatorName = "OperatorName"
	keyStatusRecord = "EVSEStatusRecord"
	keyStatus       = "EVSEStatus"
)

// DecodeStatusFeed 解码运营商状态数据。EVSEStatus 为宽松枚举，未知值归为 Unknown。
func DecodeStatusFeed(data []byte) ([]models.OperatorStatus, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	raw, ok := top[keyStatuses]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedEnvelope, keyStatuses)
	}

	var operators []json.RawMessage
	if err := json.Unmarshal(raw, &operators); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, keyStatuses, err)
	}

	result := make([]models.OperatorStatus, 0, len(operators))
	for i, op := range operators {
		status, err := decodeOperatorStatus(fmt.Sprintf("%s[%d]", keyStatuses, i), op)
		if err != nil {
			return nil, err
		}
		result = append(result, status)
	}
	return result, nil
}

func decodeOperatorStatus(path string, raw json.RawMessage) (models.OperatorStatus, error) {
	var op models.OperatorStatus
	o, err := newObject(path, raw)
	if err != nil {
		return op, err
	}
	if op.OperatorID, err = o.requiredString(keyOperatorID); err != nil {
		return op, err
	}
	name, err := o.optionalString(keyOperatorName)
	if err != nil {
		return op, err
	}
	if name != nil {
		op.OperatorName = *name
	}

	records, ok := o.lookup(keyStatusRecord)
	if !ok {
		op.Records = []models.StatusRecord{}
		return op, nil
	}
	field := o.name(keyStatusRecord)
	op.Records, err = decodeArray(field, records, decodeStatusRecord)
	if err != nil {
		return op, wrapListError(field, records, err)
	}
	return op, nil
}

func decodeStatusRecord(path string, raw json.RawMessage) (models.StatusRecord, error) {
	var rec models.StatusRecord
	o, err := newObject(path, raw)
	if err != nil {
		return rec, err
	}
	if rec.EvseID, err = o.requiredString(fieldEvseID); err != nil {
		return rec, err
	}
	status, err := o.requiredString(keyStatus)
	if err != nil {
		return rec, err
	}
	rec.Status = models.ParseEVSEStatus(status)
	return rec, nil
}
