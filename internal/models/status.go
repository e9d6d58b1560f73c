package models

// StatusRecord 单个 EVSE 的状态
type StatusRecord struct {
	EvseID string     `json:"EvseID"`
	Status EVSEStatus `json:"EVSEStatus"`
}

// OperatorStatus 运营商的状态列表
type OperatorStatus struct {
	OperatorID   string         `json:"OperatorID"`
	OperatorName string         `json:"OperatorName"`
	Records      []StatusRecord `json:"EVSEStatusRecord"`
}

// StatusChange 合并后实际发生变化的状态
type StatusChange struct {
	EvseID            string      `json:"evse_id"`
	ChargingStationID string      `json:"charging_station_id"`
	OperatorID        string      `json:"operator_id"`
	From              *EVSEStatus `json:"from"`
	To                EVSEStatus  `json:"to"`
}
