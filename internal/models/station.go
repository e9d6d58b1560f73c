package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ChargingStation 充电站记录（一个 EVSE 一条）
type ChargingStation struct {
	ID int64 `json:"-" db:"id"`

	// 标识
	ChargingStationID string  `json:"ChargingStationId" db:"charging_station_id"`
	EvseID            string  `json:"EvseID" db:"evse_id"`
	ClearinghouseID   *string `json:"ClearinghouseID,omitempty" db:"clearinghouse_id"`
	HubOperatorID     *string `json:"HubOperatorID,omitempty" db:"hub_operator_id"`
	ChargingPoolID    *string `json:"ChargingPoolID,omitempty" db:"charging_pool_id"`

	// 位置
	Address                  Address        `json:"Address" db:"address"`
	GeoCoordinates           GeoCoordinates `json:"GeoCoordinates" db:"geo_coordinates"`
	GeoChargingPointEntrance GeoCoordinates `json:"GeoChargingPointEntrance" db:"geo_entrance"`

	// 设备
	ChargingFacilities  Facilities           `json:"ChargingFacilities" db:"charging_facilities"`
	AuthenticationModes []AuthenticationMode `json:"AuthenticationModes" db:"authentication_modes"`
	Plugs               []string             `json:"Plugs" db:"plugs"`
	PaymentOptions      []PaymentOption      `json:"PaymentOptions,omitempty" db:"payment_options"`

	IsOpen24Hours        bool                 `json:"IsOpen24Hours" db:"is_open_24_hours"`
	RenewableEnergy      bool                 `json:"RenewableEnergy" db:"renewable_energy"`
	DynamicInfoAvailable DynamicInfoAvailable `json:"DynamicInfoAvailable" db:"dynamic_info_available"`
	LastUpdate           *time.Time           `json:"lastUpdate,omitempty" db:"last_update"`

	// 可选信息，仅做存在性检查
	MaxCapacity                      *int                 `json:"MaxCapacity,omitempty" db:"max_capacity"`
	DynamicPowerLevel                *bool                `json:"DynamicPowerLevel,omitempty" db:"dynamic_power_level"`
	EnergySource                     []EnergySource       `json:"EnergySource,omitempty" db:"-"`
	EnvironmentalImpact              *EnvironmentalImpact `json:"EnvironmentalImpact,omitempty" db:"-"`
	LocationImage                    *string              `json:"ChargingStationImage,omitempty" db:"location_image"`
	SuboperatorName                  *string              `json:"SuboperatorName,omitempty" db:"suboperator_name"`
	HardwareManufacturer             *string              `json:"HardwareManufacturer,omitempty" db:"hardware_manufacturer"`
	AdditionalInfo                   LocalizedTexts       `json:"AdditionalInfo,omitempty" db:"-"`
	ChargingStationLocationReference LocalizedTexts       `json:"ChargingStationLocationReference,omitempty" db:"-"`
	DeltaType                        *string              `json:"deltaType,omitempty" db:"delta_type"`
	ValueAddedServices               []string             `json:"ValueAddedServices,omitempty" db:"value_added_services"`

	ChargingStationNames LocalizedTexts `json:"ChargingStationNames" db:"names"`
	OpeningTimes         OpeningTimes   `json:"OpeningTimes,omitempty" db:"opening_times"`

	// 实时状态（由状态源合并写入）
	Status          *EVSEStatus `json:"EVSEStatus,omitempty" db:"status"`
	OperatorID      *string     `json:"OperatorID,omitempty" db:"operator_id"`
	StatusUpdatedAt *time.Time  `json:"StatusUpdatedAt,omitempty" db:"status_updated_at"`

	CreatedAt time.Time `json:"-" db:"created_at"`
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

// Extras 不单独建列的可选字段，整体存为 JSONB
type Extras struct {
	EnergySource                     []EnergySource       `json:"EnergySource,omitempty"`
	EnvironmentalImpact              *EnvironmentalImpact `json:"EnvironmentalImpact,omitempty"`
	AdditionalInfo                   LocalizedTexts       `json:"AdditionalInfo,omitempty"`
	ChargingStationLocationReference LocalizedTexts       `json:"ChargingStationLocationReference,omitempty"`
}

// Extras 提取 JSONB 扩展字段
func (s *ChargingStation) Extras() Extras {
	return Extras{
		EnergySource:                     s.EnergySource,
		EnvironmentalImpact:              s.EnvironmentalImpact,
		AdditionalInfo:                   s.AdditionalInfo,
		ChargingStationLocationReference: s.ChargingStationLocationReference,
	}
}

// SetExtras 回填 JSONB 扩展字段
func (s *ChargingStation) SetExtras(e Extras) {
	s.EnergySource = e.EnergySource
	s.EnvironmentalImpact = e.EnvironmentalImpact
	s.AdditionalInfo = e.AdditionalInfo
	s.ChargingStationLocationReference = e.ChargingStationLocationReference
}

// Name 返回指定语言的名称，找不到时返回第一个
func (s *ChargingStation) Name(lang string) string {
	for _, n := range s.ChargingStationNames {
		if n.Lang == lang {
			return n.Value
		}
	}
	if len(s.ChargingStationNames) > 0 {
		return s.ChargingStationNames[0].Value
	}
	return ""
}

func (e Extras) Value() (driver.Value, error) {
	return json.Marshal(e)
}

func (e *Extras) Scan(value interface{}) error {
	return scanJSON(value, e)
}

// Facility 充电设施
type Facility struct {
	Power     *float64 `json:"power,omitempty"`    // kW
	Amperage  *float64 `json:"Amperage,omitempty"` // A
	Voltage   *float64 `json:"Voltage,omitempty"`  // V
	PowerType *string  `json:"powertype,omitempty"`
}

// Facilities 充电设施列表
type Facilities []Facility

func (f Facilities) Value() (driver.Value, error) {
	if f == nil {
		f = Facilities{}
	}
	return json.Marshal(f)
}

func (f *Facilities) Scan(value interface{}) error {
	return scanJSON(value, f)
}

// MaxPower 最大功率 (kW)，没有功率信息时返回 0
func (f Facilities) MaxPower() float64 {
	var max float64
	for _, fac := range f {
		if fac.Power != nil && *fac.Power > max {
			max = *fac.Power
		}
	}
	return max
}

// LocalizedText 多语言文本
type LocalizedText struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

// LocalizedTexts 多语言文本列表
type LocalizedTexts []LocalizedText

func (l LocalizedTexts) Value() (driver.Value, error) {
	if l == nil {
		l = LocalizedTexts{}
	}
	return json.Marshal(l)
}

func (l *LocalizedTexts) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// Period 营业时段
type Period struct {
	Begin string `json:"begin"` // HH:MM
	End   string `json:"end"`
}

// OpeningTime 某类日期的营业时段
type OpeningTime struct {
	On      Day      `json:"on"`
	Periods []Period `json:"Period"`
}

// OpeningTimes 营业时间列表
type OpeningTimes []OpeningTime

func (o OpeningTimes) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(o)
}

func (o *OpeningTimes) Scan(value interface{}) error {
	return scanJSON(value, o)
}

// EnergySource 能源构成
type EnergySource struct {
	Energy     string   `json:"Energy"`
	Percentage *float64 `json:"Percentage,omitempty"`
}

// EnvironmentalImpact 环境影响
type EnvironmentalImpact struct {
	CO2Emission  *float64 `json:"CO2Emission,omitempty"`  // g/kWh
	NuclearWaste *float64 `json:"NuclearWaste,omitempty"` // g/kWh
}
