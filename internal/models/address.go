package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Address 充电站地址
type Address struct {
	Street          string  `json:"Street"`
	City            string  `json:"City"`
	Country         string  `json:"Country"`                   // ISO 3166 alpha-3, e.g. CHE
	HouseNum        *string `json:"HouseNum,omitempty"`        // 门牌号
	PostalCode      *string `json:"PostalCode,omitempty"`      // 邮编
	Region          *string `json:"Region,omitempty"`          // 州/地区
	TimeZone        *string `json:"TimeZone,omitempty"`        // 时区
	Floor           *string `json:"Floor,omitempty"`           // 楼层
	ParkingSpot     *string `json:"ParkingSpot,omitempty"`     // 车位
	ParkingFacility *bool   `json:"ParkingFacility,omitempty"` // 是否有停车设施
}

// Value 实现 driver.Valuer 接口，用于存储到数据库
func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan 实现 sql.Scanner 接口，用于从数据库读取
func (a *Address) Scan(value interface{}) error {
	return scanJSON(value, a)
}

// GeoCoordinates 坐标包装，上游以 "lat lon" 字符串表示
type GeoCoordinates struct {
	Google string `json:"Google"`
}

// scanJSON 将 JSONB 列解码到目标
func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source %T", value)
	}
}
