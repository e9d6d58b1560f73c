package models

import (
	"encoding/json"
	"strings"
)

// AuthenticationMode 认证方式（严格枚举，无 unknown 变体）
type AuthenticationMode string

const (
	AuthNFCRFIDClassic   AuthenticationMode = "NFC RFID Classic"
	AuthNFCRFIDDESFire   AuthenticationMode = "NFC RFID DESFire"
	AuthPnC              AuthenticationMode = "PnC"
	AuthRemote           AuthenticationMode = "REMOTE"
	AuthDirectPayment    AuthenticationMode = "Direct Payment"
	AuthNoAuthentication AuthenticationMode = "No Authentication Required"
)

var authenticationModes = []AuthenticationMode{
	AuthNFCRFIDClassic,
	AuthNFCRFIDDESFire,
	AuthPnC,
	AuthRemote,
	AuthDirectPayment,
	AuthNoAuthentication,
}

// ParseAuthenticationMode 匹配认证方式，输入会先去除首尾空白
func ParseAuthenticationMode(raw string) (AuthenticationMode, bool) {
	s := strings.TrimSpace(raw)
	for _, m := range authenticationModes {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// PaymentOption 支付方式（严格枚举）
type PaymentOption string

const (
	PaymentNone     PaymentOption = "No Payment"
	PaymentDirect   PaymentOption = "Direct"
	PaymentContract PaymentOption = "Contract"
)

// ParsePaymentOption 匹配支付方式，输入会先去除首尾空白
func ParsePaymentOption(raw string) (PaymentOption, bool) {
	switch s := PaymentOption(strings.TrimSpace(raw)); s {
	case PaymentNone, PaymentDirect, PaymentContract:
		return s, true
	}
	return "", false
}

// DynamicInfoAvailable 是否提供动态状态
type DynamicInfoAvailable string

const (
	DynamicInfoYes  DynamicInfoAvailable = "true"
	DynamicInfoNo   DynamicInfoAvailable = "false"
	DynamicInfoAuto DynamicInfoAvailable = "auto"
)

// ParseDynamicInfoAvailable 大小写敏感匹配
func ParseDynamicInfoAvailable(raw string) (DynamicInfoAvailable, bool) {
	switch d := DynamicInfoAvailable(raw); d {
	case DynamicInfoYes, DynamicInfoNo, DynamicInfoAuto:
		return d, true
	}
	return "", false
}

// DayKind 营业日类型
type DayKind string

const (
	DayWorkdays DayKind = "Workdays"
	DayEveryday DayKind = "Everyday"
	DayWeekend  DayKind = "Weekend"
	DayUnknown  DayKind = "Unknown"
)

// Day 营业日（宽松枚举），未识别的值保留原始字符串
type Day struct {
	Kind DayKind
	Raw  string
}

// ParseDay 不区分大小写；未识别的值返回 DayUnknown
func ParseDay(raw string) Day {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "workdays", "weekdays":
		return Day{Kind: DayWorkdays, Raw: raw}
	case "everyday", "daily", "all days", "alldays":
		return Day{Kind: DayEveryday, Raw: raw}
	case "weekend", "weekends":
		return Day{Kind: DayWeekend, Raw: raw}
	}
	return Day{Kind: DayUnknown, Raw: raw}
}

func (d Day) String() string {
	if d.Kind == DayUnknown {
		return d.Raw
	}
	return string(d.Kind)
}

// MarshalJSON 已识别的值输出规范名称，未识别的值原样输出
func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = ParseDay(s)
	return nil
}

// StatusKind EVSE 实时状态
type StatusKind string

const (
	StatusAvailable    StatusKind = "Available"
	StatusOccupied     StatusKind = "Occupied"
	StatusOutOfService StatusKind = "OutOfService"
	StatusUnknown      StatusKind = "Unknown"
)

// EVSEStatus 宽松枚举：任何未识别的值（含 EvseNotFound）都归为 Unknown
type EVSEStatus struct {
	Kind StatusKind
	Raw  string
}

// ParseEVSEStatus 不区分大小写
func ParseEVSEStatus(raw string) EVSEStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "available":
		return EVSEStatus{Kind: StatusAvailable, Raw: raw}
	case "occupied":
		return EVSEStatus{Kind: StatusOccupied, Raw: raw}
	case "outofservice":
		return EVSEStatus{Kind: StatusOutOfService, Raw: raw}
	}
	return EVSEStatus{Kind: StatusUnknown, Raw: raw}
}

// Equal 已识别状态只比较 Kind，Unknown 还需比较原始值
func (s EVSEStatus) Equal(o EVSEStatus) bool {
	if s.Kind != o.Kind {
		return false
	}
	return s.Kind != StatusUnknown || s.Raw == o.Raw
}

func (s EVSEStatus) String() string {
	return string(s.Kind)
}

func (s EVSEStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s.Kind))
}

func (s *EVSEStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseEVSEStatus(raw)
	return nil
}
