package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts 依次尝试，第一个成功的为准
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00", // 带小数秒和时区
	time.RFC3339,                          // 带时区，无小数秒
	"2006-01-02T15:04:05",                 // 无时区，按 UTC
}

// FloatOrString 接受 JSON 数字或数字字符串
func FloatOrString(field string, raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if isString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, &FieldCoercionError{Field: field, RawValue: string(raw), TargetKind: KindNumber, Err: err}
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, &FieldCoercionError{Field: field, RawValue: s, TargetKind: KindNumber, Err: err}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, &FieldCoercionError{Field: field, RawValue: s, TargetKind: KindNumber}
		}
		return f, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, &FieldCoercionError{Field: field, RawValue: string(raw), TargetKind: KindNumber, Err: err}
	}
	return f, nil
}

// BoolOrString 接受 JSON 布尔值或不区分大小写的 "true"/"false"
func BoolOrString(field string, raw json.RawMessage) (bool, error) {
	raw = bytes.TrimSpace(raw)
	if isString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false, &FieldCoercionError{Field: field, RawValue: string(raw), TargetKind: KindBool, Err: err}
		}
		switch {
		case strings.EqualFold(s, "true"):
			return true, nil
		case strings.EqualFold(s, "false"):
			return false, nil
		}
		return false, &FieldCoercionError{Field: field, RawValue: s, TargetKind: KindBool}
	}
	return StrictBool(field, raw)
}

// StrictBool 只接受 JSON 布尔值
func StrictBool(field string, raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, &FieldCoercionError{Field: field, RawValue: string(raw), TargetKind: KindBool, Err: err}
	}
	return b, nil
}

// FlexibleTime 按 timestampLayouts 顺序解析 ISO8601 字符串
func FlexibleTime(field, s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &FieldCoercionError{
		Field:      field,
		RawValue:   s,
		TargetKind: KindTimestamp,
		Err:        errors.New("no supported ISO8601 layout matched"),
	}
}

// Timestamp 字符串走 FlexibleTime；数字按毫秒时间戳处理
func Timestamp(field string, raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if isString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, &FieldCoercionError{Field: field, RawValue: string(raw), TargetKind: KindTimestamp, Err: err}
		}
		return FlexibleTime(field, s)
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, &FieldCoercionError{Field: field, RawValue: string(raw), TargetKind: KindTimestamp, Err: err}
	}
	t, ok := fromUnixMilli(ms)
	if !ok {
		return time.Time{}, &FieldCoercionError{
			Field:      field,
			RawValue:   string(raw),
			TargetKind: KindTimestamp,
			Err:        errors.New("epoch milliseconds out of range"),
		}
	}
	return t, nil
}

// fromUnixMilli 秒数超出 int64 时返回 false
func fromUnixMilli(ms float64) (time.Time, bool) {
	sec := ms / 1000
	whole := math.Floor(sec)
	if math.IsNaN(whole) || whole < math.MinInt64 || whole >= math.MaxInt64 {
		return time.Time{}, false
	}
	return time.Unix(int64(whole), int64(math.Round((sec-whole)*1e9))).UTC(), true
}

// String 解码必须为 JSON 字符串的字段
func String(field string, raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &FieldCoercionError{Field: field, RawValue: string(raw), TargetKind: KindString, Err: err}
	}
	return s, nil
}

func isString(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '"'
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
