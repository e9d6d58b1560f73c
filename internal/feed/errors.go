package feed

import (
	"errors"
	"fmt"
)

// ErrMalformedEnvelope 顶层结构不符合预期
var ErrMalformedEnvelope = errors.New("malformed feed envelope")

// unknownStationID 尚未解出 ChargingStationId 时使用的占位标识
const unknownStationID = "unknown"

// Kind 目标标量类型
type Kind string

const (
	KindNumber    Kind = "number"
	KindBool      Kind = "bool"
	KindTimestamp Kind = "timestamp"
	KindString    Kind = "string"
	KindObject    Kind = "object"
	KindList      Kind = "list"
)

// FieldCoercionError 字段原始值无法转换为目标类型
type FieldCoercionError struct {
	Field      string
	RawValue   string
	TargetKind Kind
	Err        error
}

func (e *FieldCoercionError) Error() string {
	msg := fmt.Sprintf("field %s: cannot coerce %s to %s", e.Field, truncate(e.RawValue), e.TargetKind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldCoercionError) Unwrap() error { return e.Err }

// FieldShapeError 列表字段既不是单个对象也不是数组
type FieldShapeError struct {
	Field    string
	RawValue string
	Err      error
}

func (e *FieldShapeError) Error() string {
	msg := fmt.Sprintf("field %s: expected object or array, got %s", e.Field, truncate(e.RawValue))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldShapeError) Unwrap() error { return e.Err }

// UnknownEnumValueError 严格枚举遇到未定义的值
type UnknownEnumValueError struct {
	Field string
	Value string
}

func (e *UnknownEnumValueError) Error() string {
	return fmt.Sprintf("field %s: unknown enum value %q", e.Field, e.Value)
}

// MissingRequiredFieldError 必填字段缺失
type MissingRequiredFieldError struct {
	Field string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("field %s: required field missing", e.Field)
}

// RecordError 单条充电站记录解码失败，携带位置和尽力而为的标识
type RecordError struct {
	Wrapper   int // EVSEData 中的序号
	Index     int // EVSEDataRecord 中的序号
	StationID string
	Err       error
}

func (e *RecordError) Error() string {
	if e.Wrapper < 0 || e.Index < 0 {
		return fmt.Sprintf("decode station %s: %v", e.StationID, e.Err)
	}
	return fmt.Sprintf("decode station %s at EVSEData[%d].EVSEDataRecord[%d]: %v", e.StationID, e.Wrapper, e.Index, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// UpstreamFaultError 来自拉取或存储协作方的错误，原样透传
type UpstreamFaultError struct {
	Op  string
	Err error
}

func (e *UpstreamFaultError) Error() string {
	return fmt.Sprintf("upstream fault during %s: %v", e.Op, e.Err)
}

func (e *UpstreamFaultError) Unwrap() error { return e.Err }

func truncate(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
