package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errNotObject = errors.New("not a JSON object")

// OneOrMany 将声明为 "X 列表"、但上游可能给出单个对象或缺省的节点规范化为列表。
// 缺省或 null 返回空列表；先按数组解码，失败后按单个对象解码，都失败则返回 FieldShapeError。
// decode 的 path 参数为元素的字段路径。
func OneOrMany[T any](field string, raw json.RawMessage, decode func(path string, raw json.RawMessage) (T, error)) ([]T, error) {
	if isNull(raw) {
		return []T{}, nil
	}
	raw = bytes.TrimSpace(raw)

	items, arrErr := decodeArray(field, raw, decode)
	if arrErr == nil {
		return items, nil
	}

	item, objErr := decodeObject(field, raw, decode)
	if objErr == nil {
		return []T{item}, nil
	}

	cause := objErr
	if raw[0] == '[' {
		cause = arrErr
	}
	return nil, &FieldShapeError{Field: field, RawValue: string(raw), Err: cause}
}

// decodeArray 逐个解码数组元素，元素路径为 field[i]
func decodeArray[T any](field string, raw json.RawMessage, decode func(path string, raw json.RawMessage) (T, error)) ([]T, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	items := make([]T, 0, len(elems))
	for i, elem := range elems {
		item, err := decodeObject(fmt.Sprintf("%s[%d]", field, i), elem, decode)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeObject[T any](path string, raw json.RawMessage, decode func(path string, raw json.RawMessage) (T, error)) (T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		var zero T
		return zero, errNotObject
	}
	return decode(path, raw)
}
