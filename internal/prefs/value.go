package prefs

import (
	"fmt"
	"math"

	"codeberg.org/mutker/ventilator/internal/errors"
)

type kind string

const (
	kindInt    kind = "int"
	kindFloat  kind = "float"
	kindString kind = "string"
	kindBool   kind = "bool"
	kindBytes  kind = "bytes"
)

// encode converts a Go value into its stored kind and SQLite value.
func encode(v any) (kind, any, error) {
	errFactory := errors.New()

	switch x := v.(type) {
	case int:
		return kindInt, int64(x), nil
	case int8:
		return kindInt, int64(x), nil
	case int16:
		return kindInt, int64(x), nil
	case int32:
		return kindInt, int64(x), nil
	case int64:
		return kindInt, x, nil
	case uint8:
		return kindInt, int64(x), nil
	case uint16:
		return kindInt, int64(x), nil
	case uint32:
		return kindInt, int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return "", nil, errFactory.WithData(ErrInvalidValue, x)
		}
		return kindInt, int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return "", nil, errFactory.WithData(ErrInvalidValue, x)
		}
		return kindInt, int64(x), nil
	case float32:
		return kindFloat, float64(x), nil
	case float64:
		return kindFloat, x, nil
	case string:
		return kindString, x, nil
	case bool:
		if x {
			return kindBool, int64(1), nil
		}
		return kindBool, int64(0), nil
	case []byte:
		return kindBytes, x, nil
	default:
		return "", nil, errFactory.WithData(ErrUnsupportedType, fmt.Sprintf("%T", v))
	}
}

// decode reverses encode for a value read back from SQLite.
func decode(k kind, raw any) (any, error) {
	errFactory := errors.New()

	switch k {
	case kindInt:
		if n, ok := raw.(int64); ok {
			return n, nil
		}
	case kindFloat:
		switch x := raw.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		}
	case kindString:
		switch x := raw.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case kindBool:
		if n, ok := raw.(int64); ok {
			return n != 0, nil
		}
	case kindBytes:
		switch x := raw.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		case nil:
			return []byte{}, nil
		}
	}

	return nil, errFactory.WithData(ErrInvalidValue, struct {
		Kind string
		Type string
	}{
		Kind: string(k),
		Type: fmt.Sprintf("%T", raw),
	})
}

// toInt narrows a decoded numeric value. Floats are truncated.
func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int64:
		return int(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, errors.New().WithData(ErrInvalidValue, x)
		}
		return int(x), nil
	default:
		return 0, errors.New().WithData(ErrInvalidValue, fmt.Sprintf("%T is not numeric", v))
	}
}
