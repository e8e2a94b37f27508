package variables

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
)

// Kind is the declared type of a variable, fixed by its default value.
type Kind string

const (
	KindBool     Kind = "bool"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindString   Kind = "string"
	KindColor    Kind = "color"
	KindDuration Kind = "duration"
	KindOther    Kind = "other"
)

func kindOf(v any) Kind {
	switch v.(type) {
	case bool:
		return KindBool
	case int:
		return KindInt
	case float64:
		return KindFloat
	case string:
		return KindString
	case color.Color:
		return KindColor
	case time.Duration:
		return KindDuration
	default:
		return KindOther
	}
}

// Coerce converts a loosely typed value, as decoded from JSON or YAML, into
// the Go type backing kind.
func Coerce(kind Kind, v any) (any, error) {
	switch kind {
	case KindBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(t))
		}
	case KindInt:
		switch t := v.(type) {
		case string:
			return strconv.Atoi(strings.TrimSpace(t))
		case json.Number:
			n, err := t.Int64()
			return int(n), err
		default:
			if f, ok := asFloat(v); ok && wholeIn(f, math.MinInt) {
				return int(f), nil
			}
		}
	case KindFloat:
		switch t := v.(type) {
		case string:
			return strconv.ParseFloat(strings.TrimSpace(t), 64)
		case json.Number:
			return t.Float64()
		default:
			if f, ok := asFloat(v); ok {
				return f, nil
			}
		}
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindColor:
		switch t := v.(type) {
		case color.Color:
			return t, nil
		case string:
			return color.ParseHex(t)
		default:
			if f, ok := asFloat(v); ok && f >= 0 && f <= math.MaxUint32 && f == math.Trunc(f) {
				return color.Unpack(uint32(f)), nil
			}
		}
	case KindDuration:
		switch t := v.(type) {
		case time.Duration:
			return t, nil
		case string:
			return time.ParseDuration(strings.TrimSpace(t))
		default:
			if f, ok := asFloat(v); ok && wholeIn(f, math.MinInt64) {
				return time.Duration(int64(f)), nil
			}
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, kind)
}

// wholeIn reports whether f is an integer representable by a signed type
// whose minimum is lo.
func wholeIn(f, lo float64) bool {
	return f == math.Trunc(f) && f >= lo && f < -lo
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// display renders a value in a form that survives JSON and YAML encoding
// without losing its meaning.
func display(v any) any {
	switch t := v.(type) {
	case time.Duration:
		return t.String()
	case color.Color:
		return t.String()
	}
	return v
}
