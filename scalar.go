package params

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind enumerates the value types a parameter or label may declare.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "str"
	default:
		return "unknown"
	}
}

// KindFromName maps a document type name to its Kind.
func KindFromName(name string) (Kind, error) {
	switch name {
	case "bool":
		return KindBool, nil
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "str":
		return KindString, nil
	default:
		return 0, fmt.Errorf("unknown type %q", name)
	}
}

// Scalar is a tagged variant holding one typed parameter or label value.
// The zero Scalar is a bool false; construct through the typed helpers.
type Scalar struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// Bool wraps v as a bool Scalar.
func Bool(v bool) Scalar { return Scalar{kind: KindBool, b: v} }

// Int wraps v as an int Scalar.
func Int(v int64) Scalar { return Scalar{kind: KindInt, i: v} }

// Float wraps v as a float Scalar.
func Float(v float64) Scalar { return Scalar{kind: KindFloat, f: v} }

// Str wraps v as a string Scalar.
func Str(v string) Scalar { return Scalar{kind: KindString, s: v} }

// Kind returns the variant tag.
func (s Scalar) Kind() Kind { return s.kind }

// Bool returns the bool payload, or false for other kinds.
func (s Scalar) Bool() bool { return s.kind == KindBool && s.b }

// Int returns the int payload, or 0 for other kinds.
func (s Scalar) Int() int64 {
	if s.kind == KindInt {
		return s.i
	}
	return 0
}

// Float returns the numeric payload as float64. Int values are promoted;
// non-numeric kinds return 0.
func (s Scalar) Float() float64 {
	switch s.kind {
	case KindFloat:
		return s.f
	case KindInt:
		return float64(s.i)
	default:
		return 0
	}
}

// Text returns the string payload, or "" for other kinds.
func (s Scalar) Text() string {
	if s.kind == KindString {
		return s.s
	}
	return ""
}

// IsNumeric reports whether the scalar holds an int or float.
func (s Scalar) IsNumeric() bool {
	return s.kind == KindInt || s.kind == KindFloat
}

// Interface returns the payload as a plain Go value, suitable for generic
// serialization.
func (s Scalar) Interface() any {
	switch s.kind {
	case KindBool:
		return s.b
	case KindInt:
		return s.i
	case KindFloat:
		return s.f
	default:
		return s.s
	}
}

func (s Scalar) String() string {
	switch s.kind {
	case KindBool:
		return strconv.FormatBool(s.b)
	case KindInt:
		return strconv.FormatInt(s.i, 10)
	case KindFloat:
		return strconv.FormatFloat(s.f, 'g', -1, 64)
	default:
		return s.s
	}
}

// Equal reports whether two scalars share the same kind and payload.
func (s Scalar) Equal(other Scalar) bool {
	if s.kind != other.kind {
		return false
	}
	switch s.kind {
	case KindBool:
		return s.b == other.b
	case KindInt:
		return s.i == other.i
	case KindFloat:
		return s.f == other.f
	default:
		return s.s == other.s
	}
}

// less orders scalars of the same kind; mixed kinds order by tag.
func (s Scalar) less(other Scalar) bool {
	if s.kind != other.kind {
		return s.kind < other.kind
	}
	switch s.kind {
	case KindBool:
		return !s.b && other.b
	case KindInt:
		return s.i < other.i
	case KindFloat:
		return s.f < other.f
	default:
		return s.s < other.s
	}
}

// coerce converts a decoded document value into a Scalar of kind k. Numeric
// conversions never truncate: a fractional number offered to an int kind is an
// error, not a rounded value. Bool and string kinds accept only their own
// representations.
func coerce(k Kind, raw any) (Scalar, error) {
	if s, ok := raw.(Scalar); ok {
		if s.kind == k {
			return s, nil
		}
		if k == KindFloat && s.kind == KindInt {
			return Float(float64(s.i)), nil
		}
		return Scalar{}, coerceError(k, raw)
	}
	switch k {
	case KindBool:
		if v, ok := raw.(bool); ok {
			return Bool(v), nil
		}
	case KindInt:
		switch v := raw.(type) {
		case int:
			return Int(int64(v)), nil
		case int64:
			return Int(v), nil
		case json.Number:
			if i, err := v.Int64(); err == nil {
				return Int(i), nil
			}
			f, err := v.Float64()
			if err == nil && isIntegral(f) {
				return Int(int64(f)), nil
			}
		case float64:
			if isIntegral(v) {
				return Int(int64(v)), nil
			}
		}
	case KindFloat:
		switch v := raw.(type) {
		case int:
			return Float(float64(v)), nil
		case int64:
			return Float(float64(v)), nil
		case float64:
			return Float(v), nil
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return Float(f), nil
			}
		}
	case KindString:
		if v, ok := raw.(string); ok {
			return Str(v), nil
		}
	}
	return Scalar{}, coerceError(k, raw)
}

func coerceError(k Kind, raw any) error {
	return fmt.Errorf("cannot use %s as %s", describeValue(raw), k)
}

func describeValue(raw any) string {
	switch v := raw.(type) {
	case nil:
		return "null"
	case json.Number:
		return v.String()
	case string:
		return strconv.Quote(v)
	case []any:
		return "a list"
	case map[string]any, map[int]any, map[any]any:
		return "a mapping"
	default:
		return fmt.Sprintf("%v (%T)", raw, raw)
	}
}

func isIntegral(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

// coerceInt converts a decoded value into a plain int, used for extension-axis
// values such as years.
func coerceInt(raw any) (int, error) {
	s, err := coerce(KindInt, raw)
	if err != nil {
		return 0, err
	}
	return int(s.Int()), nil
}
